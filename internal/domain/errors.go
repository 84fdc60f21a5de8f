package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNoLedger       = errors.New("no ledger initialized for account")
	ErrClosedPosition = errors.New("position already closed")
	ErrNotRegistered  = errors.New("connection not registered")
	ErrUnknownRequest = errors.New("unknown request kind")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrNoPrice        = errors.New("no reference price available")
	ErrLockHeld       = errors.New("lock already held")
	ErrContextDone    = errors.New("context cancelled")
)
