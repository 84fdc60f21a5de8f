package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantfold/tradecore/internal/domain"
)

// Service is the process registry of ledgers keyed by account. Ledgers are
// created lazily on first use and never removed during a run, so account
// state stays addressable by any concurrently executing order.
//
// The registry is dependency-injected rather than process-global; its
// lifetime is the strategy run.
type Service struct {
	mu      sync.RWMutex
	ledgers map[string]*Ledger

	startingCash float64
	currency     string
	tolerance    float64

	accounts domain.AccountProvider // nil outside live mode
	bus      domain.EventBus
	logger   *slog.Logger
}

// ServiceConfig carries the seeding parameters for lazily created ledgers.
type ServiceConfig struct {
	// StartingCash seeds paper and backtest ledgers.
	StartingCash float64
	// Currency is the account currency for seeded ledgers.
	Currency string
	// ReconcileTolerance is the quantity difference treated as in sync.
	ReconcileTolerance float64
	// Accounts, when set, seeds new ledgers from broker snapshots (live mode).
	Accounts domain.AccountProvider
}

// NewService creates the ledger registry.
func NewService(cfg ServiceConfig, bus domain.EventBus, logger *slog.Logger) *Service {
	return &Service{
		ledgers:      make(map[string]*Ledger),
		startingCash: cfg.StartingCash,
		currency:     cfg.Currency,
		tolerance:    cfg.ReconcileTolerance,
		accounts:     cfg.Accounts,
		bus:          bus,
		logger:       logger.With(slog.String("component", "ledger_service")),
	}
}

// Get returns the ledger for account, failing with domain.ErrNoLedger when
// none has been initialized. Routing to an uninitialized account is a
// configuration error and must fail loudly rather than fabricate a
// zero-value ledger.
func (s *Service) Get(account string) (*Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[account]
	if !ok {
		return nil, fmt.Errorf("ledger: account %q: %w", account, domain.ErrNoLedger)
	}
	return l, nil
}

// GetOrInit returns the account's ledger, creating it on first use: seeded
// with configured starting cash in paper/backtest mode, or from the broker
// snapshot when an AccountProvider is wired (live mode).
func (s *Service) GetOrInit(ctx context.Context, account string) (*Ledger, error) {
	s.mu.RLock()
	l, ok := s.ledgers[account]
	s.mu.RUnlock()
	if ok {
		return l, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.ledgers[account]; ok {
		return l, nil
	}

	l = New(account, s.currency, s.startingCash, s.bus, s.logger)
	if s.tolerance > 0 {
		l.SetTolerance(s.tolerance)
	}

	if s.accounts != nil {
		snap, err := s.accounts.AccountSnapshot(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("ledger: seed account %q from broker: %w", account, err)
		}
		l.LiveAccountUpdates(snap.CashValue, snap.CashAvailable, snap.CashUsed)
		for _, pos := range snap.Positions {
			if _, err := l.SynchronizeLivePosition(ctx, pos, pos.OpenedAt); err != nil {
				return nil, fmt.Errorf("ledger: seed position %s for %q: %w", pos.SymbolCode, account, err)
			}
		}
		s.logger.InfoContext(ctx, "ledger seeded from broker snapshot",
			slog.String("account", account),
			slog.Int("positions", len(snap.Positions)),
		)
	} else {
		s.logger.InfoContext(ctx, "ledger seeded with starting capital",
			slog.String("account", account),
			slog.Float64("starting_cash", s.startingCash),
		)
	}

	s.ledgers[account] = l
	return l, nil
}

// Accounts lists the accounts with an initialized ledger.
func (s *Service) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ledgers))
	for account := range s.ledgers {
		out = append(out, account)
	}
	return out
}

// Snapshots returns a snapshot per initialized ledger.
func (s *Service) Snapshots() []Snapshot {
	s.mu.RLock()
	ledgers := make([]*Ledger, 0, len(s.ledgers))
	for _, l := range s.ledgers {
		ledgers = append(ledgers, l)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, l.Snapshot())
	}
	return out
}
