// Package ledger owns per-account financial state: positions, cash, and
// realized/unrealized P&L. Each account's ledger is an independently locked
// unit; updates to one account never block another.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/tradecore/internal/domain"
)

// Ledger is the financial record for one (brokerage, account) pair. Position
// mutation is serialized by a single writer lock so the average-price and
// realized-P&L invariants hold under concurrent local fills and broker
// confirmations; reads take a snapshot under the read lock.
type Ledger struct {
	mu sync.RWMutex

	account  string
	currency string

	cashValue     float64
	cashAvailable float64
	cashUsed      float64

	positions map[string]*domain.Position
	closed    []domain.Position

	tolerance float64
	bus       domain.EventBus
	logger    *slog.Logger
}

// New creates a ledger seeded with starting cash. In live mode the caller
// overwrites the cash fields from the broker snapshot immediately after.
func New(account, currency string, startingCash float64, bus domain.EventBus, logger *slog.Logger) *Ledger {
	return &Ledger{
		account:       account,
		currency:      currency,
		cashValue:     startingCash,
		cashAvailable: startingCash,
		positions:     make(map[string]*domain.Position),
		tolerance:     1e-9,
		bus:           bus,
		logger:        logger.With(slog.String("component", "ledger"), slog.String("account", account)),
	}
}

// SetTolerance sets the reconciliation tolerance below which a reported
// quantity difference is treated as in sync.
func (l *Ledger) SetTolerance(tol float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tol > 0 {
		l.tolerance = tol
	}
}

// Account returns the account this ledger belongs to.
func (l *Ledger) Account() string { return l.account }

// UpdateOrCreatePosition applies one fill of quantity at fillPrice on the
// given side:
//
//   - no position on the symbol: open one.
//   - same side: increase size; average price becomes the volume-weighted
//     mean of the old and new fills.
//   - opposite side, smaller: reduce; book realized P&L on the closed
//     portion; average price untouched.
//   - opposite side, equal: close fully and move to history.
//   - opposite side, larger: close fully, then open a new position on the
//     incoming side with the excess quantity.
//
// The returned event describes the final resulting state; intermediate events
// (the close of a flipped position) are published on the bus as well.
func (l *Ledger) UpdateOrCreatePosition(
	ctx context.Context,
	symbol, symbolCode string,
	quantity float64,
	side domain.PositionSide,
	at time.Time,
	fillPrice float64,
	brackets *domain.Brackets,
) (domain.PositionUpdateEvent, error) {
	if quantity <= 0 {
		return domain.PositionUpdateEvent{}, fmt.Errorf("ledger: fill quantity must be positive, got %v", quantity)
	}
	if fillPrice <= 0 {
		return domain.PositionUpdateEvent{}, fmt.Errorf("ledger: fill price must be positive, got %v", fillPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbolCode]
	if !ok {
		evt := l.openLocked(symbol, symbolCode, quantity, side, at, fillPrice, brackets)
		l.publish(ctx, evt)
		return evt, nil
	}

	if pos.Side == side {
		evt := l.increaseLocked(pos, quantity, at, fillPrice)
		l.publish(ctx, evt)
		return evt, nil
	}

	switch {
	case quantity < pos.OpenQuantity-l.tolerance:
		evt := l.reduceLocked(pos, quantity, at, fillPrice)
		l.publish(ctx, evt)
		return evt, nil

	case quantity <= pos.OpenQuantity+l.tolerance:
		evt := l.closeLocked(pos, at, fillPrice)
		l.publish(ctx, evt)
		return evt, nil

	default:
		// Reversal: close the whole current position, open the excess on the
		// incoming side at the fill price.
		excess := quantity - pos.OpenQuantity
		closeEvt := l.closeLocked(pos, at, fillPrice)
		l.publish(ctx, closeEvt)

		openEvt := l.openLocked(symbol, symbolCode, excess, side, at, fillPrice, brackets)
		l.publish(ctx, openEvt)
		return openEvt, nil
	}
}

func (l *Ledger) openLocked(
	symbol, symbolCode string,
	quantity float64,
	side domain.PositionSide,
	at time.Time,
	fillPrice float64,
	brackets *domain.Brackets,
) domain.PositionUpdateEvent {
	pos := &domain.Position{
		ID:           uuid.New().String(),
		Account:      l.account,
		Symbol:       symbol,
		SymbolCode:   symbolCode,
		Side:         side,
		OpenQuantity: quantity,
		AveragePrice: fillPrice,
		HighestPrice: fillPrice,
		LowestPrice:  fillPrice,
		Brackets:     brackets.Clone(),
		OpenedAt:     at,
	}
	l.positions[symbolCode] = pos

	notional := quantity * fillPrice
	l.cashUsed += notional
	l.cashAvailable -= notional

	return domain.PositionUpdateEvent{Kind: domain.PositionOpened, Position: *pos, At: at}
}

func (l *Ledger) increaseLocked(pos *domain.Position, quantity float64, at time.Time, fillPrice float64) domain.PositionUpdateEvent {
	// Volume-weighted average over the old size and the new fill. Reducing
	// fills never reach this path, so the average only ever reflects
	// size-increasing fills.
	total := pos.OpenQuantity + quantity
	pos.AveragePrice = (pos.AveragePrice*pos.OpenQuantity + fillPrice*quantity) / total
	pos.OpenQuantity = total
	pos.Mark(fillPrice)

	notional := quantity * fillPrice
	l.cashUsed += notional
	l.cashAvailable -= notional

	return domain.PositionUpdateEvent{Kind: domain.PositionIncreased, Position: *pos, At: at}
}

func (l *Ledger) reduceLocked(pos *domain.Position, quantity float64, at time.Time, fillPrice float64) domain.PositionUpdateEvent {
	realized := (fillPrice - pos.AveragePrice) * quantity * pos.Side.Sign()

	pos.OpenQuantity -= quantity
	pos.ClosedQuantity += quantity
	pos.BookedPnL += realized
	pos.Mark(fillPrice)

	released := quantity * pos.AveragePrice
	l.cashUsed -= released
	l.cashAvailable += released + realized
	l.cashValue += realized

	return domain.PositionUpdateEvent{
		Kind:        domain.PositionReduced,
		Position:    *pos,
		RealizedPnL: realized,
		At:          at,
	}
}

func (l *Ledger) closeLocked(pos *domain.Position, at time.Time, fillPrice float64) domain.PositionUpdateEvent {
	quantity := pos.OpenQuantity
	realized := (fillPrice - pos.AveragePrice) * quantity * pos.Side.Sign()

	released := quantity * pos.AveragePrice
	l.cashUsed -= released
	l.cashAvailable += released + realized
	l.cashValue += realized

	pos.ClosedQuantity += quantity
	pos.OpenQuantity = 0
	pos.BookedPnL += realized
	pos.OpenPnL = 0
	pos.Closed = true
	closedAt := at
	pos.ClosedAt = &closedAt

	delete(l.positions, pos.SymbolCode)
	l.closed = append(l.closed, *pos)

	return domain.PositionUpdateEvent{
		Kind:        domain.PositionClosed,
		Position:    *pos,
		RealizedPnL: realized,
		At:          at,
	}
}

// UpdateBrackets replaces the protective orders of the open position on
// symbolCode in place.
func (l *Ledger) UpdateBrackets(symbolCode string, brackets *domain.Brackets) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbolCode]
	if !ok {
		return domain.ErrNotFound
	}
	pos.Brackets = brackets.Clone()
	return nil
}

// SynchronizeLivePosition reconciles a broker-reported position against local
// bookkeeping. The broker is ground truth: a difference beyond the tolerance
// corrects local state toward the report and surfaces a discrepancy event,
// never a silent fix. Applying the same snapshot twice is a no-op on the
// second application.
func (l *Ledger) SynchronizeLivePosition(ctx context.Context, reported domain.Position, at time.Time) (domain.PositionUpdateEvent, error) {
	if reported.SymbolCode == "" {
		return domain.PositionUpdateEvent{}, fmt.Errorf("ledger: reported position missing symbol code")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	local, ok := l.positions[reported.SymbolCode]
	if !ok {
		if reported.OpenQuantity <= l.tolerance {
			return domain.PositionUpdateEvent{Kind: domain.PositionInSync, Position: reported, At: at}, nil
		}
		// Broker holds a position we never booked: adopt it and report the
		// discrepancy.
		adopted := reported
		if adopted.ID == "" {
			adopted.ID = uuid.New().String()
		}
		adopted.Account = l.account
		l.positions[adopted.SymbolCode] = &adopted

		evt := domain.PositionUpdateEvent{
			Kind:     domain.PositionDiscrepancy,
			Position: adopted,
			Reason:   "broker reports a position not present locally; adopted broker state",
			At:       at,
		}
		l.publish(ctx, evt)
		return evt, nil
	}

	sameSide := local.Side == reported.Side
	qtyDiff := math.Abs(local.OpenQuantity - reported.OpenQuantity)
	if sameSide && qtyDiff <= l.tolerance {
		return domain.PositionUpdateEvent{Kind: domain.PositionInSync, Position: *local, At: at}, nil
	}

	reason := fmt.Sprintf(
		"broker reports %s %v @ %v, local books %s %v @ %v; corrected toward broker",
		reported.Side, reported.OpenQuantity, reported.AveragePrice,
		local.Side, local.OpenQuantity, local.AveragePrice,
	)

	local.Side = reported.Side
	local.OpenQuantity = reported.OpenQuantity
	if reported.AveragePrice > 0 {
		local.AveragePrice = reported.AveragePrice
	}
	if reported.OpenQuantity <= l.tolerance {
		local.Closed = true
		closedAt := at
		local.ClosedAt = &closedAt
		delete(l.positions, local.SymbolCode)
		l.closed = append(l.closed, *local)
	}

	evt := domain.PositionUpdateEvent{
		Kind:     domain.PositionDiscrepancy,
		Position: *local,
		Reason:   reason,
		At:       at,
	}
	l.publish(ctx, evt)
	return evt, nil
}

// LiveAccountUpdates overwrites the cash fields from broker-reported truth.
// Live mode only; in paper and backtest modes the ledger itself is
// authoritative for cash.
func (l *Ledger) LiveAccountUpdates(cashValue, cashAvailable, cashUsed float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cashValue = cashValue
	l.cashAvailable = cashAvailable
	l.cashUsed = cashUsed
}

// Mark refreshes the open P&L of the position on symbolCode against price.
func (l *Ledger) Mark(symbolCode string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.positions[symbolCode]; ok {
		pos.Mark(price)
	}
}

// Position returns a copy of the open position on symbolCode.
func (l *Ledger) Position(symbolCode string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbolCode]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Snapshot is a consistent point-in-time view of the ledger.
type Snapshot struct {
	Account       string            `json:"account"`
	Currency      string            `json:"currency"`
	CashValue     float64           `json:"cash_value"`
	CashAvailable float64           `json:"cash_available"`
	CashUsed      float64           `json:"cash_used"`
	OpenPnL       float64           `json:"open_pnl"`
	BookedPnL     float64           `json:"booked_pnl"`
	Positions     []domain.Position `json:"positions"`
	ClosedCount   int               `json:"closed_count"`
}

// Snapshot returns the current state under the read lock: a reader sees
// either the pre- or post-update state of any concurrent fill, never a
// partial one.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{
		Account:       l.account,
		Currency:      l.currency,
		CashValue:     l.cashValue,
		CashAvailable: l.cashAvailable,
		CashUsed:      l.cashUsed,
		ClosedCount:   len(l.closed),
	}
	for _, pos := range l.positions {
		snap.OpenPnL += pos.OpenPnL
		snap.BookedPnL += pos.BookedPnL
		snap.Positions = append(snap.Positions, *pos)
	}
	for _, pos := range l.closed {
		snap.BookedPnL += pos.BookedPnL
	}
	return snap
}

// ClosedPositions returns a copy of the closed-position history.
func (l *Ledger) ClosedPositions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// publish emits a position event; bus failures are logged, never allowed to
// corrupt the accounting path.
func (l *Ledger) publish(ctx context.Context, evt domain.PositionUpdateEvent) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		l.logger.WarnContext(ctx, "marshal position event failed", slog.String("error", err.Error()))
		return
	}
	if err := l.bus.Publish(ctx, domain.ChannelPositions, payload); err != nil {
		l.logger.WarnContext(ctx, "publish position event failed",
			slog.String("kind", string(evt.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
