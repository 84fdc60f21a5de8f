package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quantfold/tradecore/internal/domain"
)

// Event type strings used for notification filtering.
const (
	EventOrderFilled   = "order_filled"
	EventOrderRejected = "order_rejected"
	EventDiscrepancy   = "position_discrepancy"
	EventPositionClose = "position_closed"
)

// Alerter subscribes to the order and position channels and turns selected
// events into operator notifications.
type Alerter struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewAlerter creates an Alerter forwarding bus events to the notifier.
func NewAlerter(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *Alerter {
	return &Alerter{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alerter")),
	}
}

// Run consumes events until the context ends.
func (a *Alerter) Run(ctx context.Context) error {
	orders, err := a.bus.Subscribe(ctx, domain.ChannelOrders)
	if err != nil {
		return err
	}
	positions, err := a.bus.Subscribe(ctx, domain.ChannelPositions)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-orders:
			if !ok {
				return nil
			}
			a.handleOrder(ctx, data)
		case data, ok := <-positions:
			if !ok {
				return nil
			}
			a.handlePosition(ctx, data)
		}
	}
}

func (a *Alerter) handleOrder(ctx context.Context, data []byte) {
	var evt domain.OrderUpdateEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		a.logger.DebugContext(ctx, "bad order event", slog.String("error", err.Error()))
		return
	}

	switch evt.Kind {
	case domain.OrderFilled:
		title := fmt.Sprintf("Order filled: %s %s", evt.Order.Side, evt.Order.SymbolCode)
		msg := fmt.Sprintf("%.4f @ %.4f (account %s)",
			evt.Order.FilledQuantity, evt.Order.AverageFill, evt.Order.Account)
		_ = a.notifier.Notify(ctx, EventOrderFilled, title, msg)

	case domain.OrderRejected:
		title := fmt.Sprintf("Order rejected: %s", evt.Order.SymbolCode)
		msg := fmt.Sprintf("%s (account %s)", evt.Reason, evt.Order.Account)
		_ = a.notifier.Notify(ctx, EventOrderRejected, title, msg)
	}
}

func (a *Alerter) handlePosition(ctx context.Context, data []byte) {
	var evt domain.PositionUpdateEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		a.logger.DebugContext(ctx, "bad position event", slog.String("error", err.Error()))
		return
	}

	switch evt.Kind {
	case domain.PositionDiscrepancy:
		title := fmt.Sprintf("Reconciliation discrepancy: %s", evt.Position.SymbolCode)
		msg := fmt.Sprintf("%s (account %s)", evt.Reason, evt.Position.Account)
		_ = a.notifier.Notify(ctx, EventDiscrepancy, title, msg)

	case domain.PositionClosed:
		title := fmt.Sprintf("Position closed: %s", evt.Position.SymbolCode)
		msg := fmt.Sprintf("booked P&L %.2f (account %s)",
			evt.Position.BookedPnL, evt.Position.Account)
		_ = a.notifier.Notify(ctx, EventPositionClose, title, msg)
	}
}
