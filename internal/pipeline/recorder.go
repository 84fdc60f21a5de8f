// Package pipeline runs the background persistence tasks of a live session:
// recording terminal orders and closed positions to the database and sweeping
// aged rows into cold storage.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quantfold/tradecore/internal/domain"
)

// Recorder subscribes to the order and position channels and persists every
// terminal order and closed position. Rejections are recorded too, so the
// audit trail distinguishes "rejected" from "never seen".
type Recorder struct {
	bus       domain.EventBus
	orders    domain.OrderStore
	positions domain.PositionHistoryStore
	logger    *slog.Logger
}

// NewRecorder creates a Recorder. Either store may be nil, in which case the
// corresponding event stream is ignored.
func NewRecorder(
	bus domain.EventBus,
	orders domain.OrderStore,
	positions domain.PositionHistoryStore,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		bus:       bus,
		orders:    orders,
		positions: positions,
		logger:    logger.With(slog.String("component", "recorder")),
	}
}

// Run consumes events until the context ends.
func (r *Recorder) Run(ctx context.Context) error {
	orders, err := r.bus.Subscribe(ctx, domain.ChannelOrders)
	if err != nil {
		return err
	}
	positions, err := r.bus.Subscribe(ctx, domain.ChannelPositions)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "recorder started")
	defer r.logger.InfoContext(ctx, "recorder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-orders:
			if !ok {
				return nil
			}
			r.handleOrder(ctx, data)
		case data, ok := <-positions:
			if !ok {
				return nil
			}
			r.handlePosition(ctx, data)
		}
	}
}

func (r *Recorder) handleOrder(ctx context.Context, data []byte) {
	if r.orders == nil {
		return
	}
	var evt domain.OrderUpdateEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.DebugContext(ctx, "bad order event", slog.String("error", err.Error()))
		return
	}
	if !evt.Order.State.IsTerminal() {
		return
	}
	if err := r.orders.Create(ctx, evt.Order); err != nil {
		r.logger.ErrorContext(ctx, "persist order failed",
			slog.String("order_id", evt.Order.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Recorder) handlePosition(ctx context.Context, data []byte) {
	if r.positions == nil {
		return
	}
	var evt domain.PositionUpdateEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		r.logger.DebugContext(ctx, "bad position event", slog.String("error", err.Error()))
		return
	}
	if evt.Kind != domain.PositionClosed {
		return
	}
	if err := r.positions.Create(ctx, evt.Position); err != nil {
		r.logger.ErrorContext(ctx, "persist closed position failed",
			slog.String("symbol_code", evt.Position.SymbolCode),
			slog.String("account", evt.Position.Account),
			slog.String("error", err.Error()),
		)
	}
}
