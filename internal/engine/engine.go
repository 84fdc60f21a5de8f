// Package engine implements the order-matching state machine. It is invoked
// once per time advance with the pending orders and a reference-price lookup;
// all financial state lives in the ledgers, the engine holds none of its own.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/ledger"
)

// Engine turns pending orders plus current market prices into fills,
// rejections, and position changes. It is re-entrant per Match call.
type Engine struct {
	ledgers *ledger.Service
	prices  domain.PriceProvider
	bus     domain.EventBus
	logger  *slog.Logger
}

// New creates a matching engine.
func New(ledgers *ledger.Service, prices domain.PriceProvider, bus domain.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		ledgers: ledgers,
		prices:  prices,
		bus:     bus,
		logger:  logger.With(slog.String("component", "engine")),
	}
}

// Match evaluates every pending order in submission order at the given
// simulation time and returns the orders that remain pending. Orders reaching
// a terminal state, and bracket updates that completed, are dropped from the
// returned set; everything else is retained for the next time advance.
func (e *Engine) Match(ctx context.Context, pending []*domain.Order, now time.Time) []*domain.Order {
	remaining := pending[:0]

	for _, o := range pending {
		if e.evaluate(ctx, o, now) {
			remaining = append(remaining, o)
		}
	}
	return remaining
}

// evaluate processes one order and reports whether it stays pending.
func (e *Engine) evaluate(ctx context.Context, o *domain.Order, now time.Time) bool {
	led, err := e.ledgers.GetOrInit(ctx, o.Account)
	if err != nil {
		e.reject(ctx, o, now, fmt.Sprintf("ledger unavailable: %v", err))
		return false
	}

	if o.Type == domain.OrderTypeUpdateBrackets {
		e.applyBracketUpdate(ctx, o, led, now)
		return false
	}

	price, err := e.prices.ReferencePrice(ctx, o.SymbolCode, o.Side)
	if err != nil {
		// No price yet: the order cannot be evaluated this tick. Accept it
		// and try again on the next advance.
		e.accept(ctx, o, now)
		return true
	}

	ok, reason := e.trigger(o, led, price)
	if reason != "" {
		e.reject(ctx, o, now, reason)
		return false
	}
	if !ok {
		e.accept(ctx, o, now)
		return true
	}

	e.fill(ctx, o, led, now, price)
	return false
}

// trigger resolves whether the order fills at the given reference price. A
// non-empty reason means the order must be rejected instead.
func (e *Engine) trigger(o *domain.Order, led *ledger.Ledger, price float64) (bool, string) {
	switch o.Type {
	case domain.OrderTypeMarket, domain.OrderTypeEnterLong, domain.OrderTypeEnterShort:
		return true, ""

	case domain.OrderTypeLimit:
		if o.LimitPrice == nil {
			return false, "limit order has no limit price"
		}
		return limitSatisfied(o.Side, price, *o.LimitPrice), ""

	case domain.OrderTypeStop, domain.OrderTypeMarketIfTouched:
		if o.TriggerPrice == nil {
			return false, "stop order has no trigger price"
		}
		return stopTouched(o.Side, price, *o.TriggerPrice), ""

	case domain.OrderTypeStopLimit:
		if o.TriggerPrice == nil || o.LimitPrice == nil {
			return false, "stop-limit order needs both trigger and limit prices"
		}
		return stopTouched(o.Side, price, *o.TriggerPrice) &&
			limitSatisfied(o.Side, price, *o.LimitPrice), ""

	case domain.OrderTypeExitLong:
		pos, held := led.Position(o.SymbolCode)
		if !held || pos.Side != domain.PositionLong {
			return false, "No long position to exit"
		}
		return true, ""

	case domain.OrderTypeExitShort:
		pos, held := led.Position(o.SymbolCode)
		if !held || pos.Side != domain.PositionShort {
			return false, "No short position to exit"
		}
		return true, ""

	default:
		return false, fmt.Sprintf("unsupported order type %q", o.Type)
	}
}

// limitSatisfied: buys fill at or below the limit, sells at or above.
func limitSatisfied(side domain.Side, price, limit float64) bool {
	if side == domain.SideBuy {
		return price <= limit
	}
	return price >= limit
}

// stopTouched: buys trigger at or below the level, sells at or above. This
// direction mirrors the platform's established behavior and is deliberate;
// do not flip it to conventional stop semantics.
func stopTouched(side domain.Side, price, trigger float64) bool {
	if side == domain.SideBuy {
		return price <= trigger
	}
	return price >= trigger
}

// fill routes the triggered order into the ledger and finalizes its state.
func (e *Engine) fill(ctx context.Context, o *domain.Order, led *ledger.Ledger, now time.Time, price float64) {
	quantity := o.Quantity
	side := positionSide(o)

	switch o.Type {
	case domain.OrderTypeEnterLong, domain.OrderTypeEnterShort:
		// An opposing open position is closed in full first; the ledger does
		// both steps when the fill quantity covers the existing size.
		if pos, held := led.Position(o.SymbolCode); held && pos.Side == side.Opposite() {
			quantity += pos.OpenQuantity
		}

	case domain.OrderTypeExitLong, domain.OrderTypeExitShort:
		// Exits flatten, they never reverse: clamp to the open size.
		if pos, held := led.Position(o.SymbolCode); held && pos.OpenQuantity < quantity {
			quantity = pos.OpenQuantity
		}
	}

	evt, err := led.UpdateOrCreatePosition(ctx, o.Symbol, o.SymbolCode, quantity, side, now, price, o.Brackets)
	if err != nil {
		e.reject(ctx, o, now, err.Error())
		return
	}

	o.FilledQuantity = o.Quantity
	o.AverageFill = price
	o.Transition(domain.OrderStateFilled, now)
	e.publishOrder(ctx, domain.OrderUpdateEvent{Kind: domain.OrderFilled, Order: *o, At: now})

	e.logger.InfoContext(ctx, "order filled",
		slog.String("order_id", o.ID),
		slog.String("account", o.Account),
		slog.String("symbol", o.SymbolCode),
		slog.Float64("price", price),
		slog.Float64("quantity", o.Quantity),
		slog.String("position_event", string(evt.Kind)),
	)
}

// positionSide maps the order to the direction of exposure its fill creates.
func positionSide(o *domain.Order) domain.PositionSide {
	switch o.Type {
	case domain.OrderTypeEnterLong:
		return domain.PositionLong
	case domain.OrderTypeEnterShort:
		return domain.PositionShort
	case domain.OrderTypeExitLong:
		return domain.PositionShort
	case domain.OrderTypeExitShort:
		return domain.PositionLong
	default:
		if o.Side == domain.SideBuy {
			return domain.PositionLong
		}
		return domain.PositionShort
	}
}

func (e *Engine) applyBracketUpdate(ctx context.Context, o *domain.Order, led *ledger.Ledger, now time.Time) {
	if err := led.UpdateBrackets(o.SymbolCode, o.Brackets); err != nil {
		o.Reason = fmt.Sprintf("no position on %s to update brackets", o.SymbolCode)
		o.Transition(domain.OrderStateUpdateRejected, now)
		e.publishOrder(ctx, domain.OrderUpdateEvent{
			Kind:   domain.OrderUpdateRejected,
			Order:  *o,
			Reason: o.Reason,
			At:     now,
		})
		return
	}

	o.Transition(domain.OrderStateUpdated, now)
	e.publishOrder(ctx, domain.OrderUpdateEvent{Kind: domain.OrderUpdated, Order: *o, At: now})
}

// accept moves a freshly submitted order to Accepted exactly once.
func (e *Engine) accept(ctx context.Context, o *domain.Order, now time.Time) {
	if o.State != domain.OrderStateCreated {
		return
	}
	o.Transition(domain.OrderStateAccepted, now)
	e.publishOrder(ctx, domain.OrderUpdateEvent{Kind: domain.OrderAccepted, Order: *o, At: now})
}

func (e *Engine) reject(ctx context.Context, o *domain.Order, now time.Time, reason string) {
	o.Reason = reason
	o.Transition(domain.OrderStateRejected, now)
	e.publishOrder(ctx, domain.OrderUpdateEvent{
		Kind:   domain.OrderRejected,
		Order:  *o,
		Reason: reason,
		At:     now,
	})

	e.logger.InfoContext(ctx, "order rejected",
		slog.String("order_id", o.ID),
		slog.String("account", o.Account),
		slog.String("reason", reason),
	)
}

func (e *Engine) publishOrder(ctx context.Context, evt domain.OrderUpdateEvent) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.WarnContext(ctx, "marshal order event failed", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelOrders, payload); err != nil {
		e.logger.WarnContext(ctx, "publish order event failed",
			slog.String("kind", string(evt.Kind)),
			slog.String("error", err.Error()),
		)
	}
}
