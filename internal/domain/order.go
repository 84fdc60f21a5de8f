package domain

import "time"

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the closed set of order variants the matching engine
// evaluates. Enter/Exit variants carry position-lifecycle semantics on top of
// the plain price-trigger types.
type OrderType string

const (
	OrderTypeMarket          OrderType = "market"
	OrderTypeLimit           OrderType = "limit"
	OrderTypeStop            OrderType = "stop"
	OrderTypeStopLimit       OrderType = "stop_limit"
	OrderTypeMarketIfTouched OrderType = "market_if_touched"
	OrderTypeEnterLong       OrderType = "enter_long"
	OrderTypeEnterShort      OrderType = "enter_short"
	OrderTypeExitLong        OrderType = "exit_long"
	OrderTypeExitShort       OrderType = "exit_short"
	OrderTypeUpdateBrackets  OrderType = "update_brackets"
)

// TimeInForce is the order's lifetime policy.
type TimeInForce string

const (
	TIFGoodTillCancelled TimeInForce = "GTC"
	TIFDay               TimeInForce = "DAY"
	TIFImmediateOrCancel TimeInForce = "IOC"
	TIFFillOrKill        TimeInForce = "FOK"
)

// OrderState is the order lifecycle state machine:
//
//	Created -> Accepted -> {Filled | PartiallyFilled -> Filled}
//	                     | Rejected | Cancelled
//	                     | Updated | UpdateRejected
//
// Filled, Rejected, and Cancelled are terminal; no terminal state re-enters
// Accepted.
type OrderState string

const (
	OrderStateCreated         OrderState = "created"
	OrderStateAccepted        OrderState = "accepted"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateRejected        OrderState = "rejected"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateUpdated         OrderState = "updated"
	OrderStateUpdateRejected  OrderState = "update_rejected"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s OrderState) IsTerminal() bool {
	switch s {
	case OrderStateFilled, OrderStateRejected, OrderStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Transitions are one-directional.
func (s OrderState) CanTransition(next OrderState) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case OrderStateCreated:
		switch next {
		case OrderStateAccepted, OrderStateFilled, OrderStatePartiallyFilled,
			OrderStateRejected, OrderStateCancelled,
			OrderStateUpdated, OrderStateUpdateRejected:
			return true
		}
	case OrderStateAccepted, OrderStateUpdated, OrderStateUpdateRejected:
		switch next {
		case OrderStateFilled, OrderStatePartiallyFilled, OrderStateRejected,
			OrderStateCancelled, OrderStateUpdated, OrderStateUpdateRejected:
			return true
		}
	case OrderStatePartiallyFilled:
		switch next {
		case OrderStateFilled, OrderStatePartiallyFilled, OrderStateCancelled:
			return true
		}
	}
	return false
}

// Brackets is an optional protective stop-loss / take-profit pair attached to
// an Enter order. It is owned by the position it protects and replaced in
// place by UpdateBrackets orders. Nil levels mean the leg is absent.
type Brackets struct {
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
}

// Clone returns a deep copy so a position never aliases a caller's levels.
func (b *Brackets) Clone() *Brackets {
	if b == nil {
		return nil
	}
	out := &Brackets{}
	if b.StopLoss != nil {
		v := *b.StopLoss
		out.StopLoss = &v
	}
	if b.TakeProfit != nil {
		v := *b.TakeProfit
		out.TakeProfit = &v
	}
	return out
}

// Order describes a trading intent routed through the matching engine.
type Order struct {
	ID             string      `json:"id"`
	Account        string      `json:"account"`
	Symbol         string      `json:"symbol"`
	SymbolCode     string      `json:"symbol_code"`
	Side           Side        `json:"side"`
	Type           OrderType   `json:"type"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	LimitPrice     *float64    `json:"limit_price,omitempty"`
	TriggerPrice   *float64    `json:"trigger_price,omitempty"`
	TIF            TimeInForce `json:"time_in_force"`
	State          OrderState  `json:"state"`
	Reason         string      `json:"reason,omitempty"`
	Tag            string      `json:"tag,omitempty"`
	Brackets       *Brackets   `json:"brackets,omitempty"`
	AverageFill    float64     `json:"average_fill,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	FilledAt       *time.Time  `json:"filled_at,omitempty"`
}

// OpenQuantity returns the quantity still unfilled.
func (o *Order) OpenQuantity() float64 {
	return o.Quantity - o.FilledQuantity
}

// Transition moves the order to next, recording the timestamp. It returns
// false and leaves the order untouched when the step is illegal.
func (o *Order) Transition(next OrderState, at time.Time) bool {
	if !o.State.CanTransition(next) {
		return false
	}
	o.State = next
	o.UpdatedAt = at
	if next == OrderStateFilled {
		t := at
		o.FilledAt = &t
	}
	return true
}
