package domain

import "time"

// Event channels. Fills, rejections, and reconciliation discrepancies all
// travel the same stream so a consumer can never confuse "silently ignored"
// with "explicitly rejected".
const (
	ChannelOrders    = "orders"
	ChannelPositions = "positions"
	ChannelBars      = "bars"
	ChannelStatus    = "status"
	// ChannelBrokerAccounts carries broker-reported AccountSnapshot payloads
	// that live reconciliation consumes.
	ChannelBrokerAccounts = "broker:accounts"
)

// OrderEventKind labels an order lifecycle event.
type OrderEventKind string

const (
	OrderAccepted        OrderEventKind = "order_accepted"
	OrderFilled          OrderEventKind = "order_filled"
	OrderPartiallyFilled OrderEventKind = "order_partially_filled"
	OrderRejected        OrderEventKind = "order_rejected"
	OrderCancelled       OrderEventKind = "order_cancelled"
	OrderUpdated         OrderEventKind = "order_updated"
	OrderUpdateRejected  OrderEventKind = "order_update_rejected"
)

// OrderUpdateEvent is emitted whenever an order changes lifecycle state.
type OrderUpdateEvent struct {
	Kind   OrderEventKind `json:"kind"`
	Order  Order          `json:"order"`
	Reason string         `json:"reason,omitempty"`
	At     time.Time      `json:"at"`
}

// PositionEventKind labels a position lifecycle event.
type PositionEventKind string

const (
	PositionOpened      PositionEventKind = "position_opened"
	PositionIncreased   PositionEventKind = "position_increased"
	PositionReduced     PositionEventKind = "position_reduced"
	PositionClosed      PositionEventKind = "position_closed"
	PositionDiscrepancy PositionEventKind = "position_discrepancy"
	PositionInSync      PositionEventKind = "position_in_sync"
)

// PositionUpdateEvent is emitted for every position mutation, including
// reconciliation discrepancies surfaced from broker-reported state.
type PositionUpdateEvent struct {
	Kind        PositionEventKind `json:"kind"`
	Position    Position          `json:"position"`
	RealizedPnL float64           `json:"realized_pnl,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	At          time.Time         `json:"at"`
}

// BarEvent is emitted when a consolidator closes a bar.
type BarEvent struct {
	Subscription DataSubscription `json:"subscription"`
	Bar          Candle           `json:"bar"`
}
