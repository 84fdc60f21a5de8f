package domain

import "time"

// PositionSide is the direction of a held exposure.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Sign returns +1 for long exposure and -1 for short. Realized P&L on a
// closing fill is (fill - average) * quantity * Sign.
func (s PositionSide) Sign() float64 {
	if s == PositionShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionLong {
		return PositionShort
	}
	return PositionLong
}

// Position is a held exposure on one instrument inside one account.
//
// Invariants maintained by the ledger:
//   - OpenQuantity + ClosedQuantity only grows until Closed is set.
//   - AveragePrice is the volume-weighted mean of size-increasing fills and
//     is never touched by reducing fills.
//   - Once Closed is true the position is immutable; a reversal creates a
//     fresh position on the opposite side.
type Position struct {
	ID             string       `json:"id"`
	Account        string       `json:"account"`
	Symbol         string       `json:"symbol"`
	SymbolCode     string       `json:"symbol_code"`
	Side           PositionSide `json:"side"`
	OpenQuantity   float64      `json:"open_quantity"`
	ClosedQuantity float64      `json:"closed_quantity"`
	AveragePrice   float64      `json:"average_price"`
	OpenPnL        float64      `json:"open_pnl"`
	BookedPnL      float64      `json:"booked_pnl"`
	HighestPrice   float64      `json:"highest_price"`
	LowestPrice    float64      `json:"lowest_price"`
	Brackets       *Brackets    `json:"brackets,omitempty"`
	OpenedAt       time.Time    `json:"opened_at"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	Closed         bool         `json:"closed"`
}

// Mark updates the open P&L and the high/low watermarks against price.
func (p *Position) Mark(price float64) {
	if p.Closed {
		return
	}
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}
	p.OpenPnL = (price - p.AveragePrice) * p.OpenQuantity * p.Side.Sign()
}
