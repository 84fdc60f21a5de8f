package domain

import "time"

// BaseData is a single raw market-data point fed into a consolidator. The
// three concrete kinds are Tick, Quote, and Candle.
type BaseData interface {
	// SymbolName is the instrument the point belongs to.
	SymbolName() string
	// Time is the event timestamp.
	Time() time.Time
	// Price is the representative trade price for this point.
	Price() float64
	// Volume is the traded size carried by this point, zero when unknown.
	Volume() float64
}

// Tick is a single trade print.
type Tick struct {
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`
	Last   float64   `json:"last"`
	Size   float64   `json:"size"`
}

func (t Tick) SymbolName() string { return t.Symbol }
func (t Tick) Time() time.Time    { return t.At }
func (t Tick) Price() float64     { return t.Last }
func (t Tick) Volume() float64    { return t.Size }

// Quote is a top-of-book update. Its representative price is the midpoint.
type Quote struct {
	Symbol  string    `json:"symbol"`
	At      time.Time `json:"at"`
	Bid     float64   `json:"bid"`
	Ask     float64   `json:"ask"`
	BidSize float64   `json:"bid_size"`
	AskSize float64   `json:"ask_size"`
}

func (q Quote) SymbolName() string { return q.Symbol }
func (q Quote) Time() time.Time    { return q.At }
func (q Quote) Price() float64     { return (q.Bid + q.Ask) / 2 }
func (q Quote) Volume() float64    { return 0 }

// Candle is an OHLCV bar. It is both a consolidator output and, for coarse
// subscriptions, a consolidator input (bars of bars).
type Candle struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Vol       float64   `json:"volume"`
}

func (c Candle) SymbolName() string { return c.Symbol }
func (c Candle) Time() time.Time    { return c.OpenTime }
func (c Candle) Price() float64     { return c.Close }
func (c Candle) Volume() float64    { return c.Vol }

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }
