// Package domain defines the core value types, events, and collaborator
// interfaces shared by the consolidation, matching, and ledger components.
package domain

import (
	"fmt"
	"time"
)

// DataVendor identifies the market-data source behind a subscription.
type DataVendor string

const (
	VendorSimulated DataVendor = "simulated"
	VendorRithmic   DataVendor = "rithmic"
	VendorOanda     DataVendor = "oanda"
	VendorDataBento DataVendor = "databento"
	VendorBitget    DataVendor = "bitget"
)

// MarketType identifies the asset class of an instrument.
type MarketType string

const (
	MarketForex   MarketType = "forex"
	MarketFutures MarketType = "futures"
	MarketCrypto  MarketType = "crypto"
	MarketEquity  MarketType = "equity"
)

// BaseDataKind identifies the raw event type a subscription delivers.
type BaseDataKind string

const (
	BaseKindTick   BaseDataKind = "tick"
	BaseKindQuote  BaseDataKind = "quote"
	BaseKindCandle BaseDataKind = "candle"
)

// CandleKind selects the bar construction applied on top of the resolution.
type CandleKind string

const (
	CandleStandard   CandleKind = "standard"
	CandleHeikinAshi CandleKind = "heikin_ashi"
	CandleRenko      CandleKind = "renko"
)

// ResolutionUnit is the bucketing unit for bars.
type ResolutionUnit string

const (
	UnitTicks   ResolutionUnit = "ticks"
	UnitSeconds ResolutionUnit = "seconds"
	UnitMinutes ResolutionUnit = "minutes"
	UnitHours   ResolutionUnit = "hours"
	UnitDays    ResolutionUnit = "days"
)

// Resolution is the bar size: a unit and a period count, e.g. {minutes, 5}
// for five-minute bars or {ticks, 100} for hundred-tick bars.
type Resolution struct {
	Unit   ResolutionUnit `json:"unit"`
	Period int            `json:"period"`
}

// Interval returns the wall-clock span of one bar. Tick resolutions have no
// time span and return zero.
func (r Resolution) Interval() time.Duration {
	switch r.Unit {
	case UnitSeconds:
		return time.Duration(r.Period) * time.Second
	case UnitMinutes:
		return time.Duration(r.Period) * time.Minute
	case UnitHours:
		return time.Duration(r.Period) * time.Hour
	case UnitDays:
		return time.Duration(r.Period) * 24 * time.Hour
	default:
		return 0
	}
}

// Truncate returns the open-time boundary of the bar containing t. Times are
// normalised to UTC so two events in the same window always map to the same
// boundary regardless of their zone.
func (r Resolution) Truncate(t time.Time) time.Time {
	iv := r.Interval()
	if iv <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(iv)
}

// IsTimeBased reports whether bars of this resolution close on the clock
// rather than on event counts or price movement.
func (r Resolution) IsTimeBased() bool {
	return r.Unit != UnitTicks
}

func (r Resolution) String() string {
	return fmt.Sprintf("%d %s", r.Period, r.Unit)
}

// DataSubscription identifies a tradable instrument together with its data
// vendor, resolution, base-data type, market, and candle construction. It is
// the join key between consolidators, data streams, and position symbol
// codes. Treat values as immutable once constructed.
type DataSubscription struct {
	SymbolName string         `json:"symbol_name"`
	SymbolCode string         `json:"symbol_code"`
	Vendor     DataVendor     `json:"vendor"`
	Resolution Resolution     `json:"resolution"`
	BaseKind   BaseDataKind   `json:"base_kind"`
	Market     MarketType     `json:"market"`
	Candle     CandleKind     `json:"candle_kind,omitempty"`
}

// Key returns the canonical map key for this subscription.
func (s DataSubscription) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d%s|%s|%s",
		s.SymbolName, s.Vendor, s.BaseKind,
		s.Resolution.Period, s.Resolution.Unit,
		s.Market, s.Candle,
	)
}
