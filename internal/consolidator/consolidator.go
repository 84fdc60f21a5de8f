// Package consolidator converts streams of raw base-data points into open and
// closed bars of a target resolution and type. One consolidator serves exactly
// one subscription and is never shared.
package consolidator

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/rolling"
)

// Kind is the closed set of consolidation variants. Dispatch is a single
// switch per operation so the variant set stays exhaustively checked.
type Kind string

const (
	// KindCount closes a bar after exactly N raw points, regardless of time.
	KindCount Kind = "count"
	// KindCandlestick closes a bar when the truncated time boundary advances.
	KindCandlestick Kind = "candlestick"
	// KindHeikinAshi is candlestick boundary logic with synthetic OHLC.
	KindHeikinAshi Kind = "heikin_ashi"
	// KindRenko closes a brick on each fixed-size price move, ignoring time.
	KindRenko Kind = "renko"
)

const defaultHistoryDepth = 256

// Option configures a Consolidator at construction time.
type Option func(*Consolidator)

// WithBrickSize sets the Renko brick size. Required for Renko subscriptions.
func WithBrickSize(size float64) Option {
	return func(c *Consolidator) { c.brickSize = size }
}

// WithFillForward makes UpdateTime open the next bar seeded with the previous
// close as a zero-range bar, so quiet periods still produce a bar series.
func WithFillForward(on bool) Option {
	return func(c *Consolidator) { c.fillForward = on }
}

// WithHistoryDepth sets how many closed bars are retained.
func WithHistoryDepth(depth int) Option {
	return func(c *Consolidator) { c.historyDepth = depth }
}

// Consolidator is a per-subscription bar-building state machine.
type Consolidator struct {
	sub          domain.DataSubscription
	kind         Kind
	brickSize    float64
	fillForward  bool
	historyDepth int
	history      *rolling.Window[domain.Candle]

	open  *domain.Candle
	count int

	// Heikin-Ashi carries the previous synthetic open/close.
	prevHAOpen  float64
	prevHAClose float64
	hasPrevHA   bool

	// Renko tracks the last brick close and the extremes since it.
	lastBrick     float64
	brickHigh     float64
	brickLow      float64
	brickOpenTime time.Time
	hasBrick      bool
}

// New builds the consolidator variant implied by the subscription: tick
// resolutions consolidate by count, Renko candles by price movement, and
// time resolutions by truncated boundary (standard or Heikin-Ashi).
func New(sub domain.DataSubscription, opts ...Option) (*Consolidator, error) {
	c := &Consolidator{sub: sub, historyDepth: defaultHistoryDepth}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case sub.Candle == domain.CandleRenko:
		if c.brickSize <= 0 {
			return nil, fmt.Errorf("consolidator: renko subscription %s requires a positive brick size", sub.SymbolName)
		}
		c.kind = KindRenko
	case sub.Resolution.Unit == domain.UnitTicks:
		if sub.Resolution.Period < 1 {
			return nil, fmt.Errorf("consolidator: tick subscription %s requires a positive period", sub.SymbolName)
		}
		c.kind = KindCount
	case sub.Candle == domain.CandleHeikinAshi:
		c.kind = KindHeikinAshi
	default:
		if sub.Resolution.Interval() <= 0 {
			return nil, fmt.Errorf("consolidator: subscription %s has no usable resolution", sub.SymbolName)
		}
		c.kind = KindCandlestick
	}

	c.history = rolling.New[domain.Candle](c.historyDepth)
	return c, nil
}

// Kind returns the active consolidation variant.
func (c *Consolidator) Kind() Kind { return c.kind }

// Subscription returns the subscription this consolidator serves.
func (c *Consolidator) Subscription() domain.DataSubscription { return c.sub }

// Update incorporates one raw point. The returned open bar always reflects
// the in-progress bar after the point; closed is non-nil exactly when the
// point caused the current bar to close. When a single Renko point crosses
// several brick levels every brick is retained in history and the last one is
// returned.
func (c *Consolidator) Update(p domain.BaseData) (domain.Candle, *domain.Candle) {
	switch c.kind {
	case KindCount:
		return c.updateCount(p)
	case KindRenko:
		return c.updateRenko(p)
	default:
		return c.updateTimeBased(p)
	}
}

// UpdateTime closes the current bar purely by clock advance, with no new
// data. Only time-based variants support it; count and Renko consolidators
// always return nil.
func (c *Consolidator) UpdateTime(now time.Time) *domain.Candle {
	if c.kind == KindCount || c.kind == KindRenko {
		return nil
	}
	if c.open == nil {
		return nil
	}
	interval := c.sub.Resolution.Interval()
	if now.UTC().Before(c.open.OpenTime.Add(interval)) {
		return nil
	}

	closed := c.closeTimeBar()
	if c.fillForward {
		boundary := c.sub.Resolution.Truncate(now)
		c.open = &domain.Candle{
			Symbol:   c.sub.SymbolName,
			OpenTime: boundary,
			Open:     closed.Close,
			High:     closed.Close,
			Low:      closed.Close,
			Close:    closed.Close,
		}
	}
	return closed
}

// History returns retained closed bars, most recent first.
func (c *Consolidator) History() []domain.Candle {
	return c.history.Values()
}

// Open returns the in-progress bar, if any.
func (c *Consolidator) Open() (domain.Candle, bool) {
	if c.open == nil {
		return domain.Candle{}, false
	}
	return *c.open, true
}

// ---------------------------------------------------------------------------
// time-based (candlestick / Heikin-Ashi)
// ---------------------------------------------------------------------------

func (c *Consolidator) updateTimeBased(p domain.BaseData) (domain.Candle, *domain.Candle) {
	boundary := c.sub.Resolution.Truncate(p.Time())

	var closed *domain.Candle
	if c.open == nil {
		c.open = newBar(c.sub.SymbolName, boundary, p)
	} else if boundary.After(c.open.OpenTime) {
		closed = c.closeTimeBar()
		c.open = newBar(c.sub.SymbolName, boundary, p)
	} else {
		mergePoint(c.open, p)
	}
	return *c.open, closed
}

// closeTimeBar finalizes the open bar, applies Heikin-Ashi synthesis when
// configured, retains it, and clears the open slot.
func (c *Consolidator) closeTimeBar() *domain.Candle {
	bar := *c.open
	bar.CloseTime = bar.OpenTime.Add(c.sub.Resolution.Interval())
	if c.kind == KindHeikinAshi {
		bar = c.synthesize(bar)
	}
	c.history.Add(bar)
	c.open = nil
	return &bar
}

// synthesize converts a raw bar into its Heikin-Ashi form:
//
//	ha_close = (o+h+l+c)/4
//	ha_open  = (prev_ha_open + prev_ha_close)/2, real open on the first bar
//	ha_high  = max(h, ha_open, ha_close)
//	ha_low   = min(l, ha_open, ha_close)
func (c *Consolidator) synthesize(raw domain.Candle) domain.Candle {
	haClose := (raw.Open + raw.High + raw.Low + raw.Close) / 4
	haOpen := raw.Open
	if c.hasPrevHA {
		haOpen = (c.prevHAOpen + c.prevHAClose) / 2
	} else {
		haClose = raw.Close
	}

	out := raw
	out.Open = haOpen
	out.Close = haClose
	out.High = max3(raw.High, haOpen, haClose)
	out.Low = min3(raw.Low, haOpen, haClose)

	c.prevHAOpen = haOpen
	c.prevHAClose = haClose
	c.hasPrevHA = true
	return out
}

// ---------------------------------------------------------------------------
// count
// ---------------------------------------------------------------------------

func (c *Consolidator) updateCount(p domain.BaseData) (domain.Candle, *domain.Candle) {
	if c.open == nil {
		c.open = newBar(c.sub.SymbolName, p.Time().UTC(), p)
		c.count = 1
	} else {
		mergePoint(c.open, p)
		c.count++
	}

	var closed *domain.Candle
	if c.count >= c.sub.Resolution.Period {
		bar := *c.open
		bar.CloseTime = p.Time().UTC()
		c.history.Add(bar)
		c.open = nil
		c.count = 0
		closed = &bar
		return bar, closed
	}
	return *c.open, nil
}

// ---------------------------------------------------------------------------
// renko
// ---------------------------------------------------------------------------

func (c *Consolidator) updateRenko(p domain.BaseData) (domain.Candle, *domain.Candle) {
	price := p.Price()
	at := p.Time().UTC()

	if !c.hasBrick {
		c.hasBrick = true
		c.lastBrick = price
		c.brickHigh = price
		c.brickLow = price
		c.brickOpenTime = at
		return c.openRenko(price), nil
	}

	if price > c.brickHigh {
		c.brickHigh = price
	}
	if price < c.brickLow {
		c.brickLow = price
	}

	var closed *domain.Candle
	for price >= c.lastBrick+c.brickSize {
		closed = c.emitBrick(c.lastBrick+c.brickSize, at)
	}
	for price <= c.lastBrick-c.brickSize {
		closed = c.emitBrick(c.lastBrick-c.brickSize, at)
	}
	return c.openRenko(price), closed
}

// emitBrick closes one brick at the given level and resets the watermarks.
func (c *Consolidator) emitBrick(level float64, at time.Time) *domain.Candle {
	bar := domain.Candle{
		Symbol:    c.sub.SymbolName,
		OpenTime:  c.brickOpenTime,
		CloseTime: at,
		Open:      c.lastBrick,
		High:      c.brickHigh,
		Low:       c.brickLow,
		Close:     level,
	}
	if level > bar.High {
		bar.High = level
	}
	if level < bar.Low {
		bar.Low = level
	}
	c.history.Add(bar)

	c.lastBrick = level
	c.brickHigh = level
	c.brickLow = level
	c.brickOpenTime = at
	return &bar
}

func (c *Consolidator) openRenko(price float64) domain.Candle {
	return domain.Candle{
		Symbol:   c.sub.SymbolName,
		OpenTime: c.brickOpenTime,
		Open:     c.lastBrick,
		High:     c.brickHigh,
		Low:      c.brickLow,
		Close:    price,
	}
}

// ---------------------------------------------------------------------------
// warm-up
// ---------------------------------------------------------------------------

// WarmUp drives the consolidator forward over historical data ending at end,
// fetched at the finest resolution not coarser than the target, and retains
// the last depth closed bars. Every point goes through Update so warm-up is
// deterministic regardless of run mode.
func (c *Consolidator) WarmUp(ctx context.Context, provider domain.HistoricalProvider, end time.Time, depth int) error {
	if depth < 1 {
		depth = 1
	}
	c.historyDepth = depth
	c.history = rolling.New[domain.Candle](depth)

	from := end.Add(-warmupLookback(c.sub, depth))
	points, err := provider.FetchHistorical(ctx, warmupSubscription(c.sub), from, end)
	if err != nil {
		return fmt.Errorf("consolidator: warm-up fetch %s: %w", c.sub.SymbolName, err)
	}

	for _, p := range points {
		if p.Time().After(end) {
			break
		}
		c.Update(p)
	}
	return nil
}

// warmupSubscription narrows the subscription to the finest fetchable
// resolution that is not coarser than the target: period one of the same
// unit for time bars, the subscription itself for tick data.
func warmupSubscription(sub domain.DataSubscription) domain.DataSubscription {
	if !sub.Resolution.IsTimeBased() {
		return sub
	}
	out := sub
	out.Resolution = domain.Resolution{Unit: sub.Resolution.Unit, Period: 1}
	out.Candle = domain.CandleStandard
	return out
}

// warmupLookback sizes the fetch span: twice the requested bar depth for time
// resolutions, a flat day for tick and Renko subscriptions whose bar span is
// unknowable in advance.
func warmupLookback(sub domain.DataSubscription, depth int) time.Duration {
	iv := sub.Resolution.Interval()
	if iv <= 0 {
		return 24 * time.Hour
	}
	return iv * time.Duration(2*depth)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newBar(symbol string, openTime time.Time, p domain.BaseData) *domain.Candle {
	if c, ok := p.(domain.Candle); ok {
		return &domain.Candle{
			Symbol:   symbol,
			OpenTime: openTime,
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Vol:      c.Vol,
		}
	}
	price := p.Price()
	return &domain.Candle{
		Symbol:   symbol,
		OpenTime: openTime,
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Vol:      p.Volume(),
	}
}

// mergePoint folds one point into the open bar. Candle inputs carry their own
// range, so their full high/low merges in rather than just the close.
func mergePoint(bar *domain.Candle, p domain.BaseData) {
	if c, ok := p.(domain.Candle); ok {
		if c.High > bar.High {
			bar.High = c.High
		}
		if c.Low < bar.Low {
			bar.Low = c.Low
		}
		bar.Close = c.Close
		bar.Vol += c.Vol
		return
	}
	price := p.Price()
	if price > bar.High {
		bar.High = price
	}
	if price < bar.Low {
		bar.Low = price
	}
	bar.Close = price
	bar.Vol += p.Volume()
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
