package consolidator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
)

var base = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func minuteSub(period int) domain.DataSubscription {
	return domain.DataSubscription{
		SymbolName: "ES",
		SymbolCode: "ES",
		Vendor:     domain.VendorSimulated,
		Resolution: domain.Resolution{Unit: domain.UnitMinutes, Period: period},
		BaseKind:   domain.BaseKindTick,
		Market:     domain.MarketFutures,
		Candle:     domain.CandleStandard,
	}
}

func tick(offset time.Duration, price, size float64) domain.Tick {
	return domain.Tick{Symbol: "ES", At: base.Add(offset), Last: price, Size: size}
}

func TestCandlestickBoundaryCorrectness(t *testing.T) {
	c, err := New(minuteSub(1))
	require.NoError(t, err)

	// Two points inside the same truncated window never close a bar.
	_, closed := c.Update(tick(0, 100, 1))
	assert.Nil(t, closed)
	_, closed = c.Update(tick(30*time.Second, 101, 1))
	assert.Nil(t, closed)

	// A point across the boundary always closes exactly one bar.
	open, closed := c.Update(tick(61*time.Second, 102, 1))
	require.NotNil(t, closed)
	assert.Equal(t, base, closed.OpenTime)
	assert.Equal(t, base.Add(time.Minute), closed.CloseTime)
	assert.Equal(t, 100.0, closed.Open)
	assert.Equal(t, 101.0, closed.High)
	assert.Equal(t, 101.0, closed.Close)
	assert.Equal(t, 2.0, closed.Vol)

	// The new open bar is seeded entirely from the crossing point.
	assert.Equal(t, base.Add(time.Minute), open.OpenTime)
	assert.Equal(t, 102.0, open.Open)
	assert.Equal(t, 102.0, open.Low)
}

func TestCandlestickReferenceSeries(t *testing.T) {
	// Ten ticks spanning three one-minute windows must reproduce the
	// hand-computed candle series bar for bar.
	c, err := New(minuteSub(1))
	require.NoError(t, err)

	points := []domain.Tick{
		tick(0, 100, 1), tick(10*time.Second, 99, 1), tick(20*time.Second, 103, 2),
		tick(50*time.Second, 102, 1),
		tick(60*time.Second, 102.5, 1), tick(70*time.Second, 104, 1), tick(110*time.Second, 101, 3),
		tick(120*time.Second, 101.5, 2), tick(130*time.Second, 100.5, 1), tick(170*time.Second, 105, 1),
	}

	var closed []domain.Candle
	for _, p := range points {
		if _, bar := c.Update(p); bar != nil {
			closed = append(closed, *bar)
		}
	}

	require.Len(t, closed, 2)
	assert.Equal(t, domain.Candle{
		Symbol: "ES", OpenTime: base, CloseTime: base.Add(time.Minute),
		Open: 100, High: 103, Low: 99, Close: 102, Vol: 5,
	}, closed[0])
	assert.Equal(t, domain.Candle{
		Symbol: "ES", OpenTime: base.Add(time.Minute), CloseTime: base.Add(2 * time.Minute),
		Open: 102.5, High: 104, Low: 101, Close: 101, Vol: 5,
	}, closed[1])

	// Third bar is still in progress.
	open, ok := c.Open()
	require.True(t, ok)
	assert.Equal(t, 101.5, open.Open)
	assert.Equal(t, 105.0, open.Close)
}

func candleAt(offset time.Duration, o, h, l, cl, v float64) domain.Candle {
	return domain.Candle{
		Symbol:    "ES",
		OpenTime:  base.Add(offset),
		CloseTime: base.Add(offset + time.Minute),
		Open:      o, High: h, Low: l, Close: cl, Vol: v,
	}
}

func TestCandleInputPreservesSubBarRange(t *testing.T) {
	// Consolidating one-minute candles into five-minute bars must carry the
	// sub-bars' full range, not just their closes.
	c, err := New(minuteSub(5))
	require.NoError(t, err)

	_, closed := c.Update(candleAt(0, 100, 110, 98, 102, 10))
	assert.Nil(t, closed)
	_, closed = c.Update(candleAt(time.Minute, 102, 103, 95, 101, 5))
	assert.Nil(t, closed)

	_, closed = c.Update(candleAt(5*time.Minute, 101, 101.5, 100.5, 101, 1))
	require.NotNil(t, closed)
	assert.Equal(t, 100.0, closed.Open)
	assert.Equal(t, 110.0, closed.High)
	assert.Equal(t, 95.0, closed.Low)
	assert.Equal(t, 101.0, closed.Close)
	assert.Equal(t, 15.0, closed.Vol)

	// The new open bar seeds from the crossing candle's own OHLC.
	open, ok := c.Open()
	require.True(t, ok)
	assert.Equal(t, 101.5, open.High)
	assert.Equal(t, 100.5, open.Low)
}

func TestCountConsolidatorClosesOnExactCount(t *testing.T) {
	sub := minuteSub(1)
	sub.Resolution = domain.Resolution{Unit: domain.UnitTicks, Period: 3}
	c, err := New(sub)
	require.NoError(t, err)

	_, closed := c.Update(tick(0, 10, 1))
	assert.Nil(t, closed)
	_, closed = c.Update(tick(time.Hour, 12, 1)) // elapsed time is irrelevant
	assert.Nil(t, closed)
	_, closed = c.Update(tick(2*time.Hour, 9, 1))
	require.NotNil(t, closed)

	assert.Equal(t, 10.0, closed.Open)
	assert.Equal(t, 12.0, closed.High)
	assert.Equal(t, 9.0, closed.Low)
	assert.Equal(t, 9.0, closed.Close)
	assert.Equal(t, 3.0, closed.Vol)

	// Counter resets for the next bar.
	_, closed = c.Update(tick(3*time.Hour, 11, 1))
	assert.Nil(t, closed)
}

func TestHeikinAshiSynthesis(t *testing.T) {
	sub := minuteSub(1)
	sub.Candle = domain.CandleHeikinAshi
	c, err := New(sub)
	require.NoError(t, err)

	// First raw bar: O=100 H=104 L=99 C=102. First synthetic bar keeps the
	// real open and close.
	c.Update(tick(0, 100, 1))
	c.Update(tick(10*time.Second, 104, 1))
	c.Update(tick(20*time.Second, 99, 1))
	c.Update(tick(50*time.Second, 102, 1))

	// Second raw bar: O=103 H=106 L=103 C=105.
	_, first := c.Update(tick(60*time.Second, 103, 1))
	require.NotNil(t, first)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 102.0, first.Close)

	c.Update(tick(70*time.Second, 106, 1))
	c.Update(tick(110*time.Second, 105, 1))
	_, second := c.Update(tick(120*time.Second, 105, 1))
	require.NotNil(t, second)

	// ha_open = (100+102)/2 = 101; ha_close = (103+106+103+105)/4 = 104.25.
	assert.InDelta(t, 101.0, second.Open, 1e-9)
	assert.InDelta(t, 104.25, second.Close, 1e-9)
	assert.InDelta(t, 106.0, second.High, 1e-9)
	assert.InDelta(t, 101.0, second.Low, 1e-9)
}

func TestRenkoTwoBrickScenario(t *testing.T) {
	sub := minuteSub(1)
	sub.Candle = domain.CandleRenko
	c, err := New(sub, WithBrickSize(1.0))
	require.NoError(t, err)

	path := []float64{100.0, 100.4, 101.1, 101.3, 102.2}
	var closes []float64
	for i, price := range path {
		_, closed := c.Update(tick(time.Duration(i)*time.Second, price, 1))
		if closed != nil {
			closes = append(closes, closed.Close)
		}
	}

	// Exactly two bricks: the 101.0 and 102.0 crossings.
	assert.Equal(t, []float64{101.0, 102.0}, closes)
	assert.Len(t, c.History(), 2)
}

func TestRenkoDownMoveAndMultiCross(t *testing.T) {
	sub := minuteSub(1)
	sub.Candle = domain.CandleRenko
	c, err := New(sub, WithBrickSize(0.5))
	require.NoError(t, err)

	c.Update(tick(0, 50.0, 1))
	// One point falling 1.2 crosses two brick levels.
	_, closed := c.Update(tick(time.Second, 48.8, 1))
	require.NotNil(t, closed)
	assert.Equal(t, 49.0, closed.Close)
	assert.Len(t, c.History(), 2)

	latest := c.History()[0]
	assert.Equal(t, 49.0, latest.Close)
	older := c.History()[1]
	assert.Equal(t, 49.5, older.Close)
}

func TestRenkoIgnoresUpdateTime(t *testing.T) {
	sub := minuteSub(1)
	sub.Candle = domain.CandleRenko
	c, err := New(sub, WithBrickSize(1.0))
	require.NoError(t, err)

	c.Update(tick(0, 100, 1))
	assert.Nil(t, c.UpdateTime(base.Add(24*time.Hour)))
}

func TestUpdateTimeClosesQuietBar(t *testing.T) {
	c, err := New(minuteSub(1), WithFillForward(true))
	require.NoError(t, err)

	c.Update(tick(0, 100, 1))

	// Clock advance with no data closes the bar and fills forward a
	// zero-range bar seeded from the last close.
	closed := c.UpdateTime(base.Add(time.Minute))
	require.NotNil(t, closed)
	assert.Equal(t, 100.0, closed.Close)

	open, ok := c.Open()
	require.True(t, ok)
	assert.Equal(t, 100.0, open.Open)
	assert.Equal(t, 100.0, open.High)
	assert.Equal(t, 100.0, open.Low)
	assert.Equal(t, base.Add(time.Minute), open.OpenTime)

	// Inside the current window nothing closes.
	assert.Nil(t, c.UpdateTime(base.Add(90*time.Second)))
}

type fixedProvider struct {
	points []domain.BaseData
	gotSub domain.DataSubscription
}

func (f *fixedProvider) FetchHistorical(_ context.Context, sub domain.DataSubscription, from, to time.Time) ([]domain.BaseData, error) {
	f.gotSub = sub
	var out []domain.BaseData
	for _, p := range f.points {
		if !p.Time().Before(from) && !p.Time().After(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestWarmUpIsDeterministic(t *testing.T) {
	provider := &fixedProvider{}
	for i := 0; i < 600; i++ {
		provider.points = append(provider.points, domain.Tick{
			Symbol: "ES",
			At:     base.Add(time.Duration(i) * time.Second),
			Last:   100 + float64(i%7),
			Size:   1,
		})
	}
	end := base.Add(10 * time.Minute)

	run := func() []domain.Candle {
		c, err := New(minuteSub(1))
		require.NoError(t, err)
		require.NoError(t, c.WarmUp(context.Background(), provider, end, 5))
		return c.History()
	}

	first := run()
	second := run()

	require.Len(t, first, 5, "history retains exactly the requested depth")
	assert.Equal(t, first, second)
	// Warm-up fetches at period one of the subscription's unit.
	assert.Equal(t, 1, provider.gotSub.Resolution.Period)
}

func TestNewRejectsBadConfig(t *testing.T) {
	sub := minuteSub(1)
	sub.Candle = domain.CandleRenko
	_, err := New(sub)
	assert.Error(t, err, "renko without brick size")

	sub = minuteSub(0)
	sub.Resolution = domain.Resolution{Unit: domain.UnitTicks, Period: 0}
	_, err = New(sub)
	assert.Error(t, err, "tick bars need a positive period")
}
