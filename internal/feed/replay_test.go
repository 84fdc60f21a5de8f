package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
)

var start = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func tickAt(symbol string, offset time.Duration, price float64) domain.Tick {
	return domain.Tick{Symbol: symbol, At: start.Add(offset), Last: price, Size: 1}
}

func TestNextDeliversInTimeOrder(t *testing.T) {
	r := NewReplay()
	r.Load([]domain.BaseData{
		tickAt("ES", 2*time.Second, 102),
		tickAt("NQ", time.Second, 18000),
		tickAt("ES", 0, 100),
	})

	var times []time.Time
	for {
		p, ok := r.Next()
		if !ok {
			break
		}
		times = append(times, p.Time())
	}

	require.Len(t, times, 3)
	assert.True(t, times[0].Before(times[1]))
	assert.True(t, times[1].Before(times[2]))
}

func TestReferencePriceTracksConsumption(t *testing.T) {
	r := NewReplay()
	r.Load([]domain.BaseData{
		tickAt("ES", 0, 100),
		tickAt("ES", time.Second, 105),
	})

	_, err := r.ReferencePrice(context.Background(), "ES", domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrNoPrice, "no price before any point is consumed")

	_, ok := r.Next()
	require.True(t, ok)
	price, err := r.ReferencePrice(context.Background(), "ES", domain.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)

	_, ok = r.Next()
	require.True(t, ok)
	price, err = r.ReferencePrice(context.Background(), "ES", domain.SideSell)
	require.NoError(t, err)
	assert.Equal(t, 105.0, price)
}

func TestMappedSymbolPricesQueryableByCode(t *testing.T) {
	r := NewReplay()
	r.MapSymbol("EURUSD", "EUR/USD-OANDA")
	r.Load([]domain.BaseData{tickAt("EURUSD", 0, 1.1)})

	_, ok := r.Next()
	require.True(t, ok)

	// The trading code is the join key the matching engine uses.
	price, err := r.ReferencePrice(context.Background(), "EUR/USD-OANDA", domain.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 1.1, price)

	// The raw symbol name stays queryable as well.
	price, err = r.ReferencePrice(context.Background(), "EURUSD", domain.SideSell)
	require.NoError(t, err)
	assert.Equal(t, 1.1, price)

	assert.Equal(t, "EUR/USD-OANDA", r.Code("EURUSD"))
	assert.Equal(t, "NQ", r.Code("NQ"), "unmapped names resolve to themselves")
}

func TestFetchHistoricalFiltersSymbolAndWindow(t *testing.T) {
	r := NewReplay()
	r.Load([]domain.BaseData{
		tickAt("ES", 0, 100),
		tickAt("ES", time.Minute, 101),
		tickAt("ES", 2*time.Minute, 102),
		tickAt("NQ", time.Minute, 18000),
	})

	sub := domain.DataSubscription{SymbolName: "ES", SymbolCode: "ES"}
	points, err := r.FetchHistorical(context.Background(), sub, start, start.Add(2*time.Minute))
	require.NoError(t, err)

	require.Len(t, points, 2, "window end is exclusive and NQ is filtered out")
	assert.Equal(t, 100.0, points[0].Price())
	assert.Equal(t, 101.0, points[1].Price())
}

func TestLoadTicksCSV(t *testing.T) {
	input := strings.Join([]string{
		"time,price,volume",
		"2025-06-02T15:00:00Z,100.5,3",
		"2025-06-02T15:00:01Z,100.75,1",
	}, "\n")

	points, err := LoadTicksCSV(strings.NewReader(input), "ES")
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, "ES", points[0].SymbolName())
	assert.Equal(t, 100.5, points[0].Price())
	assert.Equal(t, 3.0, points[0].Volume())
	assert.Equal(t, start, points[0].Time())
}

func TestLoadTicksCSVRejectsBadRow(t *testing.T) {
	input := "2025-06-02T15:00:00Z,not-a-price,3\n"

	_, err := LoadTicksCSV(strings.NewReader(input), "ES")
	assert.Error(t, err)
}

func TestLoadCandlesCSV(t *testing.T) {
	input := strings.Join([]string{
		"time,open,high,low,close,volume",
		"2025-06-02T15:00:00Z,100,104,99,102,250",
	}, "\n")

	res := domain.Resolution{Unit: domain.UnitMinutes, Period: 1}
	points, err := LoadCandlesCSV(strings.NewReader(input), "ES", res)
	require.NoError(t, err)

	require.Len(t, points, 1)
	candle, ok := points[0].(domain.Candle)
	require.True(t, ok)
	assert.Equal(t, 100.0, candle.Open)
	assert.Equal(t, 104.0, candle.High)
	assert.Equal(t, 99.0, candle.Low)
	assert.Equal(t, 102.0, candle.Close)
	assert.Equal(t, 250.0, candle.Vol)
	assert.Equal(t, start.Add(time.Minute), candle.CloseTime)
}
