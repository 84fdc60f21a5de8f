package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
	"github.com/quantfold/tradecore/internal/ledger"
)

var now = time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

// fakePrices is a static reference-price table keyed by symbol code.
type fakePrices struct {
	prices map[string]float64
}

func (f *fakePrices) ReferencePrice(_ context.Context, code string, _ domain.Side) (float64, error) {
	p, ok := f.prices[code]
	if !ok {
		return 0, domain.ErrNoPrice
	}
	return p, nil
}

func newHarness(prices map[string]float64) (*Engine, *ledger.Service) {
	svc := ledger.NewService(ledger.ServiceConfig{StartingCash: 100_000, Currency: "USD"}, nil, slog.Default())
	eng := New(svc, &fakePrices{prices: prices}, nil, slog.Default())
	return eng, svc
}

func order(typ domain.OrderType, side domain.Side, qty float64) *domain.Order {
	return &domain.Order{
		ID:         string(typ) + "-" + string(side) + "-test",
		Account:    "ACC-1",
		Symbol:     "ES",
		SymbolCode: "ES",
		Side:       side,
		Type:       typ,
		Quantity:   qty,
		TIF:        domain.TIFGoodTillCancelled,
		State:      domain.OrderStateCreated,
		CreatedAt:  now,
	}
}

func TestEnterLongScenario(t *testing.T) {
	// $100,000 account, no position; EnterLong 30 @ 150 fills and opens a
	// long position at the reference price.
	eng, svc := newHarness(map[string]float64{"ES": 150})

	o := order(domain.OrderTypeEnterLong, domain.SideBuy, 30)
	remaining := eng.Match(context.Background(), []*domain.Order{o}, now)

	assert.Empty(t, remaining)
	assert.Equal(t, domain.OrderStateFilled, o.State)
	assert.Equal(t, 30.0, o.FilledQuantity)

	led, err := svc.Get("ACC-1")
	require.NoError(t, err)

	pos, ok := led.Position("ES")
	require.True(t, ok)
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.Equal(t, 30.0, pos.OpenQuantity)
	assert.Equal(t, 150.0, pos.AveragePrice)
	assert.Equal(t, 4500.0, led.Snapshot().CashUsed)
}

func TestExitLongScenario(t *testing.T) {
	eng, svc := newHarness(map[string]float64{"ES": 150})

	enter := order(domain.OrderTypeEnterLong, domain.SideBuy, 30)
	eng.Match(context.Background(), []*domain.Order{enter}, now)

	eng.prices.(*fakePrices).prices["ES"] = 155
	exit := order(domain.OrderTypeExitLong, domain.SideSell, 30)
	remaining := eng.Match(context.Background(), []*domain.Order{exit}, now.Add(time.Minute))

	assert.Empty(t, remaining)
	assert.Equal(t, domain.OrderStateFilled, exit.State)

	led, _ := svc.Get("ACC-1")
	_, open := led.Position("ES")
	assert.False(t, open)

	snap := led.Snapshot()
	assert.InDelta(t, 150.0, snap.BookedPnL, 1e-9) // 30*(155-150)
}

func TestExitWithoutPositionRejected(t *testing.T) {
	eng, _ := newHarness(map[string]float64{"ES": 150})

	exitLong := order(domain.OrderTypeExitLong, domain.SideSell, 10)
	exitShort := order(domain.OrderTypeExitShort, domain.SideBuy, 10)
	remaining := eng.Match(context.Background(), []*domain.Order{exitLong, exitShort}, now)

	assert.Empty(t, remaining)
	assert.Equal(t, domain.OrderStateRejected, exitLong.State)
	assert.Equal(t, "No long position to exit", exitLong.Reason)
	assert.Equal(t, domain.OrderStateRejected, exitShort.State)
	assert.Equal(t, "No short position to exit", exitShort.Reason)
}

func TestLimitTriggerDirections(t *testing.T) {
	cases := []struct {
		name    string
		side    domain.Side
		limit   float64
		price   float64
		fills   bool
	}{
		{"buy fills at or below limit", domain.SideBuy, 100, 99, true},
		{"buy holds above limit", domain.SideBuy, 100, 101, false},
		{"sell fills at or above limit", domain.SideSell, 100, 101, true},
		{"sell holds below limit", domain.SideSell, 100, 99, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng, _ := newHarness(map[string]float64{"ES": tc.price})

			o := order(domain.OrderTypeLimit, tc.side, 5)
			o.LimitPrice = &tc.limit
			remaining := eng.Match(context.Background(), []*domain.Order{o}, now)

			if tc.fills {
				assert.Empty(t, remaining)
				assert.Equal(t, domain.OrderStateFilled, o.State)
			} else {
				require.Len(t, remaining, 1)
				assert.Equal(t, domain.OrderStateAccepted, o.State)
			}
		})
	}
}

func TestStopTriggerDirectionIsPreserved(t *testing.T) {
	// Buy stops trigger at or below the level and sell stops at or above;
	// this mirrors the platform's established behavior.
	for _, typ := range []domain.OrderType{domain.OrderTypeStop, domain.OrderTypeMarketIfTouched} {
		eng, _ := newHarness(map[string]float64{"ES": 95})

		trigger := 100.0
		buy := order(typ, domain.SideBuy, 5)
		buy.ID += "-buy"
		buy.TriggerPrice = &trigger
		sell := order(typ, domain.SideSell, 5)
		sell.ID += "-sell"
		sell.TriggerPrice = &trigger

		remaining := eng.Match(context.Background(), []*domain.Order{buy, sell}, now)

		require.Len(t, remaining, 1, typ)
		assert.Equal(t, domain.OrderStateFilled, buy.State, typ)
		assert.Equal(t, domain.OrderStateAccepted, sell.State, typ)
	}
}

func TestStopLimitNeedsBothConditions(t *testing.T) {
	trigger, limit := 100.0, 98.0

	// Price touches the trigger but sits above the buy limit: no fill.
	eng, _ := newHarness(map[string]float64{"ES": 99})
	o := order(domain.OrderTypeStopLimit, domain.SideBuy, 5)
	o.TriggerPrice = &trigger
	o.LimitPrice = &limit
	remaining := eng.Match(context.Background(), []*domain.Order{o}, now)
	require.Len(t, remaining, 1)
	assert.Equal(t, domain.OrderStateAccepted, o.State)

	// Both conditions satisfied: fill.
	eng2, _ := newHarness(map[string]float64{"ES": 97})
	o2 := order(domain.OrderTypeStopLimit, domain.SideBuy, 5)
	o2.TriggerPrice = &trigger
	o2.LimitPrice = &limit
	remaining = eng2.Match(context.Background(), []*domain.Order{o2}, now)
	assert.Empty(t, remaining)
	assert.Equal(t, domain.OrderStateFilled, o2.State)
}

func TestEnterClosesOpposingPositionFirst(t *testing.T) {
	eng, svc := newHarness(map[string]float64{"ES": 100})

	short := order(domain.OrderTypeEnterShort, domain.SideSell, 20)
	eng.Match(context.Background(), []*domain.Order{short}, now)

	long := order(domain.OrderTypeEnterLong, domain.SideBuy, 30)
	eng.Match(context.Background(), []*domain.Order{long}, now.Add(time.Minute))

	led, _ := svc.Get("ACC-1")
	pos, ok := led.Position("ES")
	require.True(t, ok)
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.Equal(t, 30.0, pos.OpenQuantity, "opposing short fully closed, full entry size opened")
	require.Len(t, led.ClosedPositions(), 1)
	assert.Equal(t, domain.PositionShort, led.ClosedPositions()[0].Side)
}

func TestEnterCarriesBrackets(t *testing.T) {
	eng, svc := newHarness(map[string]float64{"ES": 100})

	sl, tp := 95.0, 110.0
	o := order(domain.OrderTypeEnterLong, domain.SideBuy, 10)
	o.Brackets = &domain.Brackets{StopLoss: &sl, TakeProfit: &tp}
	eng.Match(context.Background(), []*domain.Order{o}, now)

	led, _ := svc.Get("ACC-1")
	pos, ok := led.Position("ES")
	require.True(t, ok)
	require.NotNil(t, pos.Brackets)
	assert.Equal(t, 95.0, *pos.Brackets.StopLoss)
	assert.Equal(t, 110.0, *pos.Brackets.TakeProfit)
}

func TestUpdateBracketsMutatesInPlace(t *testing.T) {
	eng, svc := newHarness(map[string]float64{"ES": 100})

	enter := order(domain.OrderTypeEnterLong, domain.SideBuy, 10)
	eng.Match(context.Background(), []*domain.Order{enter}, now)

	sl := 97.0
	upd := order(domain.OrderTypeUpdateBrackets, domain.SideBuy, 0)
	upd.Quantity = 0
	remaining := eng.Match(context.Background(), []*domain.Order{upd}, now.Add(time.Second))

	assert.Empty(t, remaining, "bracket updates never stay pending")
	assert.Equal(t, domain.OrderStateUpdated, upd.State)

	upd2 := order(domain.OrderTypeUpdateBrackets, domain.SideBuy, 0)
	upd2.ID += "-2"
	upd2.Brackets = &domain.Brackets{StopLoss: &sl}
	eng.Match(context.Background(), []*domain.Order{upd2}, now.Add(2*time.Second))

	led, _ := svc.Get("ACC-1")
	pos, _ := led.Position("ES")
	require.NotNil(t, pos.Brackets)
	assert.Equal(t, 97.0, *pos.Brackets.StopLoss)
}

func TestUpdateBracketsWithoutPositionRejected(t *testing.T) {
	eng, _ := newHarness(map[string]float64{"ES": 100})

	upd := order(domain.OrderTypeUpdateBrackets, domain.SideBuy, 0)
	remaining := eng.Match(context.Background(), []*domain.Order{upd}, now)

	assert.Empty(t, remaining)
	assert.Equal(t, domain.OrderStateUpdateRejected, upd.State)
}

func TestUntriggeredOrderStaysPendingAndAcceptsOnce(t *testing.T) {
	eng, _ := newHarness(map[string]float64{"ES": 105})

	limit := 100.0
	o := order(domain.OrderTypeLimit, domain.SideBuy, 5)
	o.LimitPrice = &limit

	remaining := eng.Match(context.Background(), []*domain.Order{o}, now)
	require.Len(t, remaining, 1)
	assert.Equal(t, domain.OrderStateAccepted, o.State)
	accepted := o.UpdatedAt

	// Re-evaluation keeps the order pending without another state change.
	remaining = eng.Match(context.Background(), remaining, now.Add(time.Minute))
	require.Len(t, remaining, 1)
	assert.Equal(t, domain.OrderStateAccepted, o.State)
	assert.Equal(t, accepted, o.UpdatedAt)

	// Price crossing fills it on a later advance.
	eng.prices.(*fakePrices).prices["ES"] = 99
	remaining = eng.Match(context.Background(), remaining, now.Add(2*time.Minute))
	assert.Empty(t, remaining)
	assert.Equal(t, domain.OrderStateFilled, o.State)
}

func TestMissingPriceKeepsOrderPending(t *testing.T) {
	eng, _ := newHarness(map[string]float64{})

	o := order(domain.OrderTypeMarket, domain.SideBuy, 5)
	remaining := eng.Match(context.Background(), []*domain.Order{o}, now)

	require.Len(t, remaining, 1)
	assert.Equal(t, domain.OrderStateAccepted, o.State)
}

func TestMarketSellOpensShort(t *testing.T) {
	eng, svc := newHarness(map[string]float64{"ES": 100})

	o := order(domain.OrderTypeMarket, domain.SideSell, 7)
	eng.Match(context.Background(), []*domain.Order{o}, now)

	led, _ := svc.Get("ACC-1")
	pos, ok := led.Position("ES")
	require.True(t, ok)
	assert.Equal(t, domain.PositionShort, pos.Side)
	assert.Equal(t, 7.0, pos.OpenQuantity)
}

func TestSubmissionOrderIsPreserved(t *testing.T) {
	// Two market orders on the same symbol: the first opens, the second
	// increases; evaluation happens strictly in submission order.
	eng, svc := newHarness(map[string]float64{"ES": 100})

	first := order(domain.OrderTypeMarket, domain.SideBuy, 10)
	first.ID = "first"
	second := order(domain.OrderTypeMarket, domain.SideSell, 4)
	second.ID = "second"

	eng.Match(context.Background(), []*domain.Order{first, second}, now)

	led, _ := svc.Get("ACC-1")
	pos, ok := led.Position("ES")
	require.True(t, ok)
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.Equal(t, 6.0, pos.OpenQuantity)
	assert.Equal(t, 4.0, pos.ClosedQuantity)
}
