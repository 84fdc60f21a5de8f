package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/bus"
	"github.com/quantfold/tradecore/internal/domain"
)

func TestReconcilerAppliesBrokerSnapshot(t *testing.T) {
	memBus := bus.NewMemory()
	svc := NewService(ServiceConfig{StartingCash: 100_000, Currency: "USD"}, memBus, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := NewReconciler(memBus, svc, slog.Default())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx)
	}()

	// Give the subscription a moment to attach.
	time.Sleep(20 * time.Millisecond)

	snap := domain.AccountSnapshot{
		Account:       "ACC-1",
		Currency:      "USD",
		CashValue:     50_000,
		CashAvailable: 40_000,
		CashUsed:      10_000,
		Positions: []domain.Position{
			{
				Account:      "ACC-1",
				Symbol:       "ES",
				SymbolCode:   "ES",
				Side:         domain.PositionLong,
				OpenQuantity: 3,
				AveragePrice: 150,
				OpenedAt:     now,
			},
		},
	}
	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, memBus.Publish(ctx, domain.ChannelBrokerAccounts, payload))

	require.Eventually(t, func() bool {
		led, err := svc.Get("ACC-1")
		if err != nil {
			return false
		}
		pos, ok := led.Position("ES")
		return ok && pos.OpenQuantity == 3
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done

	led, err := svc.Get("ACC-1")
	require.NoError(t, err)
	assert.Equal(t, 50_000.0, led.Snapshot().CashValue)
}

func TestReconcilerIgnoresMalformedSnapshots(t *testing.T) {
	memBus := bus.NewMemory()
	svc := NewService(ServiceConfig{StartingCash: 100_000, Currency: "USD"}, memBus, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := NewReconciler(memBus, svc, slog.Default())
	go func() { _ = rec.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, memBus.Publish(ctx, domain.ChannelBrokerAccounts, []byte("not json")))
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, svc.Accounts(), "malformed payloads create no ledgers")
}
