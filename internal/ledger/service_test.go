package ledger

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
)

func TestGetFailsWithoutInit(t *testing.T) {
	svc := NewService(ServiceConfig{StartingCash: 50_000, Currency: "USD"}, nil, slog.Default())

	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNoLedger)
}

func TestGetOrInitSeedsPaperLedger(t *testing.T) {
	svc := NewService(ServiceConfig{StartingCash: 50_000, Currency: "USD"}, nil, slog.Default())

	l, err := svc.GetOrInit(context.Background(), "ACC-1")
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, 50_000.0, snap.CashValue)
	assert.Equal(t, "USD", snap.Currency)

	// Second call returns the same instance.
	again, err := svc.GetOrInit(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.Same(t, l, again)

	got, err := svc.Get("ACC-1")
	require.NoError(t, err)
	assert.Same(t, l, got)
}

type fakeAccounts struct {
	snap domain.AccountSnapshot
}

func (f *fakeAccounts) AccountSnapshot(context.Context, string) (domain.AccountSnapshot, error) {
	return f.snap, nil
}

func TestGetOrInitSeedsLiveLedgerFromBroker(t *testing.T) {
	provider := &fakeAccounts{snap: domain.AccountSnapshot{
		Account:       "LIVE-1",
		CashValue:     250_000,
		CashAvailable: 200_000,
		CashUsed:      50_000,
		Positions: []domain.Position{{
			SymbolCode:   "ES",
			Symbol:       "ES",
			Side:         domain.PositionLong,
			OpenQuantity: 4,
			AveragePrice: 5100,
			OpenedAt:     time.Now().UTC(),
		}},
	}}

	svc := NewService(ServiceConfig{StartingCash: 1, Currency: "USD", Accounts: provider}, nil, slog.Default())

	l, err := svc.GetOrInit(context.Background(), "LIVE-1")
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, 250_000.0, snap.CashValue)

	pos, ok := l.Position("ES")
	require.True(t, ok)
	assert.Equal(t, 4.0, pos.OpenQuantity)
	assert.Equal(t, 5100.0, pos.AveragePrice)
}

func TestAccountsAndSnapshots(t *testing.T) {
	svc := NewService(ServiceConfig{StartingCash: 10_000, Currency: "USD"}, nil, slog.Default())

	_, err := svc.GetOrInit(context.Background(), "A")
	require.NoError(t, err)
	_, err = svc.GetOrInit(context.Background(), "B")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A", "B"}, svc.Accounts())
	assert.Len(t, svc.Snapshots(), 2)
}
