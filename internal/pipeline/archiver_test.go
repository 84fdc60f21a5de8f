package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCronTimeMonthly(t *testing.T) {
	after := time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 1 * *", after)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeDaily(t *testing.T) {
	after := time.Date(2025, 6, 15, 2, 59, 30, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeRejectsMalformedExpression(t *testing.T) {
	_, err := nextCronTime("0 3 1 *", time.Now())
	assert.Error(t, err)

	_, err = nextCronTime("x 3 1 * *", time.Now())
	assert.Error(t, err)
}

type countingColdStore struct {
	orders    int64
	positions int64
	cutoff    time.Time
}

func (c *countingColdStore) ArchiveOrders(_ context.Context, before time.Time) (int64, error) {
	c.cutoff = before
	return c.orders, nil
}

func (c *countingColdStore) ArchivePositions(context.Context, time.Time) (int64, error) {
	return c.positions, nil
}

func TestArchiverRunUsesRetentionCutoff(t *testing.T) {
	store := &countingColdStore{orders: 3, positions: 2}
	a := NewArchiver(store, 30, testLogger())

	require.NoError(t, a.Run(context.Background()))

	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, store.cutoff, time.Minute)
}
