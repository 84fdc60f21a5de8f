package s3blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
)

type captureWriter struct {
	key  string
	body string
}

func (w *captureWriter) Put(_ context.Context, key string, body io.Reader, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w.key = key
	w.body = string(data)
	return nil
}

type fakeOrderStore struct {
	domain.OrderStore
	orders  []domain.Order
	deleted *time.Time
}

func (s *fakeOrderStore) ListBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range s.orders {
		if o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = &before
	var kept []domain.Order
	for _, o := range s.orders {
		if !o.CreatedAt.Before(before) {
			kept = append(kept, o)
		}
	}
	removed := int64(len(s.orders) - len(kept))
	s.orders = kept
	return removed, nil
}

func TestArchiveOrdersUploadsThenDeletes(t *testing.T) {
	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeOrderStore{orders: []domain.Order{
		{ID: "old-1", Account: "A", CreatedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "old-2", Account: "A", CreatedAt: cutoff.Add(-24 * time.Hour)},
		{ID: "fresh", Account: "A", CreatedAt: cutoff.Add(time.Hour)},
	}}
	writer := &captureWriter{}

	arch := NewArchiver(writer, store, nil, slog.Default())

	count, err := arch.ArchiveOrders(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, "archive/orders/2025-06.jsonl", writer.key)
	lines := strings.Split(strings.TrimSpace(writer.body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"old-1"`)
	assert.Contains(t, lines[1], `"old-2"`)

	require.NotNil(t, store.deleted)
	require.Len(t, store.orders, 1)
	assert.Equal(t, "fresh", store.orders[0].ID)
}

func TestArchiveOrdersNoRowsIsNoOp(t *testing.T) {
	store := &fakeOrderStore{}
	writer := &captureWriter{}

	arch := NewArchiver(writer, store, nil, slog.Default())

	count, err := arch.ArchiveOrders(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.key, "nothing should be uploaded")
	assert.Nil(t, store.deleted)
}
