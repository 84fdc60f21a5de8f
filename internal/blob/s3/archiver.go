package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/tradecore/internal/domain"
)

// Archiver pages cold trading history out of the primary store: terminal
// orders and closed positions older than the cutoff are serialized to JSONL,
// uploaded to object storage, and only then deleted from the store.
type Archiver struct {
	writer    domain.BlobWriter
	orders    domain.OrderStore
	positions domain.PositionHistoryStore
	logger    *slog.Logger
}

// NewArchiver creates an Archiver writing through the given blob writer.
func NewArchiver(
	writer domain.BlobWriter,
	orders domain.OrderStore,
	positions domain.PositionHistoryStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:    writer,
		orders:    orders,
		positions: positions,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOrders uploads all orders created before the cutoff to
// archive/orders/YYYY-MM.jsonl and deletes them from the store. It returns
// the number of archived records.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.orders.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders query: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(orders)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive orders marshal: %w", err)
	}

	key := archiveKey("orders", before)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive orders upload: %w", err)
	}

	deleted, err := a.orders.DeleteBefore(ctx, before)
	if err != nil {
		// The upload succeeded; the rows will be re-archived on the next run.
		return int64(len(orders)), fmt.Errorf("s3blob: archive orders delete: %w", err)
	}

	a.logger.InfoContext(ctx, "orders archived",
		slog.String("key", key),
		slog.Int("uploaded", len(orders)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(orders)), nil
}

// ArchivePositions uploads all positions closed before the cutoff to
// archive/positions/YYYY-MM.jsonl and deletes them from the store. It returns
// the number of archived records.
func (a *Archiver) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	key := archiveKey("positions", before)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}

	deleted, err := a.positions.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(positions)), fmt.Errorf("s3blob: archive positions delete: %w", err)
	}

	a.logger.InfoContext(ctx, "positions archived",
		slog.String("key", key),
		slog.Int("uploaded", len(positions)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(positions)), nil
}

// archiveKey builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/orders/2025-06.jsonl
//	archive/positions/2025-06.jsonl
func archiveKey(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
