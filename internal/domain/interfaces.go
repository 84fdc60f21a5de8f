package domain

import (
	"context"
	"io"
	"time"
)

// HistoricalProvider fetches raw base-data points for consolidator warm-up.
// The returned sequence is ordered by time ascending.
type HistoricalProvider interface {
	FetchHistorical(ctx context.Context, sub DataSubscription, from, to time.Time) ([]BaseData, error)
}

// PriceProvider answers the best available reference price for a symbol and
// trade side. The matching engine evaluates every pending order against it.
type PriceProvider interface {
	ReferencePrice(ctx context.Context, symbolCode string, side Side) (float64, error)
}

// AccountSnapshot is broker-reported account truth used to seed and reconcile
// a ledger in live mode.
type AccountSnapshot struct {
	Account       string     `json:"account"`
	Currency      string     `json:"currency"`
	CashValue     float64    `json:"cash_value"`
	CashAvailable float64    `json:"cash_available"`
	CashUsed      float64    `json:"cash_used"`
	Positions     []Position `json:"positions"`
}

// AccountProvider exposes broker account state. Live mode only.
type AccountProvider interface {
	AccountSnapshot(ctx context.Context, account string) (AccountSnapshot, error)
}

// EventBus carries order, position, and bar events to subscribers. The
// in-memory implementation keeps backtests deterministic; the Redis
// implementation fans events out across processes in live mode.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// OrderStore persists terminal orders for audit and archival.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByAccount(ctx context.Context, account string, limit int) ([]Order, error)
	ListBefore(ctx context.Context, before time.Time) ([]Order, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionHistoryStore persists closed positions so live reconciliation can
// survive a restart.
type PositionHistoryStore interface {
	Create(ctx context.Context, p Position) error
	ListByAccount(ctx context.Context, account string, limit int) ([]Position, error)
	ListBefore(ctx context.Context, before time.Time) ([]Position, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}
