package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tradecore/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a terminal order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	var stopLoss, takeProfit *float64
	if o.Brackets != nil {
		stopLoss = o.Brackets.StopLoss
		takeProfit = o.Brackets.TakeProfit
	}

	const query = `
		INSERT INTO orders (
			id, account, symbol, symbol_code, side, order_type,
			quantity, filled_quantity, limit_price, trigger_price,
			time_in_force, state, reason, tag, stop_loss, take_profit,
			average_fill, created_at, updated_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Account, o.Symbol, o.SymbolCode,
		string(o.Side), string(o.Type),
		o.Quantity, o.FilledQuantity, o.LimitPrice, o.TriggerPrice,
		string(o.TIF), string(o.State), o.Reason, o.Tag,
		stopLoss, takeProfit,
		o.AverageFill, o.CreatedAt, o.UpdatedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

const orderSelectCols = `id, account, symbol, symbol_code, side, order_type,
	quantity, filled_quantity, limit_price, trigger_price,
	time_in_force, state, reason, tag, stop_loss, take_profit,
	average_fill, created_at, updated_at, filled_at`

func scanOrderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Order, error) {
	var o domain.Order
	var side, orderType, tif, state string
	var stopLoss, takeProfit *float64

	err := scanner.Scan(
		&o.ID, &o.Account, &o.Symbol, &o.SymbolCode,
		&side, &orderType,
		&o.Quantity, &o.FilledQuantity, &o.LimitPrice, &o.TriggerPrice,
		&tif, &state, &o.Reason, &o.Tag,
		&stopLoss, &takeProfit,
		&o.AverageFill, &o.CreatedAt, &o.UpdatedAt, &o.FilledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.Side(side)
	o.Type = domain.OrderType(orderType)
	o.TIF = domain.TimeInForce(tif)
	o.State = domain.OrderState(state)

	if stopLoss != nil || takeProfit != nil {
		o.Brackets = &domain.Brackets{StopLoss: stopLoss, TakeProfit: takeProfit}
	}

	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByAccount returns the most recent orders for an account.
func (s *OrderStore) ListByAccount(ctx context.Context, account string, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders
		WHERE account = $1
		ORDER BY created_at DESC`
	args := []any{account}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders for %s: %w", account, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders for %s: %w", account, err)
	}
	return orders, nil
}

// ListBefore returns orders created before the cutoff, oldest first. The
// archiver uses it to page cold orders out to blob storage.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE created_at < $1
		 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders before %s: %w", before, err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan orders before %s: %w", before, err)
	}
	return orders, nil
}

// DeleteBefore removes orders created before the cutoff and reports how many
// rows went away.
func (s *OrderStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orders WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orders before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
