package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/tradecore/internal/domain"
)

// PositionHistoryStore implements domain.PositionHistoryStore using
// PostgreSQL. Only closed positions are persisted; open positions live in the
// in-memory ledger.
type PositionHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPositionHistoryStore creates a store backed by the given connection pool.
func NewPositionHistoryStore(pool *pgxpool.Pool) *PositionHistoryStore {
	return &PositionHistoryStore{pool: pool}
}

// Create inserts a closed position.
func (s *PositionHistoryStore) Create(ctx context.Context, p domain.Position) error {
	if !p.Closed || p.ClosedAt == nil {
		return fmt.Errorf("postgres: position %s is still open", p.ID)
	}

	var stopLoss, takeProfit *float64
	if p.Brackets != nil {
		stopLoss = p.Brackets.StopLoss
		takeProfit = p.Brackets.TakeProfit
	}

	const query = `
		INSERT INTO closed_positions (
			id, account, symbol, symbol_code, side,
			open_quantity, closed_quantity, average_price, booked_pnl,
			highest_price, lowest_price, stop_loss, take_profit,
			opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Account, p.Symbol, p.SymbolCode, string(p.Side),
		p.OpenQuantity, p.ClosedQuantity, p.AveragePrice, p.BookedPnL,
		p.HighestPrice, p.LowestPrice, stopLoss, takeProfit,
		p.OpenedAt, *p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create closed position %s: %w", p.ID, err)
	}
	return nil
}

const positionSelectCols = `id, account, symbol, symbol_code, side,
	open_quantity, closed_quantity, average_price, booked_pnl,
	highest_price, lowest_price, stop_loss, take_profit,
	opened_at, closed_at`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side string
		var stopLoss, takeProfit *float64
		var closedAt time.Time

		err := rows.Scan(
			&p.ID, &p.Account, &p.Symbol, &p.SymbolCode, &side,
			&p.OpenQuantity, &p.ClosedQuantity, &p.AveragePrice, &p.BookedPnL,
			&p.HighestPrice, &p.LowestPrice, &stopLoss, &takeProfit,
			&p.OpenedAt, &closedAt,
		)
		if err != nil {
			return nil, err
		}

		p.Side = domain.PositionSide(side)
		p.Closed = true
		p.ClosedAt = &closedAt
		if stopLoss != nil || takeProfit != nil {
			p.Brackets = &domain.Brackets{StopLoss: stopLoss, TakeProfit: takeProfit}
		}

		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ListByAccount returns the most recently closed positions for an account.
func (s *PositionHistoryStore) ListByAccount(ctx context.Context, account string, limit int) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM closed_positions
		WHERE account = $1
		ORDER BY closed_at DESC`
	args := []any{account}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions for %s: %w", account, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions for %s: %w", account, err)
	}
	return positions, nil
}

// ListBefore returns positions closed before the cutoff, oldest first.
func (s *PositionHistoryStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM closed_positions
		 WHERE closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before %s: %w", before, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions before %s: %w", before, err)
	}
	return positions, nil
}

// DeleteBefore removes positions closed before the cutoff.
func (s *PositionHistoryStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM closed_positions WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed positions before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.PositionHistoryStore = (*PositionHistoryStore)(nil)
