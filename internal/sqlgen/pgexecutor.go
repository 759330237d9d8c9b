package sqlgen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolExecutor implements Executor against a pgxpool.Pool, collecting
// every returned row into a map[string]any keyed by column name via
// pgx.RowToMap — the same row-to-map convenience the rest of this
// ecosystem's Postgres-backed services use instead of hand-rolled Scan
// calls.
type PoolExecutor struct {
	pool *pgxpool.Pool
}

// NewPoolExecutor wraps an already-connected pool.
func NewPoolExecutor(pool *pgxpool.Pool) *PoolExecutor {
	return &PoolExecutor{pool: pool}
}

func (p *PoolExecutor) QueryRows(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	rows, err := p.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collecting rows: %w", err)
	}
	return result, nil
}
