package sqlgen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxExecutor runs queries against a pooled Postgres connection. The
// serve and approval commands bind the Emitter to PoolExecutor
// (pgexecutor.go) rather than to this type; tests bind it to an
// in-memory fake.
type PgxExecutor struct {
	pool *pgxpool.Pool
}

// NewPgxExecutor wraps an already-configured pool.
func NewPgxExecutor(pool *pgxpool.Pool) *PgxExecutor {
	return &PgxExecutor{pool: pool}
}

// QueryRows runs sql with args and collects every row into a
// column-name-keyed map, in the order postgres returns them.
func (x *PgxExecutor) QueryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := x.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collecting rows: %w", err)
	}
	return out, nil
}
