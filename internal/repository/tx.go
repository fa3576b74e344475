package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgTransactor runs units of work on a pgx pool.
type PgTransactor struct {
	pool *pgxpool.Pool
}

// NewPgTransactor wraps a pool.
func NewPgTransactor(pool *pgxpool.Pool) *PgTransactor {
	return &PgTransactor{pool: pool}
}

// WithinTx begins a read-committed transaction, commits on nil and rolls back otherwise.
func (t *PgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

// Ping checks the pool.
func (t *PgTransactor) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

// DB returns the pool for reads outside a transaction.
func (t *PgTransactor) DB() DBTX {
	return t.pool
}
