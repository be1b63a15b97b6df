package db

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Conn wraps the pgx connection pool the rest of the core transacts
// against. internal/catalog takes a *pgxpool.Pool directly (via Pool())
// so it can run BEGIN/COMMIT/ROLLBACK itself for the multi-statement
// transactions several operations require (finishUpload, restoreVersion, ...).
type Conn struct {
	pool *pgxpool.Pool
}

func (c *Conn) Close() {
	c.pool.Close()
}

func (c *Conn) Pool() *pgxpool.Pool {
	return c.pool
}

// DB returns a standard database/sql DB for migrations.
func (c *Conn) DB() *sql.DB {
	return stdlib.OpenDBFromPool(c.pool)
}

func New(ctx context.Context, databaseURL string) (*Conn, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Conn{pool: pool}, nil
}
