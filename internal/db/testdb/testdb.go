//go:build integration

// Package testdb spins up a real Postgres container for integration
// tests. No pgvector/earthdistance extensions; schema is applied via
// db.RunMigrations instead of a standalone schema.sql.
package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/db"
)

// TestDB holds the test database connection and container.
type TestDB struct {
	Container *postgres.PostgresContainer
	Conn      *db.Conn
}

// SetupTestDB starts a Postgres container, applies every migration, and
// registers cleanup on t. Each test gets its own container so tests can
// run in parallel without sharing catalog state.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("assets_test"),
		postgres.WithUsername("assets"),
		postgres.WithPassword("assets"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("failed to get connection string: %v", err)
	}

	conn, err := waitForConn(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.RunMigrations(ctx, conn.DB()); err != nil {
		conn.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("failed to apply migrations: %v", err)
	}

	tdb := &TestDB{Container: pgContainer, Conn: conn}
	t.Cleanup(func() {
		tdb.Conn.Close()
		_ = tdb.Container.Terminate(context.Background())
	})
	return tdb
}

// Pool exposes the pgxpool.Pool backing this test database, for
// constructing a catalog.Repository.
func (tdb *TestDB) Pool() *pgxpool.Pool {
	return tdb.Conn.Pool()
}

func waitForConn(ctx context.Context, connStr string) (*db.Conn, error) {
	var lastErr error
	for i := 0; i < 30; i++ {
		conn, err := db.New(ctx, connStr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	return nil, lastErr
}
