package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/storage"
)

var tracer = otel.Tracer("convex-versioned-assets/catalog")

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// method below works whether or not it is running inside a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn pgx.CommandTag, err error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the transactional gateway to the catalog's Postgres
// schema. Every write that must be atomic (finishUpload, restoreVersion,
// createFolderByPath's missing-parent chain) runs inside a single
// pgx.Tx obtained from withTx.
// Notifier is implemented by changelogfeed.Hub; kept as an interface here
// so internal/catalog never imports internal/changelogfeed.
type Notifier interface {
	Publish(entry ChangelogEntry)
}

type Repository struct {
	pool     *pgxpool.Pool
	backends *storage.Registry
	notifier Notifier
}

func NewRepository(pool *pgxpool.Pool, backends *storage.Registry) *Repository {
	return &Repository{pool: pool, backends: backends}
}

// SetNotifier wires a changelogfeed.Hub in after construction, since the
// hub and the repository are built independently by internal/api's
// assembly root.
func (r *Repository) SetNotifier(n Notifier) {
	r.notifier = n
}

func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// withTxNotify behaves like withTx, but any entries appended via fn are
// published to r.notifier only after the transaction commits
// successfully.
func (r *Repository) withTxNotify(ctx context.Context, fn func(tx pgx.Tx, appended *[]ChangelogEntry) error) error {
	var appended []ChangelogEntry
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		return fn(tx, &appended)
	})
	if err != nil {
		return err
	}
	if r.notifier != nil {
		for _, e := range appended {
			r.notifier.Publish(e)
		}
	}
	return nil
}
