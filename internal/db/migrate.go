package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var migrateTracer = otel.Tracer("convex-versioned-assets/db")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one numbered step of the catalog schema (folders, assets,
// asset_versions, upload_intents, changelog).
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// RunMigrations brings the catalog schema up to the latest embedded
// migration, recording each applied version in schema_migrations so a
// second call against an already-current database is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	ctx, span := migrateTracer.Start(ctx, "db.RunMigrations")
	defer span.End()

	if err := createMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	currentVersion, err := getCurrentMigrationVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read current schema version: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	sortMigrationsByVersion(migrations)

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		logrus.Infof("applying schema migration %03d: %s", m.Version, m.Name)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %03d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %03d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
			m.Version, m.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %03d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %03d: %w", m.Version, err)
		}

		logrus.Infof("schema now at version %03d", m.Version)
	}

	return nil
}

func createMigrationsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := db.ExecContext(ctx, query)
	return err
}

func sortMigrationsByVersion(migrations []Migration) {
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
}

func getCurrentMigrationVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations",
	).Scan(&version)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}

// loadMigrations reads every embedded "NNN_name.sql" file. Files that
// don't match the pattern are skipped rather than rejected, so stray
// non-SQL or malformed entries in migrations/ can't break startup.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		parts := strings.SplitN(strings.TrimSuffix(entry.Name(), ".sql"), "_", 2)
		if len(parts) != 2 {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(parts[0], "%03d", &version); err != nil {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    parts[1],
			SQL:     string(content),
		})
	}

	return migrations, nil
}
