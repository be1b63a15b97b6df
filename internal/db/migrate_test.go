package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigration_Structure(t *testing.T) {
	m := Migration{
		Version: 1,
		Name:    "initial_schema",
		SQL:     "CREATE TABLE folders (id UUID PRIMARY KEY);",
	}

	assert.Equal(t, 1, m.Version)
	assert.Equal(t, "initial_schema", m.Name)
	assert.Contains(t, m.SQL, "CREATE TABLE")
}

func TestLoadMigrations_ParsesEmbeddedFiles(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	byVersion := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		_, dup := byVersion[m.Version]
		require.False(t, dup, "duplicate migration version %d", m.Version)
		byVersion[m.Version] = m
	}

	require.Contains(t, byVersion, 1)
	assert.Contains(t, byVersion[1].SQL, "CREATE TABLE IF NOT EXISTS folders")
}

func TestCreateMigrationsTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = createMigrationsTable(ctx, db)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCurrentMigrationVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	t.Run("returns the highest applied version", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"version"}).AddRow(2)
		mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
			WillReturnRows(rows)

		version, err := getCurrentMigrationVersion(ctx, db)
		assert.NoError(t, err)
		assert.Equal(t, 2, version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns 0 on a fresh database", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"version"}).AddRow(0)
		mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
			WillReturnRows(rows)

		version, err := getCurrentMigrationVersion(ctx, db)
		assert.NoError(t, err)
		assert.Equal(t, 0, version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates a query error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
			WillReturnError(sql.ErrConnDone)

		version, err := getCurrentMigrationVersion(ctx, db)
		assert.Error(t, err)
		assert.Equal(t, 0, version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrationOrdering(t *testing.T) {
	migrations := []Migration{
		{Version: 2, Name: "upload_intent_consumed_at"},
		{Version: 1, Name: "initial_schema"},
	}

	sortMigrationsByVersion(migrations)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "upload_intent_consumed_at", migrations[1].Name)
}

func TestRunMigrations_AppliesEachPendingVersionInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version"}).AddRow(1)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE upload_intents`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(2, "upload_intent_consumed_at").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = RunMigrations(ctx, db)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RollsBackOnFailedStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version"}).AddRow(1)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_migrations`).
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE upload_intents`).
		WillReturnError(sql.ErrTxDone)
	mock.ExpectRollback()

	err = RunMigrations(ctx, db)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
