package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"002_add_index.sql":      {Data: []byte("CREATE INDEX i ON t(a);")},
		"001_create_tables.sql":  {Data: []byte("CREATE TABLE t (a TEXT);")},
		"README.md":              {Data: []byte("not a migration")},
		"nested/003_ignored.sql": {Data: []byte("SELECT 1;")},
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testFS())
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_tables", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "add_index", migrations[1].Name)
}

func TestLoadMigrations_InvalidName(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"create.sql": {Data: []byte("x")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid migration filename")
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("x")},
		"001_b.sql": {Data: []byte("y")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate migration version 1")
}

func TestMigrator_RunSkipsApplied(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX i ON t(a);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version, name) VALUES (?, ?)")).
		WithArgs(2, "add_index").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	m := NewMigrator(Wrap(sqlDB, zap.NewNop()), zap.NewNop())
	count, err := m.Run(context.Background(), testFS())

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RunRollsBackOnFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE t (a TEXT);")).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	m := NewMigrator(Wrap(sqlDB, zap.NewNop()), zap.NewNop())
	count, err := m.Run(context.Background(), testFS())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 1")
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
