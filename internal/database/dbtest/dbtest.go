// Package dbtest provides a migrated SQLite store for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
)

// Config returns a sqlite configuration pointing into t's temp dir.
func Config(t testing.TB) config.DBConfig {
	return config.DBConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "storefront.db"),
	}
}

// New migrates a fresh database file and returns an open handle that is
// closed when the test ends.
func New(t testing.TB) *sqlx.DB {
	t.Helper()
	cfg := Config(t)
	require.NoError(t, database.Migrate(cfg))

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
