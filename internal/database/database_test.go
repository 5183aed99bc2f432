package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/store"
)

func TestNewAndMigrate_SQLite(t *testing.T) {
	ctx := context.Background()

	db, err := New(ctx, config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, config.DriverSQLite))
	// Re-running is a no-op.
	require.NoError(t, Migrate(ctx, db, config.DriverSQLite))

	version, err := Version(db, config.DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	for _, table := range []string{"users", "events"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestDialect(t *testing.T) {
	assert.Equal(t, store.SQLite, Dialect(config.DriverSQLite))
	assert.Equal(t, store.Postgres, Dialect(config.DriverPostgres))
}

func TestDriverDSN(t *testing.T) {
	drv, dsn := driverDSN(config.DriverPostgres, "postgres://u:p@localhost/manru")
	assert.Equal(t, "pgx", drv)
	assert.Equal(t, "postgres://u:p@localhost/manru", dsn)

	drv, dsn = driverDSN(config.DriverSQLite, "./manru.db")
	assert.Equal(t, "sqlite", drv)
	assert.Contains(t, dsn, "./manru.db?_pragma=foreign_keys(1)")

	_, dsn = driverDSN(config.DriverSQLite, "file:test.db?cache=shared")
	assert.Contains(t, dsn, "cache=shared&_pragma=")
}
