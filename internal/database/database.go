package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // SQLite driver ("sqlite")

	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/store"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// connectAttempts bounds the startup ping retries.
const connectAttempts = 5

// New creates a new database connection pool for the given driver and waits
// for it to answer a ping.
func New(ctx context.Context, driver, dataSourceName string) (*sql.DB, error) {
	sqlDriver, dsn := driverDSN(driver, dataSourceName)

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY and
		// keeps ":memory:" databases shared.
		db.SetMaxOpenConns(1)
	}

	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			log.Warn().Err(err).Str("driver", driver).Msg("Database ping failed, retrying...")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return db, nil
}

// Dialect returns the store dialect for a configured driver name.
func Dialect(driver string) store.Dialect {
	if driver == config.DriverPostgres {
		return store.Postgres
	}
	return store.SQLite
}

// Migrate applies all pending schema migrations.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, dir := gooseTarget(driver)
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}

// Version returns the currently applied schema version.
func Version(db *sql.DB, driver string) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, _ := gooseTarget(driver)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}

func gooseTarget(driver string) (dialect, dir string) {
	if driver == config.DriverPostgres {
		return "postgres", "migrations/postgres"
	}
	return "sqlite3", "migrations/sqlite"
}

func driverDSN(driver, dataSourceName string) (string, string) {
	if driver == config.DriverPostgres {
		return "pgx", dataSourceName
	}
	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	return "sqlite", dataSourceName + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}
