package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB is a database handle that knows its SQL dialect.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects and pings. The driver must already be registered by the caller.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// in-memory databases are per connection
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("db: ping %s: %w", driver, err)
	}
	return &DB{DB: sqlDB, Driver: driver}, nil
}

// placeholder returns the n-th (1-based) bind parameter. Both drivers
// accept the $n form.
func (d *DB) placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
