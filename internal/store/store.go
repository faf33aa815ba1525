package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders_log (
	order_id           TEXT PRIMARY KEY,
	side               INTEGER NOT NULL,
	status             INTEGER NOT NULL,
	price              TEXT NOT NULL,
	amount             TEXT NOT NULL,
	quantity           TEXT NOT NULL,
	nickname           TEXT NOT NULL DEFAULT '',
	real_name          TEXT NOT NULL DEFAULT '',
	msg_status_10_sent BOOLEAN NOT NULL DEFAULT FALSE,
	msg_status_20_sent BOOLEAN NOT NULL DEFAULT FALSE,
	marked_paid        BOOLEAN NOT NULL DEFAULT FALSE,
	msg_status_10_count INTEGER NOT NULL DEFAULT 0,
	msg_status_20_count INTEGER NOT NULL DEFAULT 0,
	created_at         BIGINT NOT NULL,
	updated_at         BIGINT NOT NULL
)`

// Open opens the database for driver and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty dsn for driver %s", driver)
	}

	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// addedColumns are columns introduced after the first schema. Both drivers
// accept this ALTER form.
var addedColumns = []struct{ name, ddl string }{
	{"msg_status_10_count", "INTEGER NOT NULL DEFAULT 0"},
	{"msg_status_20_count", "INTEGER NOT NULL DEFAULT 0"},
}

// Migrate creates the order log table if it does not exist and adds columns
// missing from tables created by older versions.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, c := range addedColumns {
		if _, err := db.ExecContext(ctx, `SELECT `+c.name+` FROM orders_log LIMIT 0`); err == nil {
			continue
		}
		if _, err := db.ExecContext(ctx, `ALTER TABLE orders_log ADD COLUMN `+c.name+` `+c.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}
	return nil
}
