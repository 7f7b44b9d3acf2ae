package database

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Supported driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures Open
type Options struct {
	Driver string
	DSN    string
	// RecreateSchema drops every table before migrating
	RecreateSchema bool
}

// Open connects to the audit database through otelsql, so every statement
// becomes a span, and brings the schema up to date.
func Open(ctx context.Context, opts Options) (*sqlx.DB, error) {
	system, err := dbSystem(opts.Driver)
	if err != nil {
		return nil, err
	}

	sqlDB, err := otelsql.Open(opts.Driver, opts.DSN, otelsql.WithAttributes(system))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := sqlx.NewDb(sqlDB, opts.Driver)
	if opts.Driver == DriverSQLite {
		// SQLite allows a single writer; serialise access through one connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.RecreateSchema {
		if err := DropSchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to drop schema: %w", err)
		}
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func dbSystem(driver string) (attribute.KeyValue, error) {
	switch driver {
	case DriverSQLite:
		return semconv.DBSystemSqlite, nil
	case DriverPostgres:
		return semconv.DBSystemPostgreSQL, nil
	default:
		return attribute.KeyValue{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}
