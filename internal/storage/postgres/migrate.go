package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var openDB = sql.Open

// Migrate applies the embedded catalog migrations to the database at dsn.
// The migrations create the default "harvests" table.
func Migrate(ctx context.Context, dsn string) error {
	if dsn == "" {
		return fmt.Errorf("postgres dsn is required")
	}
	db, err := openDB("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only teardown
	return RunMigrations(ctx, db)
}

// RunMigrations applies embedded SQL migrations via goose. A nil database
// is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return nil
	}
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
