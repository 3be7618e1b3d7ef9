package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/engagic/ingest/pkg/config"
)

//go:embed schema
var embeddedSchema embed.FS

// Migrate applies every pending schema migration to the database
// described by cfg. The CLI has no subcommand that calls it;
// production deployments own the schema externally and this is never
// invoked automatically on startup.
func Migrate(cfg config.DatabaseConfig) error {
	return MigrateDSN(cfg.DSN())
}

// MigrateDSN applies migrations using a raw DSN, so tests against a
// testcontainers-provided connection string don't need a full
// config.DatabaseConfig.
func MigrateDSN(dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("database: migrate open: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("database: migrate driver: %w", err)
	}

	src, err := iofs.New(embeddedSchema, "schema")
	if err != nil {
		return fmt.Errorf("database: migrate source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("database: migrate init: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("database: migrate up: %w", err)
	}
	return nil
}
