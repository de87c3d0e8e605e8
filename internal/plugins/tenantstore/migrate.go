package tenantstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/botmesh/botmesh/internal/plugins/tenantstore/migrations"
)

// runMigrations executes database migrations using golang-migrate.
// golang-migrate takes PostgreSQL advisory locks, so only one instance
// applies migrations at a time.
func runMigrations(ctx context.Context, connString string, log *slog.Logger) error {
	// golang-migrate requires a database/sql handle.
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "tenantstore_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err == migrate.ErrNoChange {
		log.Debug("Tenant store schema is up to date")
	} else {
		log.Info("Tenant store schema migrated")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if err != migrate.ErrNilVersion {
		log.Debug("Tenant store schema version", "version", version, "dirty", dirty)
		if dirty {
			log.Warn("Tenant store schema is in dirty state, manual intervention may be required")
		}
	}

	return nil
}
