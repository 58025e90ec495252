package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// runMigrations brings db up to the latest embedded migration, mirroring
// internal/db's golang-migrate wiring (sqlite_migrate.WithInstance +
// httpfs over an embedded FS) without the sqlc-generated query layer that
// package builds on top of, which this store has no use for.
func runMigrations(db *sql.DB, log migrateLogger) error {
	driver, err := sqlite_migrate.WithInstance(db, &sqlite_migrate.Config{})
	if err != nil {
		return fmt.Errorf("persistence/sqlitestore: migration driver: %w", err)
	}

	source, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return fmt.Errorf("persistence/sqlitestore: migration source: %w", err)
	}

	mig, err := migrate.NewWithInstance("entity_snapshots", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("persistence/sqlitestore: new migrate instance: %w", err)
	}
	mig.Log = log

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("persistence/sqlitestore: apply migrations: %w", err)
	}

	return nil
}

// migrateLogger adapts this package's logger to migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	log.Infof(format, v...)
}

func (migrateLogger) Verbose() bool { return false }
