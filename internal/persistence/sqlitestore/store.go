// Package sqlitestore is a persistence.Store backed by SQLite, grounded on
// internal/db's connection-opening and pragma idiom but querying a single
// plain table directly rather than through that package's sqlc-generated
// query layer, which has no equivalent here (there is no generated query
// set for an arbitrary-payload snapshot table).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/entityrt/entityrt/internal/entityid"
	"github.com/entityrt/entityrt/internal/persistence"
)

const (
	defaultMaxConns        = 25
	defaultConnMaxLifetime = 10 * time.Minute
)

// Config holds the arguments needed to open the snapshot database.
type Config struct {
	// DatabaseFileName is the full file path of the SQLite database file.
	DatabaseFileName string

	// SkipMigrations disables running migrations on open, for callers
	// that manage schema setup themselves (mainly tests against an
	// in-memory database seeded by hand).
	SkipMigrations bool
}

// Store is a persistence.Store backed by a single SQLite table.
type Store struct {
	db *sql.DB
}

var _ persistence.Store = (*Store)(nil)

// Open opens (creating if necessary) the SQLite database at cfg's path,
// applies WAL-mode pragmas the same way internal/db's SqliteStore does, and
// runs migrations unless skipped.
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.DatabaseFileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("persistence/sqlitestore: create dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		cfg.DatabaseFileName,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence/sqlitestore: open: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxConns)
	db.SetMaxIdleConns(defaultMaxConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence/sqlitestore: configure: %w", err)
	}

	if !cfg.SkipMigrations {
		if err := runMigrations(db, migrateLogger{}); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

// OpenDB wraps an already-open *sql.DB, for callers (tests) that want
// control over connection setup. Migrations still run unless the caller
// has already applied them.
func OpenDB(db *sql.DB, skipMigrations bool) (*Store, error) {
	if !skipMigrations {
		if err := runMigrations(db, migrateLogger{}); err != nil {
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements persistence.Store.
func (s *Store) Load(ctx context.Context, id entityid.EntityId) (persistence.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT payload, compression, schema_version, persisted_at, is_final
		FROM entity_snapshots
		WHERE entity_id = ?`, id.String())

	var (
		rec         persistence.Record
		compression int
		persistedAt int64
		isFinal     int
	)

	err := row.Scan(&rec.Payload, &compression, &rec.SchemaVersion,
		&persistedAt, &isFinal)

	switch {
	case err == sql.ErrNoRows:
		return persistence.Record{}, persistence.ErrNoRecord
	case err != nil:
		return persistence.Record{}, fmt.Errorf(
			"persistence/sqlitestore: load %s: %w", id, err)
	}

	rec.Compression = persistence.CompressionAlgorithm(compression)
	rec.PersistedAt = time.Unix(0, persistedAt)
	rec.IsFinal = isFinal != 0

	return rec, nil
}

// Save implements persistence.Store.
func (s *Store) Save(ctx context.Context, id entityid.EntityId, rec persistence.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_snapshots
			(entity_id, payload, compression, schema_version, persisted_at, is_final)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			payload = excluded.payload,
			compression = excluded.compression,
			schema_version = excluded.schema_version,
			persisted_at = excluded.persisted_at,
			is_final = excluded.is_final`,
		id.String(), rec.Payload, int(rec.Compression), rec.SchemaVersion,
		rec.PersistedAt.UnixNano(), boolToInt(rec.IsFinal),
	)
	if err != nil {
		return fmt.Errorf("persistence/sqlitestore: save %s: %w", id, err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
