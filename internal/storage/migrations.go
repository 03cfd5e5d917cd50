package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/pocket-ledger/internal/journal"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Ledger tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS currencies (
					id TEXT PRIMARY KEY,
					code TEXT NOT NULL UNIQUE,
					symbol TEXT NOT NULL DEFAULT '',
					precision INTEGER NOT NULL CHECK (precision BETWEEN 0 AND 8)
				)`,
				`CREATE TABLE IF NOT EXISTS accounts (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					balance INTEGER NOT NULL DEFAULT 0,
					currency_id TEXT NOT NULL REFERENCES currencies(id),
					position TEXT NOT NULL,
					color_scheme TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL CHECK (type IN ('regular', 'savings')),
					is_archived INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					title TEXT NOT NULL,
					currency_id TEXT NOT NULL REFERENCES currencies(id),
					parent_category_id TEXT REFERENCES categories(id),
					is_income INTEGER NOT NULL DEFAULT 0,
					color_scheme TEXT NOT NULL DEFAULT '',
					is_archived INTEGER NOT NULL DEFAULT 0,
					position TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_categories_parent ON categories(parent_category_id)`,
				`CREATE TABLE IF NOT EXISTS transfers (
					id TEXT PRIMARY KEY,
					time TEXT NOT NULL,
					source_id TEXT NOT NULL,
					source_amount INTEGER NOT NULL CHECK (source_amount > 0),
					destination_id TEXT NOT NULL,
					destination_amount INTEGER NOT NULL CHECK (destination_amount > 0),
					memo TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transfers_time ON transfers(time)`,
				`CREATE INDEX IF NOT EXISTS idx_transfers_source ON transfers(source_id)`,
				`CREATE INDEX IF NOT EXISTS idx_transfers_destination ON transfers(destination_id)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Upload journal",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, journal.Schema)
		},
	},
	{
		Version:     3,
		Description: "Dead letters for rejected uploads",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, journal.DeadLetterSchema)
		},
	},
	{
		Version:     4,
		Description: "Session",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS session (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					user_id TEXT NOT NULL,
					token TEXT NOT NULL,
					expires_at TEXT
				)`,
			})
		},
	},
	{
		Version:     5,
		Description: "Upload lease",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, journal.LeaseSchema)
		},
	},
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the current PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// LatestSchemaVersion is the version Migrate brings a database up to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}
