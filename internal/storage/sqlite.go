package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Veraticus/pocket-ledger/internal/journal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage is the local ledger database. Every mutation is journaled in
// the same SQL transaction that changes the ledger tables.
type SQLiteStorage struct {
	db      *sql.DB
	journal *journal.Journal
	logger  *slog.Logger
	onWrite []func()
	dbPath  string
	hookMu  sync.RWMutex
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes every ledger and journal write.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := slog.Default().With("component", "storage")
	return &SQLiteStorage{
		db:      db,
		dbPath:  dbPath,
		logger:  logger,
		journal: journal.New(db, slog.Default().With("component", "journal")),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only helpers such as export.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Journal returns the upload queue backed by this database.
func (s *SQLiteStorage) Journal() *journal.Journal {
	return s.journal
}

// OnWrite registers fn to run after every committed journaled write. Hooks
// run synchronously on the writing goroutine, in registration order.
func (s *SQLiteStorage) OnWrite(fn func()) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onWrite = append(s.onWrite, fn)
}

// withTx runs fn inside one SQL transaction with a journal writer bound to it.
// Ledger rows and journal entries commit or roll back together.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx, w *journal.Writer) error) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	w := journal.NewWriter(tx)
	if err := fn(tx, w); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if w.TxID() != 0 {
		s.notifyWrite()
	}
	return nil
}

func (s *SQLiteStorage) notifyWrite() {
	s.hookMu.RLock()
	hooks := append([]func(){}, s.onWrite...)
	s.hookMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
