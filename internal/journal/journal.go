package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Journal reads and settles journal transactions. The schema is created by
// the storage migrations.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New returns a journal over db.
func New(db *sql.DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, now: time.Now}
}

// PruneEmptyPatches deletes PATCH entries that change no columns, then any
// journal transaction left without entries. It returns the number of entries
// removed.
func (j *Journal) PruneEmptyPatches(ctx context.Context) (int, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM crud_entries
		WHERE op = 'PATCH' AND (data IS NULL OR data = '' OR data = '[]' OR data = 'null')`)
	if err != nil {
		return 0, fmt.Errorf("failed to prune empty patches: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM crud_transactions
		WHERE NOT EXISTS (SELECT 1 FROM crud_entries e WHERE e.tx_id = crud_transactions.id)`); err != nil {
		return 0, fmt.Errorf("failed to prune empty journal transactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	if pruned > 0 {
		j.logger.Debug("pruned empty patch entries", "count", pruned)
	}
	return int(pruned), nil
}

// NextBatch returns the oldest pending journal transaction, or nil when the
// journal is empty. Empty patches are pruned first.
func (j *Journal) NextBatch(ctx context.Context) (*Transaction, error) {
	if _, err := j.PruneEmptyPatches(ctx); err != nil {
		return nil, err
	}

	var (
		batch     Transaction
		createdAt string
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM crud_transactions ORDER BY id LIMIT 1`,
	).Scan(&batch.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query next journal transaction: %w", err)
	}
	batch.CreatedAt = parseTime(createdAt)

	entries, err := j.entries(ctx, j.db, batch.ID)
	if err != nil {
		return nil, err
	}
	batch.Entries = entries
	return &batch, nil
}

// Complete removes a journal transaction after the remote confirmed it.
func (j *Journal) Complete(ctx context.Context, txID int64) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteTransaction(ctx, tx, txID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion of journal transaction %d: %w", txID, err)
	}
	return nil
}

// Discard moves a journal transaction into the dead-letter table in one step.
func (j *Journal) Discard(ctx context.Context, txID int64, code, message string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := j.entries(ctx, tx, txID)
	if err != nil {
		return err
	}
	encoded, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crud_dead_letters (tx_id, entries, error_code, error_message, discarded_at)
		VALUES (?, ?, ?, ?, ?)`,
		txID, encoded, code, message, j.now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to write dead letter: %w", err)
	}

	if err := deleteTransaction(ctx, tx, txID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit discard of journal transaction %d: %w", txID, err)
	}

	j.logger.Warn("discarded journal transaction",
		"tx_id", txID,
		"entries", len(entries),
		"code", code,
		"error", message)
	return nil
}

// Stats counts pending work and dead letters.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := j.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM crud_transactions),
			(SELECT COUNT(*) FROM crud_entries),
			(SELECT COUNT(*) FROM crud_dead_letters)`,
	).Scan(&s.PendingTransactions, &s.PendingEntries, &s.DeadLetters)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query journal stats: %w", err)
	}
	return s, nil
}

// Pending returns every pending journal transaction in upload order.
func (j *Journal) Pending(ctx context.Context) ([]Transaction, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, created_at FROM crud_transactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal transactions: %w", err)
	}
	var pending []Transaction
	for rows.Next() {
		var (
			t         Transaction
			createdAt string
		)
		if err := rows.Scan(&t.ID, &createdAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan journal transaction: %w", err)
		}
		t.CreatedAt = parseTime(createdAt)
		pending = append(pending, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating journal transactions: %w", err)
	}
	_ = rows.Close()

	for i := range pending {
		entries, err := j.entries(ctx, j.db, pending[i].ID)
		if err != nil {
			return nil, err
		}
		pending[i].Entries = entries
	}
	return pending, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (j *Journal) entries(ctx context.Context, q querier, txID int64) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tx_id, table_name, row_id, op, data, metadata
		FROM crud_entries
		WHERE tx_id = ?
		ORDER BY id`, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			op       string
			data     sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TxID, &e.Table, &e.RowID, &op, &data, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Op = Op(op)
		e.Tag = Tag(metadata.String)
		if e.Data, err = decodeDiff(data.String); err != nil {
			return nil, fmt.Errorf("journal entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}
	return entries, nil
}

func deleteTransaction(ctx context.Context, tx *sql.Tx, txID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM crud_entries WHERE tx_id = ?`, txID); err != nil {
		return fmt.Errorf("failed to delete journal entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM crud_transactions WHERE id = ?`, txID)
	if err != nil {
		return fmt.Errorf("failed to delete journal transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted journal transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNoTransaction, txID)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
