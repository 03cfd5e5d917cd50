package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DeadLetters lists discarded journal transactions, oldest first.
func (j *Journal) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, tx_id, entries, error_code, error_message, discarded_at
		FROM crud_dead_letters
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var (
			dl          DeadLetter
			entries     string
			discardedAt string
		)
		if err := rows.Scan(&dl.ID, &dl.TxID, &entries, &dl.ErrorCode, &dl.ErrorMessage, &discardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		if dl.Entries, err = decodeEntries(entries); err != nil {
			return nil, fmt.Errorf("dead letter %d: %w", dl.ID, err)
		}
		dl.DiscardedAt = parseTime(discardedAt)
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return letters, nil
}

// Requeue moves a dead letter back into the journal as a new transaction at
// the tail of the queue. It returns the new journal transaction id.
func (j *Journal) Requeue(ctx context.Context, deadLetterID int64) (int64, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT entries FROM crud_dead_letters WHERE id = ?`, deadLetterID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: dead letter %d", ErrNoTransaction, deadLetterID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load dead letter: %w", err)
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return 0, err
	}

	w := &Writer{tx: tx, now: j.now}
	for _, e := range entries {
		if err := w.Record(ctx, e.Table, e.RowID, e.Op, e.Data, e.Tag); err != nil {
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crud_dead_letters WHERE id = ?`, deadLetterID); err != nil {
		return 0, fmt.Errorf("failed to delete dead letter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit requeue: %w", err)
	}

	j.logger.Info("requeued dead letter", "dead_letter", deadLetterID, "tx_id", w.TxID(), "entries", len(entries))
	return w.TxID(), nil
}

// PurgeDeadLetters deletes dead letters discarded before cutoff. A zero
// cutoff deletes all of them.
func (j *Journal) PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM crud_dead_letters`
	var args []any
	if !cutoff.IsZero() {
		query += ` WHERE discarded_at < ?`
		args = append(args, cutoff.UTC().Format(time.RFC3339Nano))
	}

	res, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged dead letters: %w", err)
	}
	return int(n), nil
}
