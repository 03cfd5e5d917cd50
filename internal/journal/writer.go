package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Writer appends entries to the journal inside a caller-owned SQL
// transaction. The journal transaction row is created on the first Record,
// so a local transaction that journals nothing leaves no trace.
type Writer struct {
	tx   *sql.Tx
	now  func() time.Time
	txID int64
}

// NewWriter returns a writer bound to tx.
func NewWriter(tx *sql.Tx) *Writer {
	return &Writer{tx: tx, now: time.Now}
}

// Record appends one entry. It never touches the network.
func (w *Writer) Record(ctx context.Context, table, rowID string, op Op, data Diff, tag Tag) error {
	if !op.Valid() {
		return fmt.Errorf("invalid journal operation %q", op)
	}
	if table == "" || rowID == "" {
		return fmt.Errorf("journal entry needs a table and row id")
	}

	if w.txID == 0 {
		res, err := w.tx.ExecContext(ctx,
			`INSERT INTO crud_transactions (created_at) VALUES (?)`,
			w.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to open journal transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get journal transaction id: %w", err)
		}
		w.txID = id
	}

	encoded, err := encodeDiff(data)
	if err != nil {
		return err
	}

	var metadata any
	if tag != TagNone {
		metadata = string(tag)
	}

	if _, err := w.tx.ExecContext(ctx, `
		INSERT INTO crud_entries (tx_id, table_name, row_id, op, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.txID, table, rowID, string(op), encoded, metadata,
	); err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// TxID returns the journal transaction id, or 0 if nothing was recorded yet.
func (w *Writer) TxID() int64 {
	return w.txID
}
