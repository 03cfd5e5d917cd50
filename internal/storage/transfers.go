package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/model"
)

// TransferInput describes a transfer by counterparty id. ID is optional on
// create; callers that need idempotent ids (statement import) set it.
type TransferInput struct {
	Time              time.Time
	Memo              *string
	ID                string
	SourceID          string
	DestinationID     string
	SourceAmount      int64
	DestinationAmount int64
}

// TransferFilter narrows ListTransfers. Zero fields do not filter.
type TransferFilter struct {
	Start          *time.Time
	End            *time.Time
	CounterpartyID string
	Limit          int
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const transferColumns = `id, time, source_id, source_amount, destination_id, destination_amount, memo`

// CreateTransfer records a new transfer, applies its balance effect locally
// and journals a tagged PUT so the remote applies the same effect atomically.
func (s *SQLiteStorage) CreateTransfer(ctx context.Context, in TransferInput) (*model.Transfer, error) {
	if err := validateTransferInput(in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	var created *model.Transfer
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		t, err := resolveTransfer(ctx, tx, in)
		if err != nil {
			return err
		}
		deltas, err := t.BalanceDeltas()
		if err != nil {
			return err
		}
		if err := applyBalanceDeltas(ctx, tx, deltas); err != nil {
			return err
		}
		if err := putRow(ctx, tx, w, model.TableTransfers, t.ID, transferDiff(t), journal.TagTransferCreate); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created transfer",
		"id", created.ID,
		"source", created.Source,
		"destination", created.Destination,
		"source_amount", created.SourceAmount)
	return created, nil
}

// EditTransfer replaces a transfer. The old balance effect is reversed and
// the new one applied locally; the journal carries the full new row.
func (s *SQLiteStorage) EditTransfer(ctx context.Context, id string, in TransferInput) (*model.Transfer, error) {
	in.ID = id
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	if err := validateTransferInput(in); err != nil {
		return nil, err
	}

	var edited *model.Transfer
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		old, err := getTransfer(ctx, tx, id)
		if err != nil {
			return err
		}
		t, err := resolveTransfer(ctx, tx, in)
		if err != nil {
			return err
		}

		deltas, err := old.Reversed()
		if err != nil {
			return err
		}
		applied, err := t.BalanceDeltas()
		if err != nil {
			return err
		}
		for acct, d := range applied {
			deltas[acct] += d
		}
		if err := applyBalanceDeltas(ctx, tx, deltas); err != nil {
			return err
		}

		diff := transferDiff(t)
		sets := make([]string, len(diff))
		for i, c := range diff {
			sets[i] = c.Name + " = ?"
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transfers SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
			append(diff.Values(), id)...,
		); err != nil {
			return fmt.Errorf("failed to update transfer: %w", err)
		}

		if err := w.Record(ctx, model.TableTransfers, id, journal.OpPut, diff, journal.TagTransferEdit); err != nil {
			return err
		}
		edited = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("edited transfer", "id", id)
	return edited, nil
}

// RevertTransfer deletes a transfer and reverses its balance effect.
func (s *SQLiteStorage) RevertTransfer(ctx context.Context, id string) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		t, err := getTransfer(ctx, tx, id)
		if err != nil {
			return err
		}
		deltas, err := t.Reversed()
		if err != nil {
			return err
		}
		if err := applyBalanceDeltas(ctx, tx, deltas); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transfers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete transfer: %w", err)
		}
		return w.Record(ctx, model.TableTransfers, id, journal.OpDelete, nil, journal.TagNone)
	})
	if err != nil {
		return err
	}

	s.logger.Info("reverted transfer", "id", id)
	return nil
}

// GetTransfer returns a transfer with its counterparties resolved.
func (s *SQLiteStorage) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getTransfer(ctx, s.db, id)
}

// ListTransfers returns transfers newest first.
func (s *SQLiteStorage) ListTransfers(ctx context.Context, filter TransferFilter) ([]model.Transfer, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Start != nil {
		where = append(where, "time >= ?")
		args = append(args, formatTime(*filter.Start))
	}
	if filter.End != nil {
		where = append(where, "time < ?")
		args = append(args, formatTime(*filter.End))
	}
	if filter.CounterpartyID != "" {
		where = append(where, "(source_id = ? OR destination_id = ?)")
		args = append(args, filter.CounterpartyID, filter.CounterpartyID)
	}

	query := `SELECT ` + transferColumns + ` FROM transfers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY time DESC, id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}

	var transfers []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}
	_ = rows.Close()

	// Resolution needs the single connection, so it runs after the rows close.
	for i := range transfers {
		if err := resolveEndpoints(ctx, s.db, &transfers[i]); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// LookupCounterparty resolves an id to an account or category, accounts
// first, and returns the currency id of that side.
func (s *SQLiteStorage) LookupCounterparty(ctx context.Context, id string) (model.Counterparty, string, error) {
	if err := validateContext(ctx); err != nil {
		return model.Counterparty{}, "", err
	}
	return lookupCounterparty(ctx, s.db, id)
}

func lookupCounterparty(ctx context.Context, q queryable, id string) (model.Counterparty, string, error) {
	var currencyID string
	err := q.QueryRowContext(ctx, `SELECT currency_id FROM accounts WHERE id = ?`, id).Scan(&currencyID)
	if err == nil {
		return model.AccountRef(id), currencyID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Counterparty{}, "", fmt.Errorf("failed to query account: %w", err)
	}

	err = q.QueryRowContext(ctx, `SELECT currency_id FROM categories WHERE id = ?`, id).Scan(&currencyID)
	if err == nil {
		return model.CategoryRef(id), currencyID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Counterparty{}, "", fmt.Errorf("failed to query category: %w", err)
	}
	return model.Counterparty{}, "", fmt.Errorf("%w: %s", ErrUnknownCounterparty, id)
}

// resolveTransfer builds and validates a transfer from its input. Both sides
// in the same currency must carry the same amount.
func resolveTransfer(ctx context.Context, q queryable, in TransferInput) (*model.Transfer, error) {
	src, srcCurrency, err := lookupCounterparty(ctx, q, in.SourceID)
	if err != nil {
		return nil, err
	}
	dst, dstCurrency, err := lookupCounterparty(ctx, q, in.DestinationID)
	if err != nil {
		return nil, err
	}
	if srcCurrency == dstCurrency && in.SourceAmount != in.DestinationAmount {
		return nil, fmt.Errorf("%w: same-currency transfer needs equal amounts, got %d and %d",
			ErrCurrencyMismatch, in.SourceAmount, in.DestinationAmount)
	}

	t := &model.Transfer{
		ID:                in.ID,
		Source:            src,
		Destination:       dst,
		SourceAmount:      in.SourceAmount,
		DestinationAmount: in.DestinationAmount,
		Time:              in.Time.UTC(),
		Memo:              normalizeMemo(in.Memo),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func getTransfer(ctx context.Context, q queryable, id string) (*model.Transfer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transfer %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer: %w", err)
	}
	if err := resolveEndpoints(ctx, q, t); err != nil {
		return nil, err
	}
	return t, nil
}

func resolveEndpoints(ctx context.Context, q queryable, t *model.Transfer) error {
	src, _, err := lookupCounterparty(ctx, q, t.Source.ID)
	if err != nil {
		return fmt.Errorf("transfer %s source: %w", t.ID, err)
	}
	dst, _, err := lookupCounterparty(ctx, q, t.Destination.ID)
	if err != nil {
		return fmt.Errorf("transfer %s destination: %w", t.ID, err)
	}
	t.Source, t.Destination = src, dst
	return nil
}

func scanTransfer(row rowScanner) (*model.Transfer, error) {
	var (
		t    model.Transfer
		ts   string
		memo sql.NullString
	)
	if err := row.Scan(&t.ID, &ts, &t.Source.ID, &t.SourceAmount,
		&t.Destination.ID, &t.DestinationAmount, &memo); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(timeLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("transfer %s has invalid time %q: %w", t.ID, ts, err)
	}
	t.Time = parsed
	if memo.Valid {
		t.Memo = &memo.String
	}
	return &t, nil
}

// transferDiff is the column set shared by the local row, the journal entry
// and the remote procedure payload.
func transferDiff(t *model.Transfer) journal.Diff {
	var memo any
	if t.Memo != nil {
		memo = *t.Memo
	}
	return journal.Diff{
		{Name: "time", Value: formatTime(t.Time)},
		{Name: "source_id", Value: t.Source.ID},
		{Name: "source_amount", Value: t.SourceAmount},
		{Name: "destination_id", Value: t.Destination.ID},
		{Name: "destination_amount", Value: t.DestinationAmount},
		{Name: "memo", Value: memo},
	}
}

func normalizeMemo(memo *string) *string {
	if memo == nil {
		return nil
	}
	m := strings.TrimSpace(*memo)
	if m == "" {
		return nil
	}
	return &m
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
