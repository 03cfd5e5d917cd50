package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/model"
)

// AccountInput describes a new account. Balance is the opening balance in
// minor units.
type AccountInput struct {
	Title       string
	CurrencyID  string
	ColorScheme string
	Type        model.AccountType
	Balance     int64
}

// AccountUpdate lists the account fields to change. Nil fields are left alone.
type AccountUpdate struct {
	Title       *string
	ColorScheme *string
	Type        *model.AccountType
}

const accountColumns = `id, title, balance, currency_id, position, color_scheme, type, is_archived`

// CreateAccount adds an account at the end of the account list.
func (s *SQLiteStorage) CreateAccount(ctx context.Context, in AccountInput) (*model.Account, error) {
	if err := validateAccountInput(in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = model.AccountTypeRegular
	}

	acct := &model.Account{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		CurrencyID:  in.CurrencyID,
		ColorScheme: in.ColorScheme,
		Type:        in.Type,
		Balance:     in.Balance,
	}

	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		if _, err := getCurrency(ctx, tx, `SELECT id, code, symbol, precision FROM currencies WHERE id = ?`, in.CurrencyID); err != nil {
			return err
		}
		siblings, err := siblingPositions(ctx, tx, `SELECT id, position FROM accounts`)
		if err != nil {
			return err
		}
		if acct.Position, err = appendPosition(siblings); err != nil {
			return err
		}

		return putRow(ctx, tx, w, model.TableAccounts, acct.ID, journal.Diff{
			{Name: "title", Value: acct.Title},
			{Name: "balance", Value: acct.Balance},
			{Name: "currency_id", Value: acct.CurrencyID},
			{Name: "position", Value: string(acct.Position)},
			{Name: "color_scheme", Value: acct.ColorScheme},
			{Name: "type", Value: string(acct.Type)},
			{Name: "is_archived", Value: false},
		}, journal.TagNone)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created account", "title", acct.Title, "id", acct.ID)
	return acct, nil
}

// GetAccount returns an account by id.
func (s *SQLiteStorage) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, q queryable, id string) (*model.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return acct, nil
}

// ListAccounts returns accounts ordered by position.
func (s *SQLiteStorage) ListAccounts(ctx context.Context, includeArchived bool) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !includeArchived {
		query += ` WHERE is_archived = 0`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	slices.SortStableFunc(accounts, func(a, b model.Account) int {
		return model.ComparePositions(a.Position, b.Position)
	})
	return accounts, nil
}

// UpdateAccount changes the given fields. Only columns whose value actually
// changes are journaled.
func (s *SQLiteStorage) UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*model.Account, error) {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidAccount)
	}
	if err := validateLabels(ErrInvalidAccount, upd.Title, upd.ColorScheme); err != nil {
		return nil, err
	}
	if upd.Type != nil && !upd.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAccount, *upd.Type)
	}

	var updated *model.Account
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		acct, err := getAccount(ctx, tx, id)
		if err != nil {
			return err
		}

		var diff journal.Diff
		if upd.Title != nil && strings.TrimSpace(*upd.Title) != acct.Title {
			acct.Title = strings.TrimSpace(*upd.Title)
			diff = append(diff, journal.Column{Name: "title", Value: acct.Title})
		}
		if upd.ColorScheme != nil && *upd.ColorScheme != acct.ColorScheme {
			acct.ColorScheme = *upd.ColorScheme
			diff = append(diff, journal.Column{Name: "color_scheme", Value: acct.ColorScheme})
		}
		if upd.Type != nil && *upd.Type != acct.Type {
			acct.Type = *upd.Type
			diff = append(diff, journal.Column{Name: "type", Value: string(acct.Type)})
		}

		updated = acct
		return patchRow(ctx, tx, w, model.TableAccounts, id, diff)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ArchiveAccount sets or clears the archived flag. Accounts are never deleted.
func (s *SQLiteStorage) ArchiveAccount(ctx context.Context, id string, archived bool) error {
	return s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		acct, err := getAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		var diff journal.Diff
		if acct.IsArchived != archived {
			diff = journal.Diff{{Name: "is_archived", Value: archived}}
		}
		return patchRow(ctx, tx, w, model.TableAccounts, id, diff)
	})
}

// SetAccountBalance overwrites the balance. This is the only balance change
// that is journaled as a column patch.
func (s *SQLiteStorage) SetAccountBalance(ctx context.Context, id string, balance int64) error {
	return s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		acct, err := getAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		var diff journal.Diff
		if acct.Balance != balance {
			diff = journal.Diff{{Name: "balance", Value: balance}}
		}
		if err := patchRow(ctx, tx, w, model.TableAccounts, id, diff); err != nil {
			return err
		}
		s.logger.Info("set account balance", "id", id, "from", acct.Balance, "to", balance)
		return nil
	})
}

// MoveAccount places the account directly after afterID, or first when
// afterID is empty.
func (s *SQLiteStorage) MoveAccount(ctx context.Context, id, afterID string) (model.Position, error) {
	var pos model.Position
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		if _, err := getAccount(ctx, tx, id); err != nil {
			return err
		}
		siblings, err := siblingPositions(ctx, tx, `SELECT id, position FROM accounts`)
		if err != nil {
			return err
		}
		if pos, err = movePosition(siblings, id, afterID); err != nil {
			return err
		}
		return patchRow(ctx, tx, w, model.TableAccounts, id, journal.Diff{{Name: "position", Value: string(pos)}})
	})
	return pos, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var (
		acct    model.Account
		acctTyp string
	)
	if err := row.Scan(&acct.ID, &acct.Title, &acct.Balance, &acct.CurrencyID,
		&acct.Position, &acct.ColorScheme, &acctTyp, &acct.IsArchived); err != nil {
		return nil, err
	}
	acct.Type = model.AccountType(acctTyp)
	return &acct, nil
}
