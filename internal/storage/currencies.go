package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/model"
)

// CurrencyInput describes a new currency.
type CurrencyInput struct {
	Code      string
	Symbol    string
	Precision int
}

// CreateCurrency adds a currency. Currencies are immutable once created.
func (s *SQLiteStorage) CreateCurrency(ctx context.Context, in CurrencyInput) (*model.Currency, error) {
	if err := validateCurrencyInput(in); err != nil {
		return nil, err
	}

	cur := &model.Currency{
		ID:        uuid.NewString(),
		Code:      strings.ToUpper(strings.TrimSpace(in.Code)),
		Symbol:    in.Symbol,
		Precision: in.Precision,
	}

	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		return putRow(ctx, tx, w, model.TableCurrencies, cur.ID, journal.Diff{
			{Name: "code", Value: cur.Code},
			{Name: "symbol", Value: cur.Symbol},
			{Name: "precision", Value: int64(cur.Precision)},
		}, journal.TagNone)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created currency", "code", cur.Code, "id", cur.ID)
	return cur, nil
}

// GetCurrency returns a currency by id.
func (s *SQLiteStorage) GetCurrency(ctx context.Context, id string) (*model.Currency, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getCurrency(ctx, s.db, `SELECT id, code, symbol, precision FROM currencies WHERE id = ?`, id)
}

// GetCurrencyByCode returns a currency by ISO code, case-insensitively.
func (s *SQLiteStorage) GetCurrencyByCode(ctx context.Context, code string) (*model.Currency, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getCurrency(ctx, s.db,
		`SELECT id, code, symbol, precision FROM currencies WHERE code = ?`,
		strings.ToUpper(strings.TrimSpace(code)))
}

func getCurrency(ctx context.Context, q queryable, query string, arg string) (*model.Currency, error) {
	var cur model.Currency
	err := q.QueryRowContext(ctx, query, arg).Scan(&cur.ID, &cur.Code, &cur.Symbol, &cur.Precision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: currency %s", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query currency: %w", err)
	}
	return &cur, nil
}

// ListCurrencies returns all currencies ordered by code.
func (s *SQLiteStorage) ListCurrencies(ctx context.Context) ([]model.Currency, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, code, symbol, precision FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var currencies []model.Currency
	for rows.Next() {
		var cur model.Currency
		if err := rows.Scan(&cur.ID, &cur.Code, &cur.Symbol, &cur.Precision); err != nil {
			return nil, fmt.Errorf("failed to scan currency: %w", err)
		}
		currencies = append(currencies, cur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating currencies: %w", err)
	}
	return currencies, nil
}
