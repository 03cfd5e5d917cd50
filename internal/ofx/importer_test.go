package ofx

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

type importFixture struct {
	store   *storage.SQLiteStorage
	opts    Options
	stmt    Statement
	account *model.Account
}

func newImportFixture(t *testing.T) importFixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	eur, err := store.CreateCurrency(ctx, storage.CurrencyInput{Code: "EUR", Symbol: "€", Precision: 2})
	require.NoError(t, err)
	checking, err := store.CreateAccount(ctx, storage.AccountInput{Title: "Checking", CurrencyID: eur.ID, Balance: 100000})
	require.NoError(t, err)
	spending, err := store.CreateCategory(ctx, storage.CategoryInput{Title: "Spending", CurrencyID: eur.ID})
	require.NoError(t, err)
	income, err := store.CreateCategory(ctx, storage.CategoryInput{Title: "Income", CurrencyID: eur.ID, IsIncome: true})
	require.NoError(t, err)

	statements, err := NewParser(nil).Parse(ctx, strings.NewReader(sampleBankOFX))
	require.NoError(t, err)

	return importFixture{
		store:   store,
		account: checking,
		stmt:    statements[0],
		opts: Options{
			AccountID:         checking.ID,
			ExpenseCategoryID: spending.ID,
			IncomeCategoryID:  income.ID,
		},
	}
}

func TestImport(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()

	var calls int
	res, err := NewImporter(f.store, nil).Import(ctx, f.stmt, f.opts, func(done, total int) {
		calls++
		assert.Equal(t, 4, total)
		assert.Equal(t, calls, done)
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 4}, res)
	assert.Equal(t, 4, calls)

	acct, err := f.store.GetAccount(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-2550-12500-50000+200000), acct.Balance)

	coffee, err := f.store.GetTransfer(ctx, TransferID(f.account.ID, "2024011501"))
	require.NoError(t, err)
	assert.Equal(t, f.account.ID, coffee.Source.ID)
	assert.Equal(t, f.opts.ExpenseCategoryID, coffee.Destination.ID)
	assert.Equal(t, int64(2550), coffee.SourceAmount)
	require.NotNil(t, coffee.Memo)
	assert.Equal(t, "STARBUCKS STORE #1234", *coffee.Memo)

	salary, err := f.store.GetTransfer(ctx, TransferID(f.account.ID, "2024013001"))
	require.NoError(t, err)
	assert.Equal(t, f.opts.IncomeCategoryID, salary.Source.ID)
	assert.Equal(t, f.account.ID, salary.Destination.ID)
}

func TestImport_IsIdempotent(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	im := NewImporter(f.store, nil)

	_, err := im.Import(ctx, f.stmt, f.opts, nil)
	require.NoError(t, err)
	res, err := im.Import(ctx, f.stmt, f.opts, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 4}, res)

	transfers, err := f.store.ListTransfers(ctx, storage.TransferFilter{})
	require.NoError(t, err)
	assert.Len(t, transfers, 4)
}

func TestImport_DryRun(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	f.opts.DryRun = true

	res, err := NewImporter(f.store, nil).Import(ctx, f.stmt, f.opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)

	transfers, err := f.store.ListTransfers(ctx, storage.TransferFilter{})
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestImport_CurrencyMismatch(t *testing.T) {
	f := newImportFixture(t)
	f.stmt.Currency = "USD"

	_, err := NewImporter(f.store, nil).Import(context.Background(), f.stmt, f.opts, nil)
	assert.ErrorIs(t, err, storage.ErrCurrencyMismatch)
}

func TestImport_UnknownCategory(t *testing.T) {
	f := newImportFixture(t)
	f.opts.ExpenseCategoryID = "missing"

	_, err := NewImporter(f.store, nil).Import(context.Background(), f.stmt, f.opts, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImport_SkipsZeroLines(t *testing.T) {
	f := newImportFixture(t)
	f.stmt.Lines = f.stmt.Lines[:1]
	f.stmt.Lines[0].Amount = f.stmt.Lines[0].Amount.Sub(f.stmt.Lines[0].Amount)

	res, err := NewImporter(f.store, nil).Import(context.Background(), f.stmt, f.opts, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{Zero: 1}, res)
}

func TestTransferID(t *testing.T) {
	assert.Equal(t, TransferID("acct", "F1"), TransferID("acct", "F1"))
	assert.NotEqual(t, TransferID("acct", "F1"), TransferID("acct", "F2"))
	assert.NotEqual(t, TransferID("a", "cctF1"), TransferID("acct", "F1"))
}
