// Package testutil provides ledger fixtures for tests that need a migrated
// local store seeded with currencies, accounts and categories.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/storage"
)

// TestDB is a migrated in-memory store plus the fixtures seeded into it.
type TestDB struct {
	Storage    *storage.SQLiteStorage
	t          *testing.T
	currencies map[string]*model.Currency
	accounts   map[string]*model.Account
	categories map[string]*model.Category
}

// SetupTestDB creates a new in-memory test database. It automatically handles
// migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t).
//		WithCurrency("EUR", 2).
//		WithAccount("Cash", "EUR", 10000).
//		WithCategory("Food", "EUR", false)
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return &TestDB{
		Storage:    store,
		t:          t,
		currencies: make(map[string]*model.Currency),
		accounts:   make(map[string]*model.Account),
		categories: make(map[string]*model.Category),
	}
}

// WithCurrency seeds a currency whose symbol is its code.
func (db *TestDB) WithCurrency(code string, precision int) *TestDB {
	db.t.Helper()
	cur, err := db.Storage.CreateCurrency(context.Background(), storage.CurrencyInput{
		Code:      code,
		Symbol:    code,
		Precision: precision,
	})
	if err != nil {
		db.t.Fatalf("failed to seed currency %q: %v", code, err)
	}
	db.currencies[code] = cur
	return db
}

// WithAccount seeds a regular account in an already seeded currency.
func (db *TestDB) WithAccount(title, code string, balance int64) *TestDB {
	db.t.Helper()
	acct, err := db.Storage.CreateAccount(context.Background(), storage.AccountInput{
		Title:      title,
		CurrencyID: db.Currency(code).ID,
		Balance:    balance,
	})
	if err != nil {
		db.t.Fatalf("failed to seed account %q: %v", title, err)
	}
	db.accounts[title] = acct
	return db
}

// WithCategory seeds a top-level category.
func (db *TestDB) WithCategory(title, code string, income bool) *TestDB {
	db.t.Helper()
	cat, err := db.Storage.CreateCategory(context.Background(), storage.CategoryInput{
		Title:      title,
		CurrencyID: db.Currency(code).ID,
		IsIncome:   income,
	})
	if err != nil {
		db.t.Fatalf("failed to seed category %q: %v", title, err)
	}
	db.categories[title] = cat
	return db
}

// WithSubcategory seeds a subcategory under a seeded parent. It is stored
// under the name "Parent/Title".
func (db *TestDB) WithSubcategory(parent, title string) *TestDB {
	db.t.Helper()
	ctx := context.Background()
	sub, err := db.Storage.CreateSubcategory(ctx, db.Category(parent).ID, title)
	if err != nil {
		db.t.Fatalf("failed to seed subcategory %q: %v", title, err)
	}
	cat, err := db.Storage.GetCategory(ctx, sub.ID)
	if err != nil {
		db.t.Fatalf("failed to load subcategory %q: %v", title, err)
	}
	db.categories[parent+"/"+title] = cat
	return db
}

// Currency returns the seeded currency with the given code or fails the test.
func (db *TestDB) Currency(code string) *model.Currency {
	db.t.Helper()
	cur, ok := db.currencies[code]
	if !ok {
		db.t.Fatalf("currency %q was not seeded", code)
	}
	return cur
}

// Account returns the seeded account with the given title or fails the test.
func (db *TestDB) Account(title string) *model.Account {
	db.t.Helper()
	acct, ok := db.accounts[title]
	if !ok {
		db.t.Fatalf("account %q was not seeded", title)
	}
	return acct
}

// Category returns the seeded category with the given name or fails the test.
func (db *TestDB) Category(name string) *model.Category {
	db.t.Helper()
	cat, ok := db.categories[name]
	if !ok {
		db.t.Fatalf("category %q was not seeded", name)
	}
	return cat
}

// Balance reads the current local balance of a seeded account.
func (db *TestDB) Balance(title string) int64 {
	db.t.Helper()
	acct, err := db.Storage.GetAccount(context.Background(), db.Account(title).ID)
	if err != nil {
		db.t.Fatalf("failed to load account %q: %v", title, err)
	}
	return acct.Balance
}
