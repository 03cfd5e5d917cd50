package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDB_Seeds(t *testing.T) {
	db := SetupTestDB(t).
		WithCurrency("EUR", 2).
		WithAccount("Cash", "EUR", 10000).
		WithCategory("Food", "EUR", false).
		WithSubcategory("Food", "Bakery")

	assert.Equal(t, "EUR", db.Currency("EUR").Code)
	assert.Equal(t, db.Currency("EUR").ID, db.Account("Cash").CurrencyID)
	assert.Equal(t, int64(10000), db.Balance("Cash"))

	bakery := db.Category("Food/Bakery")
	require.NotNil(t, bakery.ParentCategoryID)
	assert.Equal(t, db.Category("Food").ID, *bakery.ParentCategoryID)

	stats, err := db.Storage.Journal().Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.PendingTransactions)
}
