package model

// Local table names. They double as the table names on the remote store.
const (
	TableCurrencies = "currencies"
	TableAccounts   = "accounts"
	TableCategories = "categories"
	TableTransfers  = "transfers"
)

// SyncedTables lists every table whose rows are uploaded.
var SyncedTables = []string{TableCurrencies, TableAccounts, TableCategories, TableTransfers}
