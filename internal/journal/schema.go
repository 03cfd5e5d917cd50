package journal

// Schema creates the journal queue tables. Storage migrations run it.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS crud_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS crud_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tx_id INTEGER NOT NULL REFERENCES crud_transactions(id),
		table_name TEXT NOT NULL,
		row_id TEXT NOT NULL,
		op TEXT NOT NULL CHECK (op IN ('PUT', 'PATCH', 'DELETE')),
		data TEXT,
		metadata TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crud_entries_tx_id ON crud_entries(tx_id)`,
}

// DeadLetterSchema creates the table holding discarded transactions.
var DeadLetterSchema = []string{
	`CREATE TABLE IF NOT EXISTS crud_dead_letters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tx_id INTEGER NOT NULL,
		entries TEXT NOT NULL,
		error_code TEXT NOT NULL,
		error_message TEXT NOT NULL,
		discarded_at TEXT NOT NULL
	)`,
}

// LeaseSchema creates the single-row table that records which process is
// draining the journal.
var LeaseSchema = []string{
	`CREATE TABLE IF NOT EXISTS sync_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		owner TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
}
