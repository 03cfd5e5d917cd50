// Package journal records every local mutation so it can be replayed against
// the remote store. One local SQL transaction maps to one journal transaction;
// journal transactions are drained strictly in the order they were written.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Op is the kind of mutation a journal entry carries.
type Op string

const (
	// OpPut inserts or fully replaces a row.
	OpPut Op = "PUT"
	// OpPatch updates the listed columns of a row.
	OpPatch Op = "PATCH"
	// OpDelete removes a row.
	OpDelete Op = "DELETE"
)

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	switch op {
	case OpPut, OpPatch, OpDelete:
		return true
	}
	return false
}

// Tag marks entries that need a dedicated remote procedure instead of the
// generic batch apply.
type Tag string

const (
	// TagNone is the zero tag.
	TagNone Tag = ""
	// TagTransferCreate marks a PUT on transfers that creates a transfer.
	TagTransferCreate Tag = "transfer-create"
	// TagTransferEdit marks a PUT on transfers that replaces an existing transfer.
	TagTransferEdit Tag = "transfer-edit"
)

// ErrNoTransaction is returned when a journal or dead-letter id does not exist.
var ErrNoTransaction = errors.New("journal transaction not found")

// Column is one name/value pair of a column diff.
type Column struct {
	Value any    `json:"value"`
	Name  string `json:"name"`
}

// Diff is the ordered list of columns an entry sets.
type Diff []Column

// Get returns the value of the named column.
func (d Diff) Get(name string) (any, bool) {
	for _, c := range d {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// Text returns the named column as a string. A missing or null column
// reports false.
func (d Diff) Text(name string) (string, bool) {
	v, ok := d.Get(name)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64 returns the named column as an integer.
func (d Diff) Int64(name string) (int64, error) {
	v, ok := d.Get(name)
	if !ok || v == nil {
		return 0, fmt.Errorf("column %s is missing", name)
	}
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("column %s is not an integer: %v", name, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("column %s has type %T, want integer", name, v)
	}
}

// Map returns the diff as a column map for remote payloads.
func (d Diff) Map() map[string]any {
	m := make(map[string]any, len(d))
	for _, c := range d {
		m[c.Name] = c.Value
	}
	return m
}

// Names returns the column names in order.
func (d Diff) Names() []string {
	names := make([]string, len(d))
	for i, c := range d {
		names[i] = c.Name
	}
	return names
}

// Values returns the column values in order.
func (d Diff) Values() []any {
	values := make([]any, len(d))
	for i, c := range d {
		values[i] = c.Value
	}
	return values
}

// Entry is a single journaled mutation.
type Entry struct {
	Data  Diff   `json:"data"`
	Table string `json:"table"`
	RowID string `json:"row_id"`
	Op    Op     `json:"op"`
	Tag   Tag    `json:"tag,omitempty"`
	ID    int64  `json:"id"`
	TxID  int64  `json:"tx_id"`
}

// Transaction is the unit of upload: every entry written by one local SQL
// transaction.
type Transaction struct {
	CreatedAt time.Time
	Entries   []Entry
	ID        int64
}

// DeadLetter is a journal transaction the remote rejected as fatal.
type DeadLetter struct {
	DiscardedAt  time.Time
	ErrorCode    string
	ErrorMessage string
	Entries      []Entry
	ID           int64
	TxID         int64
}

// Stats summarizes the journal.
type Stats struct {
	PendingTransactions int
	PendingEntries      int
	DeadLetters         int
}

func encodeDiff(d Diff) (string, error) {
	if d == nil {
		d = Diff{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode column diff: %w", err)
	}
	return string(b), nil
}

// decodeDiff keeps numbers as json.Number so int64 balances survive intact.
func decodeDiff(raw string) (Diff, error) {
	if raw == "" {
		return Diff{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var d Diff
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode column diff: %w", err)
	}
	if d == nil {
		d = Diff{}
	}
	return d, nil
}

func encodeEntries(entries []Entry) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode entries: %w", err)
	}
	return string(b), nil
}

func decodeEntries(raw string) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var entries []Entry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode entries: %w", err)
	}
	return entries, nil
}
