// Package memory is an in-process remote store with the same procedure
// semantics as the Postgres schema. It backs tests and `pocket serve
// --backend memory`.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/Veraticus/pocket-ledger/internal/model"
	"github.com/Veraticus/pocket-ledger/internal/remote"
)

// Row is one stored row keyed by column name.
type Row map[string]any

// Call records one remote call for assertions.
type Call struct {
	Proc string
	ID   string
	Ops  int
}

// Store is a thread-safe in-memory remote.
type Store struct {
	tables   map[string]map[string]Row
	failures []error
	calls    []Call
	mu       sync.Mutex
}

// columns whitelists what apply_batch may write per table.
var columns = map[string][]string{
	model.TableCurrencies: {"code", "symbol", "precision"},
	model.TableAccounts:   {"title", "balance", "currency_id", "position", "color_scheme", "type", "is_archived"},
	model.TableCategories: {"title", "currency_id", "parent_category_id", "is_income", "color_scheme", "is_archived", "position"},
}

// New returns an empty store.
func New() *Store {
	return &Store{tables: newTables()}
}

func newTables() map[string]map[string]Row {
	t := make(map[string]map[string]Row, len(model.SyncedTables))
	for _, name := range model.SyncedTables {
		t[name] = make(map[string]Row)
	}
	return t
}

// FailNext queues errors returned, in order, by the next calls instead of
// applying them. A nil entry lets its call through.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// Calls returns every call made so far.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ResetCalls clears the call log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Balance returns an account balance.
func (s *Store) Balance(accountID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tables[model.TableAccounts][accountID]
	if !ok {
		return 0, false
	}
	b, _ := asInt64(row["balance"])
	return b, true
}

// Get returns a copy of a stored row.
func (s *Store) Get(table, id string) (Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tables[table][id]
	if !ok {
		return nil, false
	}
	return maps.Clone(row), true
}

// Count returns the number of rows in table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

// ApplyBatch implements remote.Backend.
func (s *Store) ApplyBatch(ctx context.Context, ops []remote.Operation) error {
	return s.atomic(ctx, Call{Proc: remote.ProcApplyBatch, Ops: len(ops)}, func(v *view) error {
		return v.applyBatch(ops)
	})
}

// CreateTransfer implements remote.Backend.
func (s *Store) CreateTransfer(ctx context.Context, p remote.TransferPayload) error {
	return s.atomic(ctx, Call{Proc: remote.ProcCreateTransfer, ID: p.ID}, func(v *view) error {
		return v.createTransfer(p)
	})
}

// EditTransfer implements remote.Backend.
func (s *Store) EditTransfer(ctx context.Context, p remote.TransferPayload) error {
	return s.atomic(ctx, Call{Proc: remote.ProcEditTransfer, ID: p.ID}, func(v *view) error {
		return v.editTransfer(p)
	})
}

// RevertTransfer implements remote.Backend.
func (s *Store) RevertTransfer(ctx context.Context, id string) error {
	return s.atomic(ctx, Call{Proc: remote.ProcRevertTransfer, ID: id}, func(v *view) error {
		return v.revertTransfer(id)
	})
}

// InTx runs fn against a view of the store. If fn fails every change it made
// is rolled back.
func (s *Store) InTx(ctx context.Context, fn func(remote.Backend) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := cloneTables(s.tables)
	tx := &txBackend{store: s}
	if err := fn(tx); err != nil {
		s.tables = snapshot
		return err
	}
	return nil
}

// atomic applies fn under the lock, restoring the previous state on error.
func (s *Store) atomic(ctx context.Context, call Call, fn func(*view) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(call, fn)
}

// apply must be called with mu held.
func (s *Store) apply(call Call, fn func(*view) error) error {
	s.calls = append(s.calls, call)
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		if err != nil {
			return err
		}
	}

	snapshot := cloneTables(s.tables)
	if err := fn(&view{tables: s.tables}); err != nil {
		s.tables = snapshot
		return err
	}
	return nil
}

// txBackend runs calls inside InTx, where the lock is already held.
type txBackend struct {
	store *Store
}

func (t *txBackend) ApplyBatch(ctx context.Context, ops []remote.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.apply(Call{Proc: remote.ProcApplyBatch, Ops: len(ops)}, func(v *view) error { return v.applyBatch(ops) })
}

func (t *txBackend) CreateTransfer(ctx context.Context, p remote.TransferPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.apply(Call{Proc: remote.ProcCreateTransfer, ID: p.ID}, func(v *view) error { return v.createTransfer(p) })
}

func (t *txBackend) EditTransfer(ctx context.Context, p remote.TransferPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.apply(Call{Proc: remote.ProcEditTransfer, ID: p.ID}, func(v *view) error { return v.editTransfer(p) })
}

func (t *txBackend) RevertTransfer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.store.apply(Call{Proc: remote.ProcRevertTransfer, ID: id}, func(v *view) error { return v.revertTransfer(id) })
}

func cloneTables(src map[string]map[string]Row) map[string]map[string]Row {
	dst := make(map[string]map[string]Row, len(src))
	for name, rows := range src {
		cp := make(map[string]Row, len(rows))
		for id, row := range rows {
			cp[id] = maps.Clone(row)
		}
		dst[name] = cp
	}
	return dst
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("%T is not an integer", v)
}
