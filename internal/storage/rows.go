package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Veraticus/pocket-ledger/internal/journal"
	"github.com/Veraticus/pocket-ledger/internal/model"
)

// putRow inserts a row and journals a PUT carrying every column.
func putRow(ctx context.Context, q queryable, w *journal.Writer, table, id string, cols journal.Diff, tag journal.Tag) error {
	names := append([]string{"id"}, cols.Names()...)
	args := append([]any{id}, cols.Values()...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), placeholders)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return w.Record(ctx, table, id, journal.OpPut, cols, tag)
}

// patchRow updates the given columns and journals a PATCH with exactly those
// columns. An empty diff is still journaled; the journal prunes it before
// upload.
func patchRow(ctx context.Context, q queryable, w *journal.Writer, table, id string, cols journal.Diff) error {
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c.Name + " = ?"
		}
		args := append(cols.Values(), id)

		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check update of %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, table, id)
		}
	}
	return w.Record(ctx, table, id, journal.OpPatch, cols, journal.TagNone)
}

// applyBalanceDeltas adjusts local balances optimistically. The deltas are not
// journaled; the remote transfer procedures apply them server-side.
func applyBalanceDeltas(ctx context.Context, q queryable, deltas map[string]int64) error {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if deltas[id] == 0 {
			continue
		}
		res, err := q.ExecContext(ctx, `UPDATE accounts SET balance = balance + ? WHERE id = ?`, deltas[id], id)
		if err != nil {
			return fmt.Errorf("failed to apply balance delta to account %s: %w", id, err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return fmt.Errorf("%w: account %s", ErrNotFound, id)
		}
	}
	return nil
}

type positioned struct {
	id       string
	position model.Position
}

// siblingPositions loads id/position pairs and sorts them numerically.
func siblingPositions(ctx context.Context, q queryable, query string, args ...any) ([]positioned, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []positioned
	for rows.Next() {
		var p positioned
		if err := rows.Scan(&p.id, &p.position); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	slices.SortStableFunc(out, func(a, b positioned) int {
		return model.ComparePositions(a.position, b.position)
	})
	return out, nil
}

// appendPosition returns the position after the last sibling.
func appendPosition(siblings []positioned) (model.Position, error) {
	if len(siblings) == 0 {
		return model.FirstPosition, nil
	}
	return model.NextPosition(siblings[len(siblings)-1].position)
}

// movePosition computes the position for id placed directly after afterID,
// or at the front when afterID is empty.
func movePosition(siblings []positioned, id, afterID string) (model.Position, error) {
	others := slices.DeleteFunc(slices.Clone(siblings), func(p positioned) bool { return p.id == id })

	if afterID == "" {
		if len(others) == 0 {
			return model.FirstPosition, nil
		}
		return model.PositionBetween("", others[0].position)
	}

	idx := slices.IndexFunc(others, func(p positioned) bool { return p.id == afterID })
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, afterID)
	}
	var next model.Position
	if idx+1 < len(others) {
		next = others[idx+1].position
	}
	return model.PositionBetween(others[idx].position, next)
}
