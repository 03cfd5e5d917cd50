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

// CategoryInput describes a new top-level category.
type CategoryInput struct {
	Title       string
	CurrencyID  string
	ColorScheme string
	IsIncome    bool
}

// CategoryUpdate lists the category fields to change. Nil fields are left alone.
type CategoryUpdate struct {
	Title       *string
	ColorScheme *string
}

const categoryColumns = `id, title, currency_id, parent_category_id, is_income, color_scheme, is_archived, position`

// CreateCategory adds a top-level category at the end of its list.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, in CategoryInput) (*model.Category, error) {
	if err := validateCategoryInput(in); err != nil {
		return nil, err
	}

	cat := &model.Category{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		CurrencyID:  in.CurrencyID,
		ColorScheme: in.ColorScheme,
		IsIncome:    in.IsIncome,
	}

	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		if _, err := getCurrency(ctx, tx, `SELECT id, code, symbol, precision FROM currencies WHERE id = ?`, in.CurrencyID); err != nil {
			return err
		}
		return insertCategory(ctx, tx, w, cat)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created category", "title", cat.Title, "id", cat.ID, "income", cat.IsIncome)
	return cat, nil
}

// CreateSubcategory adds a subcategory under parentID. It inherits the
// parent's currency and income flag. Subcategories cannot be nested.
func (s *SQLiteStorage) CreateSubcategory(ctx context.Context, parentID, title string) (*model.Subcategory, error) {
	if err := validateString(title, "title"); err != nil {
		return nil, err
	}
	if err := validateLabels(ErrInvalidCategory, &title, nil); err != nil {
		return nil, err
	}

	var sub model.Subcategory
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		parent, err := getCategory(ctx, tx, parentID)
		if err != nil {
			return err
		}
		if parent.IsSubcategory() {
			return fmt.Errorf("%w: %s is already a subcategory", ErrInvalidCategory, parent.Title)
		}

		cat := &model.Category{
			ID:               uuid.NewString(),
			Title:            strings.TrimSpace(title),
			CurrencyID:       parent.CurrencyID,
			ParentCategoryID: &parent.ID,
			IsIncome:         parent.IsIncome,
			ColorScheme:      parent.ColorScheme,
		}
		if err := insertCategory(ctx, tx, w, cat); err != nil {
			return err
		}
		sub, _ = cat.AsSubcategory()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created subcategory", "title", sub.Title, "id", sub.ID, "parent", sub.CategoryID)
	return &sub, nil
}

func insertCategory(ctx context.Context, tx *sql.Tx, w *journal.Writer, cat *model.Category) error {
	siblings, err := categorySiblings(ctx, tx, cat.ParentCategoryID)
	if err != nil {
		return err
	}
	if cat.Position, err = appendPosition(siblings); err != nil {
		return err
	}

	var parent any
	if cat.ParentCategoryID != nil {
		parent = *cat.ParentCategoryID
	}

	return putRow(ctx, tx, w, model.TableCategories, cat.ID, journal.Diff{
		{Name: "title", Value: cat.Title},
		{Name: "currency_id", Value: cat.CurrencyID},
		{Name: "parent_category_id", Value: parent},
		{Name: "is_income", Value: cat.IsIncome},
		{Name: "color_scheme", Value: cat.ColorScheme},
		{Name: "is_archived", Value: false},
		{Name: "position", Value: string(cat.Position)},
	}, journal.TagNone)
}

func categorySiblings(ctx context.Context, q queryable, parentID *string) ([]positioned, error) {
	if parentID == nil {
		return siblingPositions(ctx, q, `SELECT id, position FROM categories WHERE parent_category_id IS NULL`)
	}
	return siblingPositions(ctx, q, `SELECT id, position FROM categories WHERE parent_category_id = ?`, *parentID)
}

// GetCategory returns a category or subcategory row by id.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getCategory(ctx, s.db, id)
}

func getCategory(ctx context.Context, q queryable, id string) (*model.Category, error) {
	row := q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: category %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// ListCategories returns top-level categories ordered by position.
func (s *SQLiteStorage) ListCategories(ctx context.Context, includeArchived bool) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE parent_category_id IS NULL`
	if !includeArchived {
		query += ` AND is_archived = 0`
	}
	return s.queryCategories(ctx, query)
}

// GetSubcategories returns the subcategories of parentID ordered by position.
func (s *SQLiteStorage) GetSubcategories(ctx context.Context, parentID string) ([]model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	cats, err := s.queryCategories(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE parent_category_id = ? AND is_archived = 0`, parentID)
	if err != nil {
		return nil, err
	}

	subs := make([]model.Subcategory, 0, len(cats))
	for _, c := range cats {
		if sub, ok := c.AsSubcategory(); ok {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *SQLiteStorage) queryCategories(ctx context.Context, query string, args ...any) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slices.SortStableFunc(categories, func(a, b model.Category) int {
		return model.ComparePositions(a.Position, b.Position)
	})
	return categories, nil
}

// UpdateCategory changes the given fields, journaling only real changes.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, id string, upd CategoryUpdate) (*model.Category, error) {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidCategory)
	}
	if err := validateLabels(ErrInvalidCategory, upd.Title, upd.ColorScheme); err != nil {
		return nil, err
	}

	var updated *model.Category
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		cat, err := getCategory(ctx, tx, id)
		if err != nil {
			return err
		}

		var diff journal.Diff
		if upd.Title != nil && strings.TrimSpace(*upd.Title) != cat.Title {
			cat.Title = strings.TrimSpace(*upd.Title)
			diff = append(diff, journal.Column{Name: "title", Value: cat.Title})
		}
		if upd.ColorScheme != nil && *upd.ColorScheme != cat.ColorScheme {
			cat.ColorScheme = *upd.ColorScheme
			diff = append(diff, journal.Column{Name: "color_scheme", Value: cat.ColorScheme})
		}

		updated = cat
		return patchRow(ctx, tx, w, model.TableCategories, id, diff)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ArchiveCategory sets or clears the archived flag. Archiving a category
// archives its subcategories in the same transaction.
func (s *SQLiteStorage) ArchiveCategory(ctx context.Context, id string, archived bool) error {
	return s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		cat, err := getCategory(ctx, tx, id)
		if err != nil {
			return err
		}

		ids := []string{cat.ID}
		if !cat.IsSubcategory() && archived {
			children, err := categorySiblings(ctx, tx, &cat.ID)
			if err != nil {
				return err
			}
			for _, c := range children {
				ids = append(ids, c.id)
			}
		}

		for _, catID := range ids {
			current, err := getCategory(ctx, tx, catID)
			if err != nil {
				return err
			}
			var diff journal.Diff
			if current.IsArchived != archived {
				diff = journal.Diff{{Name: "is_archived", Value: archived}}
			}
			if err := patchRow(ctx, tx, w, model.TableCategories, catID, diff); err != nil {
				return err
			}
		}
		return nil
	})
}

// MoveCategory places the category directly after afterID among its
// siblings, or first when afterID is empty.
func (s *SQLiteStorage) MoveCategory(ctx context.Context, id, afterID string) (model.Position, error) {
	var pos model.Position
	err := s.withTx(ctx, func(tx *sql.Tx, w *journal.Writer) error {
		cat, err := getCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		siblings, err := categorySiblings(ctx, tx, cat.ParentCategoryID)
		if err != nil {
			return err
		}
		if pos, err = movePosition(siblings, id, afterID); err != nil {
			return err
		}
		return patchRow(ctx, tx, w, model.TableCategories, id, journal.Diff{{Name: "position", Value: string(pos)}})
	})
	return pos, err
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var (
		cat    model.Category
		parent sql.NullString
	)
	if err := row.Scan(&cat.ID, &cat.Title, &cat.CurrencyID, &parent, &cat.IsIncome,
		&cat.ColorScheme, &cat.IsArchived, &cat.Position); err != nil {
		return nil, err
	}
	if parent.Valid {
		cat.ParentCategoryID = &parent.String
	}
	return &cat, nil
}
