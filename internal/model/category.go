package model

// Category groups income or expense transfers. A category with a parent is a
// subcategory; only one level of nesting exists.
type Category struct {
	ParentCategoryID *string
	ID               string
	Title            string
	CurrencyID       string
	ColorScheme      string
	Position         Position
	IsIncome         bool
	IsArchived       bool
}

// IsSubcategory reports whether the category belongs to a parent category.
func (c Category) IsSubcategory() bool {
	return c.ParentCategoryID != nil
}

// Subcategory is the narrow view of a category row that has a parent.
type Subcategory struct {
	ID         string
	Title      string
	Position   Position
	CategoryID string
}

// AsSubcategory returns the subcategory view of c, or false when c is a
// top-level category.
func (c Category) AsSubcategory() (Subcategory, bool) {
	if c.ParentCategoryID == nil {
		return Subcategory{}, false
	}
	return Subcategory{
		ID:         c.ID,
		Title:      c.Title,
		Position:   c.Position,
		CategoryID: *c.ParentCategoryID,
	}, true
}
