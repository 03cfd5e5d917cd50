package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Position is a sort key stored as a decimal string. Inserting between two
// rows takes the midpoint, so positions never need renumbering and never pick
// up float rounding.
type Position string

// FirstPosition is assigned to the first row of a list.
const FirstPosition Position = "1"

// Decimal parses the position. An empty position sorts as zero.
func (p Position) Decimal() (decimal.Decimal, error) {
	if p == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(string(p))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid position %q: %w", string(p), err)
	}
	return d, nil
}

// ComparePositions orders two positions numerically. Unparseable positions
// sort first.
func ComparePositions(a, b Position) int {
	da, errA := a.Decimal()
	db, errB := b.Decimal()
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return da.Cmp(db)
}

// NextPosition returns a position after last. An empty last yields FirstPosition.
func NextPosition(last Position) (Position, error) {
	if last == "" {
		return FirstPosition, nil
	}
	d, err := last.Decimal()
	if err != nil {
		return "", err
	}
	return Position(d.Floor().Add(decimal.NewFromInt(1)).String()), nil
}

// PositionBetween returns a position strictly between prev and next. Either
// bound may be empty to mean the start or end of the list.
func PositionBetween(prev, next Position) (Position, error) {
	switch {
	case prev == "" && next == "":
		return FirstPosition, nil
	case next == "":
		return NextPosition(prev)
	}

	dn, err := next.Decimal()
	if err != nil {
		return "", err
	}
	if prev == "" {
		return Position(dn.Sub(decimal.NewFromInt(1)).String()), nil
	}

	dp, err := prev.Decimal()
	if err != nil {
		return "", err
	}
	if dp.Cmp(dn) >= 0 {
		return "", fmt.Errorf("invalid position range: %s is not before %s", prev, next)
	}
	mid := dp.Add(dn).Div(decimal.NewFromInt(2))
	if mid.Cmp(dp) <= 0 || mid.Cmp(dn) >= 0 {
		return "", fmt.Errorf("no room between positions %s and %s", prev, next)
	}
	return Position(mid.String()), nil
}
