// Package model defines the ledger entities shared by storage, sync and the CLI.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxPrecision is the largest number of decimal places a currency may declare.
const MaxPrecision = 8

// ErrInvalidAmount is returned when an amount cannot be parsed or converted.
var ErrInvalidAmount = errors.New("invalid amount")

var amountPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

// FormatAmount renders an amount in minor units as a plain decimal string,
// e.g. 12345 with precision 2 becomes "123.45".
func FormatAmount(minor int64, precision int) string {
	return decimal.New(minor, -int32(precision)).StringFixed(int32(precision))
}

// ParseAmount parses user input into minor units for the given precision.
// Both '.' and ',' are accepted as the decimal separator. Negative values,
// grouping separators and more fractional digits than the precision allows
// are rejected.
func ParseAmount(input string, precision int) (int64, error) {
	if precision < 0 || precision > MaxPrecision {
		return 0, fmt.Errorf("%w: precision %d out of range", ErrInvalidAmount, precision)
	}

	s := strings.TrimSpace(input)
	if s == "" {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidAmount)
	}
	s = strings.Replace(s, ",", ".", 1)
	if !amountPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, input)
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 > precision {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, input, precision)
	}

	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return ToMinorUnits(d, precision)
}

// ToMinorUnits converts a decimal value into minor units, rounding half away
// from zero to the currency precision.
func ToMinorUnits(d decimal.Decimal, precision int) (int64, error) {
	scaled := d.Shift(int32(precision)).Round(0)
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%w: %s overflows int64 minor units", ErrInvalidAmount, d.String())
	}
	return bi.Int64(), nil
}

// Currency describes a currency and the precision of its minor units.
type Currency struct {
	ID        string
	Code      string
	Symbol    string
	Precision int
}

// Format renders an amount in this currency, e.g. "€12.50".
func (c Currency) Format(minor int64) string {
	if minor < 0 {
		return "-" + c.Symbol + FormatAmount(-minor, c.Precision)
	}
	return c.Symbol + FormatAmount(minor, c.Precision)
}

// Parse parses user input into minor units of this currency.
func (c Currency) Parse(input string) (int64, error) {
	return ParseAmount(input, c.Precision)
}
