package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name      string
		want      string
		minor     int64
		precision int
	}{
		{name: "cents", minor: 12345, precision: 2, want: "123.45"},
		{name: "leading zero", minor: 5, precision: 2, want: "0.05"},
		{name: "zero", minor: 0, precision: 2, want: "0.00"},
		{name: "no minor units", minor: 1500, precision: 0, want: "1500"},
		{name: "three places", minor: 1001, precision: 3, want: "1.001"},
		{name: "negative", minor: -250, precision: 2, want: "-2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.minor, tt.precision))
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      int64
		precision int
		wantErr   bool
	}{
		{name: "plain", input: "123.45", precision: 2, want: 12345},
		{name: "comma separator", input: "123,45", precision: 2, want: 12345},
		{name: "whole number", input: "7", precision: 2, want: 700},
		{name: "single fraction digit", input: "7.5", precision: 2, want: 750},
		{name: "trailing separator", input: "7.", precision: 2, want: 700},
		{name: "leading separator", input: ".5", precision: 2, want: 50},
		{name: "surrounding space", input: "  1.00 ", precision: 2, want: 100},
		{name: "zero precision", input: "42", precision: 0, want: 42},
		{name: "too many places", input: "1.234", precision: 2, wantErr: true},
		{name: "fraction with zero precision", input: "1.5", precision: 0, wantErr: true},
		{name: "negative", input: "-1.00", precision: 2, wantErr: true},
		{name: "empty", input: "   ", precision: 2, wantErr: true},
		{name: "letters", input: "12a", precision: 2, wantErr: true},
		{name: "grouping", input: "1,000.00", precision: 2, wantErr: true},
		{name: "overflow", input: "99999999999999999999", precision: 2, wantErr: true},
		{name: "bad precision", input: "1", precision: 9, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.precision)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for precision := 0; precision <= MaxPrecision; precision++ {
		values := []int64{0, 1, 9, 10, 99, 100, 101, 123456789, math.MaxInt64}
		for i := 0; i < 500; i++ {
			values = append(values, rng.Int63())
			values = append(values, rng.Int63n(1_000_000))
		}

		for _, v := range values {
			formatted := FormatAmount(v, precision)
			parsed, err := ParseAmount(formatted, precision)
			require.NoError(t, err, "precision %d value %d formatted %q", precision, v, formatted)
			require.Equal(t, v, parsed, "precision %d formatted %q", precision, formatted)
		}
	}
}

func TestCurrencyFormat(t *testing.T) {
	eur := Currency{Code: "EUR", Symbol: "€", Precision: 2}
	assert.Equal(t, "€12.50", eur.Format(1250))
	assert.Equal(t, "-€0.99", eur.Format(-99))

	got, err := eur.Parse("12,50")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), got)
}
