package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPosition(t *testing.T) {
	p, err := NextPosition("")
	require.NoError(t, err)
	assert.Equal(t, FirstPosition, p)

	p, err = NextPosition("3")
	require.NoError(t, err)
	assert.Equal(t, Position("4"), p)

	p, err = NextPosition("3.5")
	require.NoError(t, err)
	assert.Equal(t, Position("4"), p)

	_, err = NextPosition("abc")
	assert.Error(t, err)
}

func TestPositionBetween(t *testing.T) {
	tests := []struct {
		name       string
		prev, next Position
		want       Position
		wantErr    bool
	}{
		{name: "empty list", want: FirstPosition},
		{name: "append", prev: "2", want: "3"},
		{name: "prepend", next: "1", want: "0"},
		{name: "midpoint", prev: "1", next: "2", want: "1.5"},
		{name: "nested midpoint", prev: "1.5", next: "2", want: "1.75"},
		{name: "reversed bounds", prev: "2", next: "1", wantErr: true},
		{name: "equal bounds", prev: "2", next: "2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PositionBetween(tt.prev, tt.next)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComparePositions(t *testing.T) {
	assert.Negative(t, ComparePositions("9", "10"))
	assert.Positive(t, ComparePositions("1.75", "1.5"))
	assert.Zero(t, ComparePositions("2", "2.0"))
}
