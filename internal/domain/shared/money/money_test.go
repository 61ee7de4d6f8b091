package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajorRoundsToCents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		major float64
		want  int64
	}{
		{name: "whole", major: 100, want: 10000},
		{name: "fraction", major: 19.99, want: 1999},
		{name: "sub cent rounds", major: 0.004, want: 0},
		{name: "half cent rounds up", major: 0.005, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := FromMajor(tc.major, "usd")
			require.NoError(t, err)
			assert.Equal(t, tc.want, m.Amount)
			assert.Equal(t, "USD", m.Currency)
		})
	}
}

func TestFromMajorRejectsAmountsBeyondInt64(t *testing.T) {
	t.Parallel()

	for _, major := range []float64{1e20, -1e20, 92233720368547758.08, math.NaN(), math.Inf(1)} {
		_, err := FromMajor(major, "USD")
		assert.ErrorIs(t, err, ErrInvalidAmount, "major=%v", major)
	}

	m, err := FromMajor(1e15, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1e17), m.Amount)
}

func TestNewRejectsBadCurrency(t *testing.T) {
	t.Parallel()

	_, err := New(100, "dollars")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestAddRequiresSameCurrency(t *testing.T) {
	t.Parallel()

	_, err := Must(100, "USD").Add(Must(100, "EUR"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	sum, err := Must(150, "USD").Add(Must(250, "USD"))
	require.NoError(t, err)
	assert.Equal(t, int64(400), sum.Amount)
	assert.Equal(t, "4.00 USD", sum.String())
	assert.Equal(t, "usd", sum.LowerCurrency())
}
