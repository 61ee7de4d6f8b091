package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidAmount    = errors.New("money: invalid amount")
)

// Money keeps amounts in integer minor units (cents) to avoid floating point issues.
type Money struct {
	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`
}

// New constructs a Money value validating minimal invariants.
func New(amount int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	currency = strings.ToUpper(currency)
	return Money{Amount: amount, Currency: currency}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMajor converts a decimal amount in major units (dollars) to minor units.
func FromMajor(major float64, currency string) (Money, error) {
	if math.IsNaN(major) || math.IsInf(major, 0) {
		return Money{}, ErrInvalidAmount
	}
	minor := math.Round(major * 100)
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if minor >= math.MaxInt64 || minor < math.MinInt64 {
		return Money{}, ErrInvalidAmount
	}
	return New(int64(minor), currency)
}

// Add adds two money values ensuring currencies match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub subtracts other from the receiver.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// IsZero returns true if the amount equals zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// IsPositive reports whether the amount is at least one minor unit.
func (m Money) IsPositive() bool {
	return m.Amount > 0
}

// LowerCurrency returns the currency code in the lower-case form payment providers expect.
func (m Money) LowerCurrency() string {
	return strings.ToLower(m.Currency)
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, abs(m.Amount%100), m.Currency)
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
