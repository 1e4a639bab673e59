// Package money converts between decimal amounts on the wire and the int64
// minor units the ledger stores.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits of the currency.
const Scale = 2

var (
	// ErrInvalidAmount marks an amount that cannot be represented in minor units.
	ErrInvalidAmount = errors.New("invalid amount")

	maxMinor = decimal.NewFromInt(1_000_000_000_000_000)
)

// ToMinor converts a positive decimal amount into minor units. Amounts with more
// than Scale fractional digits are rejected rather than rounded.
func ToMinor(amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	minor := amount.Shift(Scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, Scale)
	}
	if minor.GreaterThan(maxMinor) {
		return 0, fmt.Errorf("%w: exceeds maximum", ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

// Parse reads a decimal string such as "12.50" into minor units.
func Parse(raw string) (int64, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return ToMinor(amount)
}

// FromMinor converts minor units back into a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -Scale)
}

// Format renders minor units with exactly Scale fractional digits.
func Format(minor int64) string {
	return FromMinor(minor).StringFixed(Scale)
}
