package engine

import (
	"fmt"
	"strings"
)

// MinorUnits is an integer amount in the currency's smallest unit.
type MinorUnits int64

// Int64 returns the raw minor-unit count.
func (units MinorUnits) Int64() int64 {
	return int64(units)
}

// Money is a fixed-precision amount: an integer minor-unit count plus a
// currency code. All monetary arithmetic in the engine routes through it.
type Money struct {
	units    MinorUnits
	currency string
}

// DefaultCurrency is the platform settlement currency.
const DefaultCurrency = "BDT"

// NewMoney validates a currency code and wraps an amount.
func NewMoney(units int64, currency string) (Money, error) {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	if len(normalized) != 3 {
		return Money{}, fmt.Errorf("%w: currency code must be three letters", ErrInvalidCurrency)
	}
	return Money{units: MinorUnits(units), currency: normalized}, nil
}

// MustMoney wraps an amount in the default currency. For fixed policy tables.
func MustMoney(units int64) Money {
	return Money{units: MinorUnits(units), currency: DefaultCurrency}
}

// Units returns the minor-unit count.
func (money Money) Units() MinorUnits {
	return money.units
}

// Currency returns the normalized currency code.
func (money Money) Currency() string {
	return money.currency
}

// IsZero reports whether the amount is exactly zero.
func (money Money) IsZero() bool {
	return money.units == 0
}

// IsNegative reports whether the amount is below zero.
func (money Money) IsNegative() bool {
	return money.units < 0
}

// IsPositive reports whether the amount is above zero.
func (money Money) IsPositive() bool {
	return money.units > 0
}

// Add returns the sum of two amounts of the same currency.
func (money Money) Add(other Money) (Money, error) {
	if err := money.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{units: money.units + other.units, currency: money.currency}, nil
}

// Sub returns the difference of two amounts of the same currency.
func (money Money) Sub(other Money) (Money, error) {
	if err := money.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{units: money.units - other.units, currency: money.currency}, nil
}

// Neg returns the amount with its sign flipped.
func (money Money) Neg() Money {
	return Money{units: -money.units, currency: money.currency}
}

// Cmp compares two amounts of the same currency: -1, 0, or +1.
func (money Money) Cmp(other Money) (int, error) {
	if err := money.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case money.units < other.units:
		return -1, nil
	case money.units > other.units:
		return 1, nil
	default:
		return 0, nil
	}
}

// MulBasisPoints multiplies by rate/10000 rounding half-up away from zero.
// Fee percentages are expressed in basis points so the rounding rule is
// exercised on every percentage fee. The product is computed piecewise:
// the result is exact whenever the scaled amount itself fits in int64,
// including amounts far above what a full-width multiply could handle.
func (money Money) MulBasisPoints(rate int64) Money {
	whole := money.units.Int64() / basisPointDenominator
	fraction := money.units.Int64() % basisPointDenominator
	partial := fraction * rate
	quotient := whole*rate + partial/basisPointDenominator
	remainder := partial % basisPointDenominator
	magnitude := remainder
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude*2 >= basisPointDenominator {
		if remainder < 0 {
			quotient--
		} else {
			quotient++
		}
	}
	return Money{units: MinorUnits(quotient), currency: money.currency}
}

// Max returns the larger of two amounts of the same currency.
func (money Money) Max(other Money) (Money, error) {
	comparison, err := money.Cmp(other)
	if err != nil {
		return Money{}, err
	}
	if comparison >= 0 {
		return money, nil
	}
	return other, nil
}

// String renders the amount as "<units> <currency>".
func (money Money) String() string {
	return fmt.Sprintf("%d %s", money.units, money.currency)
}

func (money Money) sameCurrency(other Money) error {
	if money.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, money.currency, other.currency)
	}
	return nil
}

const basisPointDenominator = 10000
