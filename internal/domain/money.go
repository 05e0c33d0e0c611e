package domain

import (
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places between the major and
// minor currency units (rupees/paise, dollars/cents).
const MinorUnitExponent = 2

// FormatMinor renders an amount in minor units as a fixed two-decimal
// string in major units, e.g. 5000050 → "50000.50".
func FormatMinor(minor int64) string {
	return decimal.New(minor, -MinorUnitExponent).StringFixed(MinorUnitExponent)
}

// Ratio returns num/den as a decimal rounded to places, or zero when den
// is zero.
func Ratio(num, den int64, places int32) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), places)
}

// MulAmount returns qty × price in minor units. Both operands must be
// non-negative; a product that does not fit in int64 yields
// ErrAmountOverflow.
func MulAmount(qty, price int64) (int64, error) {
	if qty < 0 || price < 0 {
		return 0, ErrAmountOverflow
	}
	hi, lo := bits.Mul64(uint64(qty), uint64(price))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, ErrAmountOverflow
	}
	return int64(lo), nil
}

// AddAmount returns a + b for non-negative amounts, or ErrAmountOverflow.
func AddAmount(a, b int64) (int64, error) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// MaxPricePerShare is the highest per-share price a property with
// totalShares shares accepts, so that the whole issue at that price is
// still a representable amount.
func MaxPricePerShare(totalShares int64) int64 {
	if totalShares <= 0 {
		return math.MaxInt64
	}
	return math.MaxInt64 / totalShares
}
