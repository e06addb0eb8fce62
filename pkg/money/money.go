package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Exponent 最小單位的小數位數 (1.00 = 100)
const Exponent = 2

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more than 2 decimal places")
	ErrOutOfRange    = errors.New("amount out of range")
)

var (
	maxMinor = decimal.NewFromInt(1<<63 - 1)
	minMinor = decimal.NewFromInt(-1 << 63)
)

// Format 將最小單位金額轉成顯示字串，例如 12345 -> "123.45"
func Format(minor int64) string {
	return decimal.New(minor, -Exponent).StringFixed(Exponent)
}

// Parse 將顯示字串轉回最小單位金額，例如 "123.4" -> 12340
func Parse(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Shift(Exponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	return minor.IntPart(), nil
}
