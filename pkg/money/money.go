// Package money converts between rupee amounts as clients write them and the
// paise stored in every *_cents column.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const minorPerMajor = 100

var hundred = decimal.NewFromInt(minorPerMajor)

// ParseMajor parses a rupee string such as "1500" or "1500.50" into paise.
// More than two decimal places is an error rather than a rounding.
func ParseMajor(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	return FromDecimal(d)
}

// FromDecimal converts a rupee decimal into paise.
func FromDecimal(d decimal.Decimal) (int64, error) {
	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", d.String())
	}
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<53)) || minor.LessThan(decimal.NewFromInt(-(1 << 53))) {
		return 0, fmt.Errorf("amount %s out of range", d.String())
	}
	return minor.IntPart(), nil
}

// ToDecimal converts paise to a rupee decimal.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatMajor renders paise as a fixed two-place rupee string, e.g. "1500.50".
func FormatMajor(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}

// Display renders paise for human-facing text, dropping ".00".
func Display(cents int64) string {
	d := ToDecimal(cents)
	if d.IsInteger() {
		return "₹" + d.StringFixed(0)
	}
	return "₹" + d.StringFixed(2)
}
