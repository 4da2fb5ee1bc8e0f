// Package money parses and formats SAR amounts stored as text in the workbook.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const Scale = 2

// Parse accepts a non-negative amount with at most two fractional digits.
// Used at write time; the result is what gets stored.
func Parse(raw string) (decimal.Decimal, error) {
	clean := normalize(raw)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q is negative", raw)
	}
	if -d.Exponent() > Scale && !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, fmt.Errorf("amount %q has more than %d fractional digits", raw, Scale)
	}
	return d, nil
}

// Normalize parses raw and returns the canonical stored form ("210.00").
func Normalize(raw string) (string, error) {
	d, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return Store(d), nil
}

// Lenient is used on aggregation: unreadable legacy text counts as zero.
func Lenient(raw string) (decimal.Decimal, bool) {
	clean := normalize(raw)
	if clean == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(clean)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// Store renders an amount for the workbook without rounding beyond the scale.
func Store(d decimal.Decimal) string {
	return d.Truncate(Scale).StringFixed(Scale)
}

// Display rounds half-to-even for presentation.
func Display(d decimal.Decimal) string {
	return d.RoundBank(Scale).StringFixed(Scale)
}

func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimSuffix(s, "SAR"), "sar")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
