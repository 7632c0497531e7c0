// Package money maps ISO 4217 codes to their minor-unit scale and converts
// decimal amounts to integer minor units.
package money

import (
	"fmt"
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ledger/internal/domain"
)

// NormalizeCurrency upper-cases and validates an ISO currency code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 || gomoney.GetCurrency(c) == nil {
		return "", fmt.Errorf("%w: unknown currency %q", domain.ErrValidation, code)
	}
	return c, nil
}

// IsCurrency reports whether code is a known ISO currency (case-insensitive).
func IsCurrency(code string) bool {
	_, err := NormalizeCurrency(code)
	return err == nil
}

// Fraction returns the number of minor-unit digits of a currency.
func Fraction(code string) int {
	c := gomoney.GetCurrency(strings.ToUpper(code))
	if c == nil {
		return 2
	}
	return c.Fraction
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ToMinor converts a major-unit decimal to integer minor units, rounding half
// away from zero at the currency's precision. Amounts that do not fit in an
// int64 fail with domain.ErrValidation.
func ToMinor(amount decimal.Decimal, code string) (int64, error) {
	minor := amount.Shift(int32(Fraction(code))).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, fmt.Errorf("%w: amount %s %s is out of range", domain.ErrValidation, amount, strings.ToUpper(code))
	}
	return minor.IntPart(), nil
}

// FromMinor converts integer minor units back to a major-unit decimal.
func FromMinor(minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -int32(Fraction(code)))
}

// Format renders minor units with the currency's symbol and grouping.
func Format(minor int64, code string) string {
	return gomoney.New(minor, strings.ToUpper(code)).Display()
}
