// Package money provides parsing and arithmetic helpers for COP amounts.
//
// Amounts are carried as decimal.Decimal throughout the service and stored
// as NUMERIC in Postgres. The card rail (Wompi widget) works in centavos,
// so conversion to and from minor units lives here too.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// COP has two decimal places on the wire, though in practice cafeteria
// prices are whole pesos.
const Places = 2

// Parse converts a decimal string (e.g. "50000" or "1500.50") to a Decimal.
// Negative amounts are rejected.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: negative", s)
	}
	return d, nil
}

// Format renders an amount with two decimal places ("50000.00").
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// ToCents converts a COP amount to centavos for the card-payment widget.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

// FromCents converts centavos back to a COP amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

// WithinTolerance reports whether got falls inside the symmetric band
// [expected*(1-tol), expected*(1+tol)]. Both boundaries are inclusive.
func WithinTolerance(got, expected, tol decimal.Decimal) bool {
	lo := expected.Mul(decimal.NewFromInt(1).Sub(tol))
	hi := expected.Mul(decimal.NewFromInt(1).Add(tol))
	return got.GreaterThanOrEqual(lo) && got.LessThanOrEqual(hi)
}
