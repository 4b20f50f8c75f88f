package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidNumber reports a value that could not be parsed as a decimal.
// Callers substitute zero and log a warning rather than abort.
var ErrInvalidNumber = errors.New("invalid number")

// DecimalScale is the fraction width used for every serialized decimal.
const DecimalScale = 8

// NormalizeDecimal parses a numeric string into an exact decimal value.
// Scientific notation ("5E-8", "1.2e3", "0E-8") and surrounding
// whitespace are accepted; the result re-serializes in plain fixed
// notation, so normalization is idempotent.
func NormalizeDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return d, nil
}

// FormatDecimal renders d with DecimalScale fraction digits, never in
// scientific notation.
func FormatDecimal(d decimal.Decimal) string {
	return d.StringFixed(DecimalScale)
}
