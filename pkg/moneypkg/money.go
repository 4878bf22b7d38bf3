// Package moneypkg provides parsing and validation of money amounts.
package moneypkg

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Balances are stored as NUMERIC(19,4).
const (
	// MaxScale is the number of decimal places stored for balances.
	MaxScale = 4
	// MaxIntegerDigits is the number of digits stored before the decimal point.
	MaxIntegerDigits = 15
)

// limit is the smallest magnitude that does not fit the balance column.
var limit = decimal.New(1, MaxIntegerDigits)

// Parse converts s into a decimal with at most MaxScale decimal places and at
// most MaxIntegerDigits integer digits.
func Parse(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}

	// Rescaling a decimal with an extreme exponent allocates a power of ten of
	// that size, so such input is rejected before any arithmetic.
	exp := d.Exponent()
	if exp > MaxIntegerDigits || exp < -(MaxScale+MaxIntegerDigits) {
		return decimal.Zero, false
	}

	if exp < -MaxScale && !d.Equal(d.Truncate(MaxScale)) {
		return decimal.Zero, false
	}

	if !InRange(d) {
		return decimal.Zero, false
	}

	return d, true
}

// InRange reports whether d fits the balance column.
func InRange(d decimal.Decimal) bool {
	return d.Abs().LessThan(limit)
}

// IsPositive reports whether s is a valid amount greater than zero.
func IsPositive(s string) bool {
	d, ok := Parse(s)
	return ok && d.IsPositive()
}

// IsNonNegative reports whether s is a valid amount greater than or equal to zero.
func IsNonNegative(s string) bool {
	d, ok := Parse(s)
	return ok && !d.IsNegative()
}

// ValidAmount validates whether the field is a positive amount.
var ValidAmount validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return IsPositive(s)
	}
	return false
}

// ValidBalance validates whether the field is a non-negative amount.
var ValidBalance validator.Func = func(fl validator.FieldLevel) bool {
	if s, ok := fl.Field().Interface().(string); ok {
		return IsNonNegative(s)
	}
	return false
}

// RegisterValidations registers the amount and balance tags on v.
func RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("amount", ValidAmount); err != nil {
		return err
	}

	return v.RegisterValidation("balance", ValidBalance)
}
