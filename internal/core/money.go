// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values (shopspring/decimal), never floats, so what the
// user typed is what gets stored and summed.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Value decimal.Decimal
}

// Exponents are capped at two digits so "1e999999" cannot allocate a huge number.
var amountPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d{1,2})?$`)

// ParseAmount converts a user token into a positive amount.
//
// A single decimal comma is accepted ("12,5" is 12.5); thousands separators
// are not. Examples:
//
//	ParseAmount("500")  -> 500
//	ParseAmount("12,5") -> 12.5
//	ParseAmount("-3")   -> ErrNonPositiveAmount
//	ParseAmount("abc")  -> ErrInvalidAmount
func ParseAmount(token string) (Money, error) {
	normalized := strings.Replace(token, ",", ".", 1)
	if !amountPattern.MatchString(normalized) {
		return Money{}, &ParseError{Kind: ErrInvalidAmount, Input: token}
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Money{}, &ParseError{Kind: ErrInvalidAmount, Input: token}
	}
	if !d.IsPositive() {
		return Money{}, &ParseError{Kind: ErrNonPositiveAmount, Input: token}
	}
	return Money{Value: d}, nil
}

// MustParseAmount is ParseAmount for literals known to be valid.
func MustParseAmount(token string) Money {
	m, err := ParseAmount(token)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Validate() error {
	if !m.Value.IsPositive() {
		return ErrNonPositiveAmount
	}
	return nil
}

// String renders the amount without exponent and without trailing
// fractional zeros: 500, 12.5, 0.01.
func (m Money) String() string {
	return m.Value.String()
}

func (m Money) Add(other Money) Money {
	return Money{Value: m.Value.Add(other.Value)}
}

func (m Money) Equal(other Money) bool {
	return m.Value.Equal(other.Value)
}
