// Package core provides the lending domain types and money handling.
//
// Money is stored in integer cents. Conversions from decimal or float values
// round half-up to the nearest cent and reject values outside the int64 range.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	half        = decimal.New(5, -1)
	maxCentsDec = decimal.NewFromInt(math.MaxInt64)
	minCentsDec = decimal.NewFromInt(math.MinInt64)
)

// Zero is the additive identity.
func Zero() Money {
	return Money{}
}

// NewMoney returns a Money holding the given cents.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// MoneyFromDecimal converts a decimal amount to cents, rounding half-up.
//
// Examples:
//   MoneyFromDecimal(12.345) -> 1235
//   MoneyFromDecimal(-0.005) -> 0
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Mul(hundred).Add(half).Floor()
	if scaled.GreaterThan(maxCentsDec) || scaled.LessThan(minCentsDec) {
		return Money{}, ErrOutOfRange
	}
	return Money{Cents: scaled.IntPart()}, nil
}

// MoneyFromFloat converts a computed float amount to cents, rounding half-up.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Money{}, ErrOutOfRange
	}
	scaled := math.Floor(f*100 + 0.5)
	if scaled >= math.MaxInt64 || scaled < math.MinInt64 {
		return Money{}, ErrOutOfRange
	}
	return Money{Cents: int64(scaled)}, nil
}

// ParseMoney parses a positive amount string such as "12.34" or "12,34".
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
// Returns an error for invalid formats, negative values, or zero amounts.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrOutOfRange
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	if iv > (math.MaxInt64-fracCents)/100 {
		return 0, ErrOutOfRange
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) IsNegative() bool {
	return m.Cents < 0
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

func (m Money) LessThan(o Money) bool {
	return m.Cents < o.Cents
}

// FloorZero returns m, or zero when m is negative.
func (m Money) FloorZero() Money {
	if m.Cents < 0 {
		return Money{}
	}
	return m
}

// MinMoney returns the smaller of a and b.
func MinMoney(a, b Money) Money {
	if b.LessThan(a) {
		return b
	}
	return a
}

// Decimal returns the amount in major units (cents / 100).
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float returns the amount in major units for rate arithmetic.
// Use cents for anything that is persisted.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with two decimals, e.g. "1200.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
