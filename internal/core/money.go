// Package core provides money parsing and handling utilities.
//
// Money is kept in integer minor units (cents) end to end. This file contains
// parsing from decimal strings, arithmetic helpers and the JSON encoding used
// by receipts and dashboards.
package core

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in minor units (scale 2).
type Money struct {
	Cents int64
}

// Percent is a ratio expressed in basis points (10000 = 100%).
type Percent int64

var ErrInvalidAmount = errors.New("invalid amount")

// NewMoney returns a Money for the given number of minor units.
func NewMoney(cents int64) Money { return Money{Cents: cents} }

// FromMajor returns a Money for a whole number of major units.
func FromMajor(units int64) Money { return Money{Cents: units * 100} }

// MoneyPtr is a convenience for optional money fields.
func MoneyPtr(cents int64) *Money { return &Money{Cents: cents} }

// MaxCents bounds every amount a receipt may carry.
const MaxCents int64 = 1_000_000_000_000_000

// Add saturates at the int64 bounds instead of wrapping.
func (m Money) Add(o Money) Money {
	sum := m.Cents + o.Cents
	switch {
	case m.Cents > 0 && o.Cents > 0 && sum < 0:
		return Money{Cents: math.MaxInt64}
	case m.Cents < 0 && o.Cents < 0 && sum >= 0:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: sum}
}

func (m Money) Sub(o Money) Money {
	if o.Cents == math.MinInt64 {
		if m.Cents >= 0 {
			return Money{Cents: math.MaxInt64}
		}
		return Money{Cents: m.Cents - o.Cents}
	}
	return m.Add(Money{Cents: -o.Cents})
}

// Mul multiplies by an integer quantity, saturating on overflow.
func (m Money) Mul(q int64) Money {
	if p, ok := m.CheckedMul(q); ok {
		return p
	}
	if (m.Cents < 0) != (q < 0) {
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: math.MaxInt64}
}

// CheckedMul multiplies by q and reports false when the product does not fit in int64.
func (m Money) CheckedMul(q int64) (Money, bool) {
	p := new(big.Int).Mul(big.NewInt(m.Cents), big.NewInt(q))
	if !p.IsInt64() {
		return Money{}, false
	}
	return Money{Cents: p.Int64()}, true
}

func (m Money) IsZero() bool { return m.Cents == 0 }

func (m Money) IsNegative() bool { return m.Cents < 0 }

// String renders the amount as a plain decimal without trailing zeros ("31695", "12.5").
func (m Money) String() string {
	cents := m.Cents
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	major, minor := cents/100, cents%100
	if minor == 0 {
		return fmt.Sprintf("%s%d", sign, major)
	}
	frac := strings.TrimRight(fmt.Sprintf("%02d", minor), "0")
	return fmt.Sprintf("%s%d.%s", sign, major, frac)
}

// MarshalJSON encodes the amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return ErrInvalidAmount
		}
		s = unq
	}
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return fmt.Errorf("%w: %q", err, s)
	}
	m.Cents = cents
	return nil
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Zero is allowed, negative values
// are not. Exponent notation (3.2e6) is accepted as produced by JSON encoders.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("0") -> 0, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return parseExponent(s)
	}
	// Normalize decimal comma to dot
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
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
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
	return iv*100 + fracCents, nil
}

func parseExponent(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrInvalidAmount
	}
	cents := math.Round(f * 100)
	if cents > float64(math.MaxInt64/2) {
		return 0, ErrInvalidAmount
	}
	return int64(cents), nil
}

// MulDivRound returns a*b/c rounded half away from zero. c must not be zero.
func MulDivRound(a, b, c int64) int64 {
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	den := big.NewInt(c)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	// |2r| >= |c| rounds away from zero
	r2 := new(big.Int).Abs(new(big.Int).Mul(r, big.NewInt(2)))
	if r2.Cmp(new(big.Int).Abs(den)) >= 0 {
		if (num.Sign() < 0) != (den.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q.Int64()
}

// Ratio returns num/den in basis points. den must not be zero.
func Ratio(num, den int64) Percent {
	return Percent(MulDivRound(num, 10000, den))
}

// String renders the ratio as a percentage with two decimals ("106.67%").
func (p Percent) String() string {
	return p.decimal() + "%"
}

func (p Percent) decimal() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON encodes the percentage as a JSON number with two decimals.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.decimal()), nil
}
