// Package usdc provides USDC amount parsing and formatting.
//
// USDC has 6 decimal places. Amounts cross API boundaries as decimal
// strings (e.g. "1.50") and are handled internally as big.Int values in
// the smallest unit (1 USDC = 1,000,000 units). Floating point is never
// used for money.
package usdc

import (
	"errors"
	"math/big"
	"strings"
)

// Decimals is the USDC decimal precision.
const Decimals = 6

var (
	ErrInvalidAmount  = errors.New("usdc: invalid amount")
	ErrNegativeAmount = errors.New("usdc: negative amount")
)

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Parse converts a decimal string to its smallest-unit representation.
// Rejects empty strings, negative values, and malformed numbers.
// Fractional digits beyond 6 places are rejected rather than truncated:
// silently dropping sub-unit value would corrupt custody accounting.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") {
		return nil, ErrNegativeAmount
	}

	whole, frac, err := splitDecimal(s)
	if err != nil {
		return nil, err
	}

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	result := new(big.Int).Mul(w, unit)

	if frac != "" {
		f, ok := new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, ErrInvalidAmount
		}
		result.Add(result, f)
	}
	return result, nil
}

// ParsePositive parses an amount and additionally requires it to be > 0.
func ParsePositive(s string) (*big.Int, error) {
	v, err := Parse(s)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// Format renders a smallest-unit value as a decimal string with exactly
// 6 fractional digits ("1.500000"). This is the canonical storage form.
func Format(v *big.Int) string {
	if v == nil {
		return "0.000000"
	}
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	cut := len(s) - Decimals
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// Canonical re-renders an amount string in canonical form, validating it
// along the way. "1.5" and "1.500000" canonicalize identically.
func Canonical(s string) (string, error) {
	v, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(v), nil
}

// Equal reports whether two amount strings denote the same value.
// Malformed input compares unequal to everything.
func Equal(a, b string) bool {
	av, err := Parse(a)
	if err != nil {
		return false
	}
	bv, err := Parse(b)
	if err != nil {
		return false
	}
	return av.Cmp(bv) == 0
}

// splitDecimal splits "12.34" into whole and zero-padded fractional parts.
func splitDecimal(s string) (whole, frac string, err error) {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		whole = parts[0]
	case 2:
		whole, frac = parts[0], parts[1]
	default:
		return "", "", ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return "", "", ErrInvalidAmount
	}
	for len(frac) < Decimals {
		frac += "0"
	}
	return whole, frac, nil
}
