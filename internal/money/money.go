// Package money implements the fixed-precision decimal arithmetic the cost
// engine uses for every monetary value: prices, per-record costs, and
// aggregated totals. All arithmetic is performed on shopspring/decimal
// values, which carry an arbitrary-precision integer coefficient and a
// base-10 exponent, so dividing token counts by one million never loses
// precision the way a binary float would.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is the engine-wide representation of a monetary amount. It is a
// type alias rather than a wrapper struct so that domain types can embed it
// directly and still participate in decimal.Decimal's arithmetic methods.
type Money = decimal.Decimal

// DefaultScale is the number of fractional digits cost records are rounded
// to when no caller-supplied scale is configured.
const DefaultScale int32 = 10

// MaxScale bounds the configured rounding scale; values above this are
// almost certainly a misconfiguration (spec requires "scale up to 10").
const MaxScale int32 = 10

// Zero returns the additive identity.
func Zero() Money { return decimal.Zero }

// Parse parses a decimal string into Money. It never accepts float syntax
// with more precision than decimal.Decimal supports, and it rejects
// anything that is not a valid decimal literal.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero(), fmt.Errorf("money: invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse but panics on error; intended for tests and
// compile-time-known literals (seed pricing tables).
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMillionths builds a Money value representing tokens/1_000_000 units,
// exact in base 10 because shifting a decimal's exponent never rounds.
func FromMillionths(tokens uint64) Money {
	return decimal.NewFromInt(int64(tokens)).Shift(-6)
}

// PerMillion computes tokens priced at pricePerMillion, i.e.
// (tokens / 1_000_000) * pricePerMillion, without any intermediate
// rounding. The division by one million is exact because it is a shift of
// the decimal point, not a true division.
func PerMillion(tokens uint64, pricePerMillion Money) Money {
	return FromMillionths(tokens).Mul(pricePerMillion)
}

// RoundBank rounds m to scale fractional digits using round-half-to-even
// (banker's rounding), as required for deterministic, auditable cost
// totals that do not systematically drift upward.
func RoundBank(m Money, scale int32) Money {
	if scale < 0 {
		scale = 0
	}
	if scale > MaxScale {
		scale = MaxScale
	}
	return m.RoundBank(scale)
}

// Sum adds values in the order given. Callers that need deterministic
// aggregation across unordered sets (map iteration, concurrent fan-in)
// must sort inputs into a stable order themselves before calling Sum;
// decimal addition is associative and exact, but the caller's ordering is
// what makes repeated runs byte-identical when values are later rounded.
func Sum(values ...Money) Money {
	total := Zero()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// IsNegative reports whether m is strictly less than zero.
func IsNegative(m Money) bool { return m.Sign() < 0 }

// WithinDigitBudget guards against pathological inputs (e.g. an adversarial
// token count) producing a coefficient so large it no longer represents a
// sane monetary amount. shopspring/decimal itself never overflows, but the
// engine's ArithmeticOverflow error exists for exactly this defensive
// check.
func WithinDigitBudget(m Money, maxDigits int) bool {
	return len(m.Coefficient().String()) <= maxDigits
}
