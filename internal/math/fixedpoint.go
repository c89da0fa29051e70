package math

import (
	"GoldLedger/internal/errs"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the precision of every amount, price and per-second rate.
const Decimals = 18

// BasisPoints is 100% expressed in basis points.
const BasisPoints = 10_000

var (
	// Scale is 10^Decimals.
	Scale = uint256.NewInt(1_000_000_000_000_000_000)

	bps = uint256.NewInt(BasisPoints)
)

// Max returns the largest representable amount. Formulas return it to mean
// "unbounded" (infinitely underwater, perfectly healthy, always reject).
func Max() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// IsMax reports whether x is the sentinel returned by Max.
func IsMax(x *uint256.Int) bool {
	return x.Eq(Max())
}

func Zero() *uint256.Int { return new(uint256.Int) }

func FromUint64(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Units returns v whole units (v × Scale).
func Units(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), Scale)
}

// Add returns a + b or an ArithmeticError on overflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, errs.Arithmetic("add", "overflow")
	}
	return z, nil
}

// Sub returns a - b or an ArithmeticError on underflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, errs.Arithmetic("sub", "underflow")
	}
	return z, nil
}

// Mul returns a * b or an ArithmeticError on overflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, errs.Arithmetic("mul", "overflow")
	}
	return z, nil
}

// Div returns a / b truncated, or DivisionByZero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, errs.DivisionByZero("div")
	}
	return new(uint256.Int).Div(a, b), nil
}

// RoundingMode selects how MulDiv treats a non-zero remainder.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

// MulDiv computes a * b / c. The product is overflow-checked, it is not
// widened.
func MulDiv(a, b, c *uint256.Int, mode RoundingMode) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, errs.DivisionByZero("muldiv")
	}
	prod, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(prod, c, r)
	if mode == RoundUp && !r.IsZero() {
		return Add(q, uint256.NewInt(1))
	}
	return q, nil
}

// ApplyBps returns amount × rateBps / 10000, truncated.
func ApplyBps(amount *uint256.Int, rateBps uint64) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(rateBps), bps, RoundDown)
}

// ApplyBpsUp is ApplyBps rounded toward positive infinity.
func ApplyBpsUp(amount *uint256.Int, rateBps uint64) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(rateBps), bps, RoundUp)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a.Clone()
	}
	return b.Clone()
}

// ParseUnits converts a human decimal string ("2000.5") into a Scale-d amount.
// Negative values and precision finer than 10^-Decimals are rejected.
func ParseUnits(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errs.Validation("parse units", "invalid decimal %q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts d into a Scale-d amount.
func FromDecimal(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, errs.Validation("parse units", "negative amount %s", d.String())
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return nil, errs.Validation("parse units", "%s has more than %d decimals", d.String(), Decimals)
	}
	z, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, errs.Arithmetic("parse units", "%s overflows 256 bits", d.String())
	}
	return z, nil
}

// ToDecimal converts a Scale-d amount into a decimal.
func ToDecimal(x *uint256.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -Decimals)
}

// FormatUnits renders a Scale-d amount as a human decimal string.
func FormatUnits(x *uint256.Int) string {
	return ToDecimal(x).String()
}
