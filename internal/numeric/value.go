// Package numeric provides the fixed-precision decimal scalar used by every
// indicator. Values wrap shopspring/decimal; rounding happens only inside Calc,
// at the scale set once through Configure.
package numeric

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Value is an immutable decimal scalar. The zero Value is 0.
type Value struct {
	d decimal.Decimal
}

var (
	Zero    = Value{}
	One     = FromInt(1)
	Two     = FromInt(2)
	Fifty   = FromInt(50)
	Hundred = FromInt(100)
)

// FromInt converts an integer literal.
func FromInt(n int64) Value {
	return Value{d: decimal.NewFromInt(n)}
}

// FromPeriod converts a period count.
func FromPeriod(period int) Value {
	return FromInt(int64(period))
}

// FromDecimal wraps an existing decimal.
func FromDecimal(d decimal.Decimal) Value {
	return Value{d: d}
}

// FromString parses a display string such as "101.25".
// It fails with ErrPrecisionLoss when the literal has more fractional digits
// than the configured scale and with ErrOverflow when it is out of range.
func FromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("numeric: parse %q: %w", s, err)
	}
	return checked(d)
}

// FromFloat converts a float64 using its shortest exact decimal form.
func FromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero, fmt.Errorf("numeric: float %v: %w", f, ErrOverflow)
	}
	return checked(decimal.NewFromFloat(f))
}

// MustParse is FromString for literals known to be valid. It panics otherwise.
func MustParse(s string) Value {
	v, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func checked(d decimal.Decimal) (Value, error) {
	if !inRange(d) {
		return Zero, fmt.Errorf("numeric: %s: %w", d.String(), ErrOverflow)
	}
	if sc := Scale(); d.Exponent() < -sc && !d.Round(sc).Equal(d) {
		return Zero, fmt.Errorf("numeric: %s exceeds scale %d: %w", d.String(), sc, ErrPrecisionLoss)
	}
	return Value{d: d}, nil
}

// Period converts the value back to a positive integer period.
func (v Value) Period() (int, error) {
	if !v.d.IsInteger() || v.d.Sign() <= 0 || v.d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, fmt.Errorf("numeric: %s: %w", v.d.String(), ErrInvalidPeriod)
	}
	return int(v.d.IntPart()), nil
}

// Decimal exposes the underlying decimal.
func (v Value) Decimal() decimal.Decimal { return v.d }

// Float64 returns the nearest float64, for display and metrics only.
func (v Value) Float64() float64 {
	f, _ := v.d.Float64()
	return f
}

func (v Value) String() string { return v.d.String() }

// StringFixed formats with exactly places fractional digits.
func (v Value) StringFixed(places int32) string { return v.d.StringFixed(places) }

// Round rounds half away from zero to places fractional digits.
func (v Value) Round(places int32) Value { return Value{d: v.d.Round(places)} }

// Add and Sub are exact; they never round.
func (v Value) Add(o Value) Value { return Value{d: v.d.Add(o.d)} }
func (v Value) Sub(o Value) Value { return Value{d: v.d.Sub(o.d)} }

func (v Value) Neg() Value { return Value{d: v.d.Neg()} }
func (v Value) Abs() Value { return Value{d: v.d.Abs()} }

func (v Value) Cmp(o Value) int                 { return v.d.Cmp(o.d) }
func (v Value) Equal(o Value) bool              { return v.d.Equal(o.d) }
func (v Value) LessThan(o Value) bool           { return v.d.LessThan(o.d) }
func (v Value) LessThanOrEqual(o Value) bool    { return v.d.LessThanOrEqual(o.d) }
func (v Value) GreaterThan(o Value) bool        { return v.d.GreaterThan(o.d) }
func (v Value) GreaterThanOrEqual(o Value) bool { return v.d.GreaterThanOrEqual(o.d) }
func (v Value) IsZero() bool                    { return v.d.IsZero() }
func (v Value) IsNegative() bool                { return v.d.IsNegative() }
func (v Value) Sign() int                       { return v.d.Sign() }

// Min returns the smaller of a and b.
func Min(a, b Value) Value {
	if b.LessThan(a) {
		return b
	}
	return a
}

// Max returns the larger of a and b.
func Max(a, b Value) Value {
	if b.GreaterThan(a) {
		return b
	}
	return a
}

// Max3 returns the largest of three values.
func Max3(a, b, c Value) Value {
	return Max(Max(a, b), c)
}

// MarshalJSON encodes the value as a quoted decimal string, losslessly.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.d.MarshalJSON()
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number,
// under the same range and scale checks as FromString.
func (v *Value) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("numeric: %w", err)
	}
	c, err := checked(d)
	if err != nil {
		return err
	}
	*v = c
	return nil
}
