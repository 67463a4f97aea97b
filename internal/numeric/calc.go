package numeric

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// sqrtMaxIter bounds the Newton iterations in Sqrt.
const sqrtMaxIter = 64

// Calc performs checked arithmetic with a sticky error: after the first
// failure every further operation returns Zero and Err reports the failure.
// Indicators compute their next state through a Calc and commit only when
// Err is nil, so a failed update never leaves partial state behind.
//
// Mul, Div and Sqrt round to the scale captured by NewCalc; Add and Sub are
// exact. A Calc is not safe for concurrent use.
type Calc struct {
	scale int32
	err   error
}

// NewCalc returns a Calc using the configured scale.
func NewCalc() *Calc {
	return &Calc{scale: Scale()}
}

// Err returns the first error encountered, if any.
func (c *Calc) Err() error { return c.err }

func (c *Calc) fail(err error) Value {
	if c.err == nil {
		c.err = err
	}
	return Zero
}

func (c *Calc) result(d decimal.Decimal, op string) Value {
	if !inRange(d) {
		return c.fail(fmt.Errorf("numeric: %s result %s: %w", op, d.String(), ErrOverflow))
	}
	return Value{d: d}
}

// Add returns a + b.
func (c *Calc) Add(a, b Value) Value {
	if c.err != nil {
		return Zero
	}
	return c.result(a.d.Add(b.d), "add")
}

// Sub returns a - b.
func (c *Calc) Sub(a, b Value) Value {
	if c.err != nil {
		return Zero
	}
	return c.result(a.d.Sub(b.d), "sub")
}

// Mul returns a * b rounded to the scale.
func (c *Calc) Mul(a, b Value) Value {
	if c.err != nil {
		return Zero
	}
	return c.result(a.d.Mul(b.d).Round(c.scale), "mul")
}

// Div returns a / b rounded to the scale.
func (c *Calc) Div(a, b Value) Value {
	if c.err != nil {
		return Zero
	}
	if b.d.IsZero() {
		return c.fail(fmt.Errorf("numeric: %s / 0: %w", a.d.String(), ErrDivisionByZero))
	}
	return c.result(a.d.DivRound(b.d, c.scale), "div")
}

// Sqrt returns the square root of a rounded to the scale, using Newton's
// method seeded from the float64 root.
func (c *Calc) Sqrt(a Value) Value {
	if c.err != nil {
		return Zero
	}
	if a.d.IsNegative() {
		return c.fail(fmt.Errorf("numeric: sqrt(%s): %w", a.d.String(), ErrNegativeSqrt))
	}
	if a.d.IsZero() {
		return Zero
	}

	work := c.scale + 4
	eps := decimal.New(1, -(c.scale + 2))
	two := decimal.NewFromInt(2)

	f, _ := a.d.Float64()
	g := decimal.NewFromFloat(math.Sqrt(f))
	if g.Sign() <= 0 {
		g = a.d
	}
	for i := 0; i < sqrtMaxIter; i++ {
		next := g.Add(a.d.DivRound(g, work)).DivRound(two, work)
		if next.Sub(g).Abs().LessThanOrEqual(eps) {
			g = next
			break
		}
		g = next
	}
	return c.result(g.Round(c.scale), "sqrt")
}
