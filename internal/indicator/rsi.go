package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// RSI computes the Relative Strength Index from Wilder-smoothed average
// gains and losses. The first observation yields 50; a zero average loss
// yields 100. Output is always within [0, 100]. O(1) per update.
type RSI struct {
	period    int
	gain      smoother
	loss      smoother
	prevClose numeric.Value
	hasPrev   bool
}

// NewRSI creates a new RSI with the given period.
func NewRSI(period int) (*RSI, error) {
	if err := checkPeriod("RSI", period); err != nil {
		return nil, err
	}
	return &RSI{
		period: period,
		gain:   smoother{period: period},
		loss:   smoother{period: period},
	}, nil
}

// DefaultRSI returns RSI(14).
func DefaultRSI() *RSI {
	r, _ := NewRSI(14)
	return r
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *RSI) Period() int  { return r.period }

// Next feeds one price.
func (r *RSI) Next(price numeric.Value) (numeric.Value, error) {
	if !r.hasPrev {
		r.prevClose = price
		r.hasPrev = true
		return numeric.Fifty, nil
	}

	c := numeric.NewCalc()
	delta := c.Sub(price, r.prevClose)
	up, down := numeric.Zero, numeric.Zero
	if delta.Sign() > 0 {
		up = delta
	} else {
		down = delta.Neg()
	}
	gain := r.gain.advance(c, up)
	loss := r.loss.advance(c, down)

	// 100 - 100/(1+RS) == 100*g/(g+l), one division instead of two
	rsi := numeric.Hundred
	if !loss.current.IsZero() {
		rsi = c.Div(c.Mul(numeric.Hundred, gain.current), c.Add(gain.current, loss.current))
	}
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}

	r.gain, r.loss = gain, loss
	r.prevClose = price
	return clamp(rsi, numeric.Zero, numeric.Hundred), nil
}

func (r *RSI) Update(item model.DataItem) (Output, error) {
	v, err := r.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (r *RSI) Reset() {
	r.gain.reset()
	r.loss.reset()
	r.prevClose = numeric.Zero
	r.hasPrev = false
}

func (r *RSI) Phase() Phase {
	if !r.hasPrev {
		return Fresh
	}
	if r.gain.count >= r.period {
		return Steady
	}
	return Warming
}

func (r *RSI) Ready() bool { return r.Phase() == Steady }

func (r *RSI) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeRSI)
	snap.Period = r.period
	snap.Prev = r.prevClose
	snap.HasPrev = r.hasPrev
	snap.Children = []IndicatorSnapshot{r.gain.snapshot(TypeSMMA), r.loss.snapshot(TypeSMMA)}
	return snap
}

func (r *RSI) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeRSI, r.period)
	if err != nil {
		return err
	}
	if err := expectChildren(snap, 2); err != nil {
		return err
	}
	gain, loss := smoother{period: r.period}, smoother{period: r.period}
	if err := gain.restore(snap.Children[0], TypeSMMA); err != nil {
		return err
	}
	if err := loss.restore(snap.Children[1], TypeSMMA); err != nil {
		return err
	}
	if gain.count != loss.count || (gain.count > 0 && !snap.HasPrev) {
		return fmt.Errorf("%w: RSI averages out of step", ErrSnapshotCorrupt)
	}
	r.gain, r.loss = gain, loss
	r.prevClose = snap.Prev
	r.hasPrev = snap.HasPrev
	return nil
}

func clamp(v, lo, hi numeric.Value) numeric.Value {
	return numeric.Max(lo, numeric.Min(v, hi))
}
