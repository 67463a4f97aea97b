package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
	"taengine/internal/ringbuf"
)

// ROC is the Rate of Change in percent against the price period
// observations ago. Until that many prices exist, the first price seen is
// the reference. A zero reference yields 0 and the price still enters the
// window, so the series recovers once the zero is evicted.
type ROC struct {
	period int
	window *ringbuf.Window[numeric.Value]
	seen   int // capped at period+1
}

// NewROC creates a rate of change over period observations.
func NewROC(period int) (*ROC, error) {
	if err := checkPeriod("ROC", period); err != nil {
		return nil, err
	}
	return &ROC{period: period, window: ringbuf.New[numeric.Value](period)}, nil
}

// DefaultROC returns ROC(9).
func DefaultROC() *ROC {
	r, _ := NewROC(9)
	return r
}

func (r *ROC) Name() string { return fmt.Sprintf("ROC(%d)", r.period) }

// reference returns the price the next value is compared against.
func reference(w *ringbuf.Window[numeric.Value], v numeric.Value) numeric.Value {
	if old, ok := w.Oldest(); ok {
		return old
	}
	if first, ok := w.First(); ok {
		return first
	}
	return v
}

// Next feeds one price.
func (r *ROC) Next(price numeric.Value) (numeric.Value, error) {
	out := numeric.Zero
	if r.window.Len() > 0 {
		ref := reference(r.window, price)
		if ref.IsZero() {
			r.push(price)
			return numeric.Zero, nil
		}
		c := numeric.NewCalc()
		out = c.Div(c.Mul(numeric.Hundred, c.Sub(price, ref)), ref)
		if err := c.Err(); err != nil {
			return numeric.Zero, fmt.Errorf("%s: %w", r.Name(), err)
		}
	}
	r.push(price)
	return out, nil
}

func (r *ROC) push(price numeric.Value) {
	r.window.Push(price)
	r.seen = min(r.seen+1, r.period+1)
}

func (r *ROC) Update(item model.DataItem) (Output, error) {
	v, err := r.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (r *ROC) Reset() {
	r.window.Reset()
	r.seen = 0
}

// Phase is Steady once a price period observations back exists.
func (r *ROC) Phase() Phase { return phaseOf(r.seen, r.period+1) }
func (r *ROC) Ready() bool  { return r.Phase() == Steady }

func (r *ROC) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeROC)
	snap.Period = r.period
	snap.Buf, snap.Idx, snap.Count = r.window.Raw()
	snap.Seen = r.seen
	return snap
}

func (r *ROC) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeROC, r.period)
	if err != nil {
		return err
	}
	w, err := loadWindowSeen(r.period, snap)
	if err != nil {
		return err
	}
	r.window = w
	r.seen = snap.Seen
	return nil
}
