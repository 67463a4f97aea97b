package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
	"taengine/internal/ringbuf"
)

// EfficiencyRatio is Kaufman's efficiency ratio: net change over the sum of
// absolute bar-to-bar changes across the last period+1 prices. A path with
// no movement yields 1. O(period) per update.
type EfficiencyRatio struct {
	period int
	window *ringbuf.Window[numeric.Value]
	seen   int // capped at period+1
}

// NewEfficiencyRatio creates an efficiency ratio over period changes.
func NewEfficiencyRatio(period int) (*EfficiencyRatio, error) {
	if err := checkPeriod("ER", period); err != nil {
		return nil, err
	}
	return &EfficiencyRatio{period: period, window: ringbuf.New[numeric.Value](period)}, nil
}

// DefaultEfficiencyRatio returns ER(14).
func DefaultEfficiencyRatio() *EfficiencyRatio {
	e, _ := NewEfficiencyRatio(14)
	return e
}

func (e *EfficiencyRatio) Name() string { return fmt.Sprintf("ER(%d)", e.period) }

// Next feeds one price.
func (e *EfficiencyRatio) Next(price numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	first := reference(e.window, price)

	// walk first -> retained window -> price
	start := 0
	if e.window.Full() {
		start = 1
	}
	volatility := numeric.Zero
	prev := first
	for i := start; i < e.window.Len(); i++ {
		v := e.window.At(i)
		volatility = c.Add(volatility, c.Sub(v, prev).Abs())
		prev = v
	}
	volatility = c.Add(volatility, c.Sub(price, prev).Abs())

	out := numeric.One
	if !volatility.IsZero() {
		out = c.Div(c.Sub(price, first).Abs(), volatility)
	}
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	e.window.Push(price)
	e.seen = min(e.seen+1, e.period+1)
	return out, nil
}

func (e *EfficiencyRatio) Update(item model.DataItem) (Output, error) {
	v, err := e.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (e *EfficiencyRatio) Reset() {
	e.window.Reset()
	e.seen = 0
}

func (e *EfficiencyRatio) Phase() Phase { return phaseOf(e.seen, e.period+1) }
func (e *EfficiencyRatio) Ready() bool  { return e.Phase() == Steady }

func (e *EfficiencyRatio) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeER)
	snap.Period = e.period
	snap.Buf, snap.Idx, snap.Count = e.window.Raw()
	snap.Seen = e.seen
	return snap
}

func (e *EfficiencyRatio) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeER, e.period)
	if err != nil {
		return err
	}
	w, err := loadWindowSeen(e.period, snap)
	if err != nil {
		return err
	}
	e.window = w
	e.seen = snap.Seen
	return nil
}
