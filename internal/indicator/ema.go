package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// smoother is the shared recurrence behind EMA and Wilder smoothing:
//
//	cur = cur + alpha * (v - cur)
//
// seeded by the first value. A nil alpha means 1/min(count, period), which
// is the running mean during warm-up and Wilder's 1/period afterwards.
type smoother struct {
	period  int
	alpha   *numeric.Value
	current numeric.Value
	count   int // observations consumed, capped at period
}

func (m *smoother) advance(c *numeric.Calc, v numeric.Value) smoother {
	next := *m
	if m.count == 0 {
		next.current = v
		next.count = 1
		return next
	}
	next.count = min(m.count+1, m.period)
	var step numeric.Value
	if m.alpha != nil {
		step = c.Mul(*m.alpha, c.Sub(v, m.current))
	} else {
		step = c.Div(c.Sub(v, m.current), numeric.FromPeriod(next.count))
	}
	next.current = c.Add(m.current, step)
	return next
}

func (m *smoother) reset() {
	m.current = numeric.Zero
	m.count = 0
}

func (m *smoother) phase() Phase { return phaseOf(m.count, m.period) }

func (m *smoother) snapshot(typ string) IndicatorSnapshot {
	snap := newSnapshot(typ)
	snap.Period = m.period
	snap.Current = m.current
	snap.Count = m.count
	return snap
}

func (m *smoother) restore(snap IndicatorSnapshot, typ string) error {
	snap, err := expect(snap, typ, m.period)
	if err != nil {
		return err
	}
	if snap.Count < 0 || snap.Count > m.period {
		return fmt.Errorf("%w: %s count %d outside [0,%d]", ErrSnapshotCorrupt, typ, snap.Count, m.period)
	}
	m.current = snap.Current
	m.count = snap.Count
	return nil
}

// EMA computes an Exponential Moving Average with alpha = 2/(period+1),
// seeded by the first value. O(1) per update.
type EMA struct {
	smoother
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) (*EMA, error) {
	if err := checkPeriod("EMA", period); err != nil {
		return nil, err
	}
	c := numeric.NewCalc()
	alpha := c.Div(numeric.Two, numeric.FromPeriod(period+1))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return &EMA{smoother{period: period, alpha: &alpha}}, nil
}

// DefaultEMA returns EMA(9).
func DefaultEMA() *EMA {
	e, _ := NewEMA(9)
	return e
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *EMA) Period() int  { return e.period }

// Next feeds one price.
func (e *EMA) Next(v numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	next := e.advance(c, v)
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	e.smoother = next
	return next.current, nil
}

func (e *EMA) Update(item model.DataItem) (Output, error) {
	v, err := e.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

// Value returns the current average without consuming input.
func (e *EMA) Value() numeric.Value { return e.current }

func (e *EMA) Reset()       { e.reset() }
func (e *EMA) Phase() Phase { return e.phase() }
func (e *EMA) Ready() bool  { return e.phase() == Steady }

func (e *EMA) Snapshot() IndicatorSnapshot { return e.snapshot(TypeEMA) }

func (e *EMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	return e.restore(snap, TypeEMA)
}
