package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
	"taengine/internal/ringbuf"
)

// SMA computes a Simple Moving Average using a ring buffer and a running sum.
// During warm-up it returns the mean of the values seen so far.
// O(1) per update.
type SMA struct {
	period int
	window *ringbuf.Window[numeric.Value]
	sum    numeric.Value
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) (*SMA, error) {
	if err := checkPeriod("SMA", period); err != nil {
		return nil, err
	}
	return &SMA{
		period: period,
		window: ringbuf.New[numeric.Value](period),
	}, nil
}

// DefaultSMA returns SMA(9).
func DefaultSMA() *SMA {
	s, _ := NewSMA(9)
	return s
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA(%d)", s.period) }
func (s *SMA) Period() int  { return s.period }

// advance computes the sum and mean after v without touching the window.
func (s *SMA) advance(c *numeric.Calc, v numeric.Value) (sum, mean numeric.Value) {
	sum = c.Add(s.sum, v)
	n := s.window.Len() + 1
	if old, ok := s.window.Oldest(); ok {
		sum = c.Sub(sum, old)
		n = s.period
	}
	return sum, c.Div(sum, numeric.FromPeriod(n))
}

func (s *SMA) commit(v, sum numeric.Value) {
	s.window.Push(v)
	s.sum = sum
}

// Next feeds one price.
func (s *SMA) Next(v numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	sum, mean := s.advance(c, v)
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	s.commit(v, sum)
	return mean, nil
}

func (s *SMA) Update(item model.DataItem) (Output, error) {
	v, err := s.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

// Full reports whether the window holds period values.
func (s *SMA) Full() bool { return s.window.Full() }

func (s *SMA) Reset() {
	s.window.Reset()
	s.sum = numeric.Zero
}

func (s *SMA) Phase() Phase { return phaseOf(s.window.Len(), s.period) }
func (s *SMA) Ready() bool  { return s.Phase() == Steady }

func (s *SMA) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeSMA)
	snap.Period = s.period
	snap.Buf, snap.Idx, snap.Count = s.window.Raw()
	snap.Sum = s.sum
	return snap
}

func (s *SMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeSMA, s.period)
	if err != nil {
		return err
	}
	w, err := loadWindow(s.period, snap)
	if err != nil {
		return err
	}
	s.window = w
	s.sum = snap.Sum
	return nil
}
