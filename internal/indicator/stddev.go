package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
	"taengine/internal/ringbuf"
)

// StandardDeviation is the population standard deviation over a sliding
// window, kept as a running sum and sum of squares. O(1) per update plus
// one square root.
type StandardDeviation struct {
	period int
	window *ringbuf.Window[numeric.Value]
	sum    numeric.Value
	sumSq  numeric.Value
}

type sdStep struct {
	sum, sumSq numeric.Value
	mean, sd   numeric.Value
}

// NewStandardDeviation creates a standard deviation over period values.
func NewStandardDeviation(period int) (*StandardDeviation, error) {
	if err := checkPeriod("SD", period); err != nil {
		return nil, err
	}
	return &StandardDeviation{period: period, window: ringbuf.New[numeric.Value](period)}, nil
}

// DefaultStandardDeviation returns SD(9).
func DefaultStandardDeviation() *StandardDeviation {
	s, _ := NewStandardDeviation(9)
	return s
}

func (s *StandardDeviation) Name() string { return fmt.Sprintf("SD(%d)", s.period) }

func (s *StandardDeviation) advance(c *numeric.Calc, v numeric.Value) sdStep {
	st := sdStep{
		sum:   c.Add(s.sum, v),
		sumSq: c.Add(s.sumSq, c.Mul(v, v)),
	}
	n := s.window.Len() + 1
	if old, ok := s.window.Oldest(); ok {
		st.sum = c.Sub(st.sum, old)
		st.sumSq = c.Sub(st.sumSq, c.Mul(old, old))
		n = s.period
	}
	count := numeric.FromPeriod(n)
	// (n*sumSq - sum^2) / n^2, clamped at zero against rounding
	variance := c.Div(c.Sub(c.Mul(count, st.sumSq), c.Mul(st.sum, st.sum)), c.Mul(count, count))
	if variance.IsNegative() {
		variance = numeric.Zero
	}
	st.mean = c.Div(st.sum, count)
	st.sd = c.Sqrt(variance)
	return st
}

func (s *StandardDeviation) commit(v numeric.Value, st sdStep) {
	s.window.Push(v)
	s.sum, s.sumSq = st.sum, st.sumSq
}

// Next feeds one value.
func (s *StandardDeviation) Next(v numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	st := s.advance(c, v)
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	s.commit(v, st)
	return st.sd, nil
}

func (s *StandardDeviation) Update(item model.DataItem) (Output, error) {
	v, err := s.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (s *StandardDeviation) Reset() {
	s.window.Reset()
	s.sum, s.sumSq = numeric.Zero, numeric.Zero
}

func (s *StandardDeviation) Phase() Phase { return phaseOf(s.window.Len(), s.period) }
func (s *StandardDeviation) Ready() bool  { return s.Phase() == Steady }

func (s *StandardDeviation) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeSD)
	snap.Period = s.period
	snap.Buf, snap.Idx, snap.Count = s.window.Raw()
	snap.Sum, snap.SumSq = s.sum, s.sumSq
	return snap
}

func (s *StandardDeviation) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeSD, s.period)
	if err != nil {
		return err
	}
	w, err := loadWindow(s.period, snap)
	if err != nil {
		return err
	}
	if snap.SumSq.IsNegative() {
		return fmt.Errorf("%w: SD negative sum of squares", ErrSnapshotCorrupt)
	}
	s.window = w
	s.sum, s.sumSq = snap.Sum, snap.SumSq
	return nil
}
