package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// SMMA is Wilder's smoothed moving average (alpha = 1/period). Until period
// values have been seen it returns their running mean, which is exactly
// the SMA seed of the classic formulation. O(1) per update.
type SMMA struct {
	smoother
}

// NewSMMA creates a new Wilder average with the given period.
func NewSMMA(period int) (*SMMA, error) {
	if err := checkPeriod("SMMA", period); err != nil {
		return nil, err
	}
	return &SMMA{smoother{period: period}}, nil
}

func (s *SMMA) Name() string { return fmt.Sprintf("SMMA(%d)", s.period) }
func (s *SMMA) Period() int  { return s.period }

// Next feeds one value.
func (s *SMMA) Next(v numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	next := s.advance(c, v)
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	s.smoother = next
	return next.current, nil
}

func (s *SMMA) Update(item model.DataItem) (Output, error) {
	v, err := s.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (s *SMMA) Reset()       { s.reset() }
func (s *SMMA) Phase() Phase { return s.phase() }
func (s *SMMA) Ready() bool  { return s.phase() == Steady }

func (s *SMMA) Snapshot() IndicatorSnapshot { return s.snapshot(TypeSMMA) }

func (s *SMMA) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	return s.restore(snap, TypeSMMA)
}
