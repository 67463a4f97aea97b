package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// StochasticOutput holds %K and %D.
type StochasticOutput struct {
	K numeric.Value
	D numeric.Value
}

// Stochastic is the stochastic oscillator:
// %K = 100 * (close - lowest low) / (highest high - lowest low) over period,
// %D = SMA(dPeriod) of %K. A flat range gives %K = 0.
type Stochastic struct {
	period  int
	dPeriod int
	lows    *Minimum
	highs   *Maximum
	d       *SMA
}

// NewStochastic creates a stochastic oscillator.
func NewStochastic(period, dPeriod int) (*Stochastic, error) {
	if period <= 0 || dPeriod <= 0 {
		return nil, invalidParam("STOCH periods must be positive, got (%d, %d)", period, dPeriod)
	}
	lows, _ := NewMinimum(period)
	highs, _ := NewMaximum(period)
	d, _ := NewSMA(dPeriod)
	return &Stochastic{period: period, dPeriod: dPeriod, lows: lows, highs: highs, d: d}, nil
}

// DefaultStochastic returns STOCH(14, 3).
func DefaultStochastic() *Stochastic {
	s, _ := NewStochastic(14, 3)
	return s
}

func (s *Stochastic) Name() string { return fmt.Sprintf("STOCH(%d, %d)", s.period, s.dPeriod) }

// NextItem feeds one bar.
func (s *Stochastic) NextItem(item model.DataItem) (StochasticOutput, error) {
	return s.step(item.High(), item.Low(), item.Close())
}

// Next feeds one price, treated as a flat bar.
func (s *Stochastic) Next(price numeric.Value) (StochasticOutput, error) {
	return s.step(price, price, price)
}

func (s *Stochastic) step(high, low, last numeric.Value) (StochasticOutput, error) {
	lowSlot, ll := s.lows.advance(low)
	highSlot, hh := s.highs.advance(high)

	c := numeric.NewCalc()
	k := numeric.Zero
	if rng := c.Sub(hh, ll); !rng.IsZero() {
		k = c.Div(c.Mul(numeric.Hundred, c.Sub(last, ll)), rng)
	}
	dSum, d := s.d.advance(c, k)
	if err := c.Err(); err != nil {
		return StochasticOutput{}, err
	}

	s.lows.commit(low, lowSlot)
	s.highs.commit(high, highSlot)
	s.d.commit(k, dSum)
	return StochasticOutput{K: k, D: d}, nil
}

func (s *Stochastic) Update(item model.DataItem) (Output, error) {
	o, err := s.NextItem(item)
	if err != nil {
		return nil, err
	}
	return Output{LineK: o.K, LineD: o.D}, nil
}

func (s *Stochastic) Reset() {
	s.lows.Reset()
	s.highs.Reset()
	s.d.Reset()
}

// Phase is Steady once both the range window and the %D average are full.
func (s *Stochastic) Phase() Phase {
	switch {
	case s.lows.window.Len() == 0:
		return Fresh
	case s.lows.window.Full() && s.d.Full():
		return Steady
	default:
		return Warming
	}
}

func (s *Stochastic) Ready() bool { return s.Phase() == Steady }

func (s *Stochastic) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeStochastic)
	snap.Period = s.period
	snap.DPeriod = s.dPeriod
	snap.Children = []IndicatorSnapshot{s.lows.Snapshot(), s.highs.Snapshot(), s.d.Snapshot()}
	return snap
}

func (s *Stochastic) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeStochastic, s.period)
	if err != nil {
		return err
	}
	if snap.DPeriod != s.dPeriod {
		return fmt.Errorf("%w: STOCH %%D period %d, want %d", ErrSnapshotMismatch, snap.DPeriod, s.dPeriod)
	}
	if err := expectChildren(snap, 3); err != nil {
		return err
	}
	fresh, _ := NewStochastic(s.period, s.dPeriod)
	if err := fresh.lows.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	if err := fresh.highs.RestoreFromSnapshot(snap.Children[1]); err != nil {
		return err
	}
	if err := fresh.d.RestoreFromSnapshot(snap.Children[2]); err != nil {
		return err
	}
	if fresh.lows.window.Len() != fresh.highs.window.Len() || fresh.lows.window.Slot() != fresh.highs.window.Slot() {
		return fmt.Errorf("%w: STOCH low and high windows out of step", ErrSnapshotCorrupt)
	}
	*s = *fresh
	return nil
}
