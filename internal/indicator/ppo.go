package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// PPOOutput holds the three PPO lines.
type PPOOutput struct {
	PPO       numeric.Value
	Signal    numeric.Value
	Histogram numeric.Value
}

// PPO is the Percentage Price Oscillator: MACD scaled by the slow average,
// ppo = 100 * (EMA(fast) - EMA(slow)) / EMA(slow).
type PPO struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewPPO creates a PPO. fast must be shorter than slow.
func NewPPO(fast, slow, signal int) (*PPO, error) {
	f, s, g, err := newEMATriple("PPO", fast, slow, signal)
	if err != nil {
		return nil, err
	}
	return &PPO{fast: f, slow: s, signal: g}, nil
}

// DefaultPPO returns PPO(12, 26, 9).
func DefaultPPO() *PPO {
	p, _ := NewPPO(12, 26, 9)
	return p
}

func (p *PPO) Name() string {
	return fmt.Sprintf("PPO(%d, %d, %d)", p.fast.period, p.slow.period, p.signal.period)
}

// Next feeds one price. A zero slow average fails with numeric.ErrDivisionByZero.
func (p *PPO) Next(price numeric.Value) (PPOOutput, error) {
	c := numeric.NewCalc()
	fast := p.fast.advance(c, price)
	slow := p.slow.advance(c, price)
	line := c.Div(c.Mul(numeric.Hundred, c.Sub(fast.current, slow.current)), slow.current)
	signal := p.signal.advance(c, line)
	hist := c.Sub(line, signal.current)
	if err := c.Err(); err != nil {
		return PPOOutput{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	p.fast.smoother, p.slow.smoother, p.signal.smoother = fast, slow, signal
	return PPOOutput{PPO: line, Signal: signal.current, Histogram: hist}, nil
}

func (p *PPO) Update(item model.DataItem) (Output, error) {
	o, err := p.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return Output{LinePPO: o.PPO, LineSignal: o.Signal, LineHistogram: o.Histogram}, nil
}

func (p *PPO) Reset() {
	p.fast.Reset()
	p.slow.Reset()
	p.signal.Reset()
}

func (p *PPO) Phase() Phase { return tripletPhase(p.fast, p.slow, p.signal) }
func (p *PPO) Ready() bool  { return p.Phase() == Steady }

func (p *PPO) Snapshot() IndicatorSnapshot {
	return tripletSnapshot(TypePPO, p.fast, p.slow, p.signal)
}

func (p *PPO) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	f, s, g, err := restoreTriplet(snap, TypePPO, p.fast, p.slow, p.signal)
	if err != nil {
		return err
	}
	p.fast, p.slow, p.signal = f, s, g
	return nil
}
