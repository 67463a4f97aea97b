package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// MACDOutput holds the three MACD lines.
type MACDOutput struct {
	MACD      numeric.Value
	Signal    numeric.Value
	Histogram numeric.Value
}

// MACD is the Moving Average Convergence Divergence:
// macd = EMA(fast) - EMA(slow), signal = EMA(signal) of macd,
// histogram = macd - signal.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD. fast must be shorter than slow.
func NewMACD(fast, slow, signal int) (*MACD, error) {
	f, s, g, err := newEMATriple("MACD", fast, slow, signal)
	if err != nil {
		return nil, err
	}
	return &MACD{fast: f, slow: s, signal: g}, nil
}

// DefaultMACD returns MACD(12, 26, 9).
func DefaultMACD() *MACD {
	m, _ := NewMACD(12, 26, 9)
	return m
}

func newEMATriple(name string, fast, slow, signal int) (f, s, g *EMA, err error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, nil, nil, invalidParam("%s periods must be positive, got (%d, %d, %d)", name, fast, slow, signal)
	}
	if fast >= slow {
		return nil, nil, nil, invalidParam("%s fast period %d must be less than slow period %d", name, fast, slow)
	}
	if f, err = NewEMA(fast); err != nil {
		return nil, nil, nil, err
	}
	if s, err = NewEMA(slow); err != nil {
		return nil, nil, nil, err
	}
	if g, err = NewEMA(signal); err != nil {
		return nil, nil, nil, err
	}
	return f, s, g, nil
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d, %d, %d)", m.fast.period, m.slow.period, m.signal.period)
}

// Next feeds one price.
func (m *MACD) Next(price numeric.Value) (MACDOutput, error) {
	c := numeric.NewCalc()
	fast := m.fast.advance(c, price)
	slow := m.slow.advance(c, price)
	line := c.Sub(fast.current, slow.current)
	signal := m.signal.advance(c, line)
	hist := c.Sub(line, signal.current)
	if err := c.Err(); err != nil {
		return MACDOutput{}, err
	}
	m.fast.smoother, m.slow.smoother, m.signal.smoother = fast, slow, signal
	return MACDOutput{MACD: line, Signal: signal.current, Histogram: hist}, nil
}

func (m *MACD) Update(item model.DataItem) (Output, error) {
	o, err := m.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return Output{LineMACD: o.MACD, LineSignal: o.Signal, LineHistogram: o.Histogram}, nil
}

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
}

// Phase is Steady once the slow and signal averages are both steady.
func (m *MACD) Phase() Phase {
	return tripletPhase(m.fast, m.slow, m.signal)
}

func (m *MACD) Ready() bool { return m.Phase() == Steady }

func (m *MACD) Snapshot() IndicatorSnapshot {
	return tripletSnapshot(TypeMACD, m.fast, m.slow, m.signal)
}

func (m *MACD) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	f, s, g, err := restoreTriplet(snap, TypeMACD, m.fast, m.slow, m.signal)
	if err != nil {
		return err
	}
	m.fast, m.slow, m.signal = f, s, g
	return nil
}

func tripletPhase(fast, slow, signal *EMA) Phase {
	switch {
	case fast.count == 0:
		return Fresh
	case slow.phase() == Steady && signal.phase() == Steady:
		return Steady
	default:
		return Warming
	}
}

func tripletSnapshot(typ string, fast, slow, signal *EMA) IndicatorSnapshot {
	snap := newSnapshot(typ)
	snap.Fast, snap.Slow, snap.Signal = fast.period, slow.period, signal.period
	snap.Children = []IndicatorSnapshot{fast.Snapshot(), slow.Snapshot(), signal.Snapshot()}
	return snap
}

// restoreTriplet restores into fresh copies so a failure leaves the
// originals untouched.
func restoreTriplet(snap IndicatorSnapshot, typ string, fast, slow, signal *EMA) (f, s, g *EMA, err error) {
	snap, err = migrate(snap)
	if err != nil {
		return nil, nil, nil, err
	}
	if snap.Type != typ || snap.Fast != fast.period || snap.Slow != slow.period || snap.Signal != signal.period {
		return nil, nil, nil, fmt.Errorf("%w: got %s(%d, %d, %d), want %s(%d, %d, %d)", ErrSnapshotMismatch,
			snap.Type, snap.Fast, snap.Slow, snap.Signal, typ, fast.period, slow.period, signal.period)
	}
	if err := expectChildren(snap, 3); err != nil {
		return nil, nil, nil, err
	}
	f, s, g = &EMA{fast.smoother}, &EMA{slow.smoother}, &EMA{signal.smoother}
	for i, e := range []*EMA{f, s, g} {
		if err := e.RestoreFromSnapshot(snap.Children[i]); err != nil {
			return nil, nil, nil, err
		}
	}
	return f, s, g, nil
}
