package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// BollingerOutput holds the middle band and the two envelopes.
type BollingerOutput struct {
	Average numeric.Value
	Upper   numeric.Value
	Lower   numeric.Value
}

// BollingerBands: average = SMA(period), bands = average ± multiplier * SD(period).
type BollingerBands struct {
	multiplier numeric.Value
	sd         *StandardDeviation
}

// NewBollingerBands creates Bollinger Bands. multiplier must not be negative.
func NewBollingerBands(period int, multiplier numeric.Value) (*BollingerBands, error) {
	if err := checkPeriod("BB", period); err != nil {
		return nil, err
	}
	if multiplier.IsNegative() {
		return nil, invalidParam("BB multiplier must not be negative, got %s", multiplier)
	}
	sd, _ := NewStandardDeviation(period)
	return &BollingerBands{multiplier: multiplier, sd: sd}, nil
}

// DefaultBollingerBands returns BB(9, 2).
func DefaultBollingerBands() *BollingerBands {
	b, _ := NewBollingerBands(9, numeric.Two)
	return b
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BB(%d, %s)", b.sd.period, b.multiplier)
}

// Next feeds one price.
func (b *BollingerBands) Next(price numeric.Value) (BollingerOutput, error) {
	c := numeric.NewCalc()
	st := b.sd.advance(c, price)
	width := c.Mul(b.multiplier, st.sd)
	out := BollingerOutput{
		Average: st.mean,
		Upper:   c.Add(st.mean, width),
		Lower:   c.Sub(st.mean, width),
	}
	if err := c.Err(); err != nil {
		return BollingerOutput{}, err
	}
	b.sd.commit(price, st)
	return out, nil
}

func (b *BollingerBands) Update(item model.DataItem) (Output, error) {
	o, err := b.Next(item.Close())
	if err != nil {
		return nil, err
	}
	return Output{LineAverage: o.Average, LineUpper: o.Upper, LineLower: o.Lower}, nil
}

func (b *BollingerBands) Reset()       { b.sd.Reset() }
func (b *BollingerBands) Phase() Phase { return b.sd.Phase() }
func (b *BollingerBands) Ready() bool  { return b.sd.Ready() }

func (b *BollingerBands) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeBollinger)
	snap.Period = b.sd.period
	snap.Multiplier = b.multiplier
	snap.Children = []IndicatorSnapshot{b.sd.Snapshot()}
	return snap
}

func (b *BollingerBands) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expectWithMultiplier(snap, TypeBollinger, b.sd.period, b.multiplier)
	if err != nil {
		return err
	}
	if err := expectChildren(snap, 1); err != nil {
		return err
	}
	sd, _ := NewStandardDeviation(b.sd.period)
	if err := sd.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	b.sd = sd
	return nil
}
