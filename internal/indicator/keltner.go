package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// KeltnerChannel: average = EMA(period) of the typical price (h+l+c)/3,
// bands = average ± multiplier * ATR(period).
type KeltnerChannel struct {
	multiplier numeric.Value
	avg        *EMA
	atr        *ATR
}

var three = numeric.FromInt(3)

// NewKeltnerChannel creates a Keltner Channel. multiplier must not be negative.
func NewKeltnerChannel(period int, multiplier numeric.Value) (*KeltnerChannel, error) {
	if err := checkPeriod("KC", period); err != nil {
		return nil, err
	}
	if multiplier.IsNegative() {
		return nil, invalidParam("KC multiplier must not be negative, got %s", multiplier)
	}
	avg, err := NewEMA(period)
	if err != nil {
		return nil, err
	}
	atr, err := NewATR(period)
	if err != nil {
		return nil, err
	}
	return &KeltnerChannel{multiplier: multiplier, avg: avg, atr: atr}, nil
}

// DefaultKeltnerChannel returns KC(10, 2).
func DefaultKeltnerChannel() *KeltnerChannel {
	k, _ := NewKeltnerChannel(10, numeric.Two)
	return k
}

func (k *KeltnerChannel) Name() string {
	return fmt.Sprintf("KC(%d, %s)", k.avg.period, k.multiplier)
}

// NextItem feeds one bar.
func (k *KeltnerChannel) NextItem(item model.DataItem) (BollingerOutput, error) {
	c := numeric.NewCalc()
	typical := c.Div(c.Add(c.Add(item.Close(), item.High()), item.Low()), three)
	return k.step(c, typical, item.High(), item.Low(), item.Close())
}

// Next feeds one price.
func (k *KeltnerChannel) Next(price numeric.Value) (BollingerOutput, error) {
	return k.step(numeric.NewCalc(), price, price, price, price)
}

func (k *KeltnerChannel) step(c *numeric.Calc, typical, high, low, last numeric.Value) (BollingerOutput, error) {
	avg := k.avg.advance(c, typical)
	atr := k.atr.advance(c, high, low)
	width := c.Mul(atr.current, k.multiplier)
	out := BollingerOutput{
		Average: avg.current,
		Upper:   c.Add(avg.current, width),
		Lower:   c.Sub(avg.current, width),
	}
	if err := c.Err(); err != nil {
		return BollingerOutput{}, err
	}
	k.avg.smoother = avg
	k.atr.commit(last, atr)
	return out, nil
}

func (k *KeltnerChannel) Update(item model.DataItem) (Output, error) {
	o, err := k.NextItem(item)
	if err != nil {
		return nil, err
	}
	return Output{LineAverage: o.Average, LineUpper: o.Upper, LineLower: o.Lower}, nil
}

func (k *KeltnerChannel) Reset() {
	k.avg.Reset()
	k.atr.Reset()
}

func (k *KeltnerChannel) Phase() Phase { return k.avg.Phase() }
func (k *KeltnerChannel) Ready() bool  { return k.avg.Ready() }

func (k *KeltnerChannel) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeKeltner)
	snap.Period = k.avg.period
	snap.Multiplier = k.multiplier
	snap.Children = []IndicatorSnapshot{k.avg.Snapshot(), k.atr.Snapshot()}
	return snap
}

func (k *KeltnerChannel) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expectWithMultiplier(snap, TypeKeltner, k.avg.period, k.multiplier)
	if err != nil {
		return err
	}
	if err := expectChildren(snap, 2); err != nil {
		return err
	}
	fresh, _ := NewKeltnerChannel(k.avg.period, k.multiplier)
	if err := fresh.avg.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	if err := fresh.atr.RestoreFromSnapshot(snap.Children[1]); err != nil {
		return err
	}
	*k = *fresh
	return nil
}
