package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|); the first
// bar has no previous close and yields high-low. Fed bare prices it yields
// |price-prevPrice|, and 0 on the first price.
type TrueRange struct {
	prevClose numeric.Value
	hasPrev   bool
}

// NewTrueRange creates a true range tracker. It has no parameters.
func NewTrueRange() *TrueRange { return &TrueRange{} }

func (t *TrueRange) Name() string { return "TR" }

func (t *TrueRange) advance(c *numeric.Calc, high, low numeric.Value) numeric.Value {
	hl := c.Sub(high, low)
	if !t.hasPrev {
		return hl
	}
	return numeric.Max3(hl, c.Sub(high, t.prevClose).Abs(), c.Sub(low, t.prevClose).Abs())
}

func (t *TrueRange) commit(last numeric.Value) {
	t.prevClose = last
	t.hasPrev = true
}

// NextItem feeds one bar.
func (t *TrueRange) NextItem(item model.DataItem) (numeric.Value, error) {
	c := numeric.NewCalc()
	tr := t.advance(c, item.High(), item.Low())
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	t.commit(item.Close())
	return tr, nil
}

// Next feeds one price.
func (t *TrueRange) Next(price numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	tr := t.advance(c, price, price)
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	t.commit(price)
	return tr, nil
}

func (t *TrueRange) Update(item model.DataItem) (Output, error) {
	v, err := t.NextItem(item)
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (t *TrueRange) Reset() {
	t.prevClose = numeric.Zero
	t.hasPrev = false
}

// Phase is Fresh until the first bar, then Steady.
func (t *TrueRange) Phase() Phase {
	if t.hasPrev {
		return Steady
	}
	return Fresh
}

func (t *TrueRange) Ready() bool { return t.hasPrev }

func (t *TrueRange) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeTrueRange)
	snap.Prev = t.prevClose
	snap.HasPrev = t.hasPrev
	return snap
}

func (t *TrueRange) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeTrueRange, 0)
	if err != nil {
		return err
	}
	t.prevClose = snap.Prev
	t.hasPrev = snap.HasPrev
	return nil
}

// ATR is the Average True Range: an exponential average of TrueRange.
type ATR struct {
	tr  *TrueRange
	avg *EMA
}

// NewATR creates an ATR with the given period.
func NewATR(period int) (*ATR, error) {
	if err := checkPeriod("ATR", period); err != nil {
		return nil, err
	}
	avg, err := NewEMA(period)
	if err != nil {
		return nil, err
	}
	return &ATR{tr: NewTrueRange(), avg: avg}, nil
}

// DefaultATR returns ATR(14).
func DefaultATR() *ATR {
	a, _ := NewATR(14)
	return a
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.avg.period) }

func (a *ATR) advance(c *numeric.Calc, high, low numeric.Value) smoother {
	return a.avg.advance(c, a.tr.advance(c, high, low))
}

func (a *ATR) commit(last numeric.Value, avg smoother) {
	a.tr.commit(last)
	a.avg.smoother = avg
}

// NextItem feeds one bar.
func (a *ATR) NextItem(item model.DataItem) (numeric.Value, error) {
	c := numeric.NewCalc()
	st := a.advance(c, item.High(), item.Low())
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	a.commit(item.Close(), st)
	return st.current, nil
}

// Next feeds one price.
func (a *ATR) Next(price numeric.Value) (numeric.Value, error) {
	c := numeric.NewCalc()
	st := a.advance(c, price, price)
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	a.commit(price, st)
	return st.current, nil
}

func (a *ATR) Update(item model.DataItem) (Output, error) {
	v, err := a.NextItem(item)
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (a *ATR) Reset() {
	a.tr.Reset()
	a.avg.Reset()
}

func (a *ATR) Phase() Phase { return a.avg.Phase() }
func (a *ATR) Ready() bool  { return a.avg.Ready() }

func (a *ATR) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeATR)
	snap.Period = a.avg.period
	snap.Children = []IndicatorSnapshot{a.tr.Snapshot(), a.avg.Snapshot()}
	return snap
}

func (a *ATR) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeATR, a.avg.period)
	if err != nil {
		return err
	}
	if err := expectChildren(snap, 2); err != nil {
		return err
	}
	fresh, _ := NewATR(a.avg.period)
	if err := fresh.tr.RestoreFromSnapshot(snap.Children[0]); err != nil {
		return err
	}
	if err := fresh.avg.RestoreFromSnapshot(snap.Children[1]); err != nil {
		return err
	}
	*a = *fresh
	return nil
}
