package indicator

import (
	"taengine/internal/model"
	"taengine/internal/numeric"
)

// OBV is On Balance Volume: volume is added on an up close and subtracted on
// a down close. The first bar is compared against a close of zero.
// It needs volume, so Next takes a whole data item.
type OBV struct {
	obv       numeric.Value
	prevClose numeric.Value
	hasPrev   bool
}

// NewOBV creates an On Balance Volume accumulator.
func NewOBV() *OBV { return &OBV{} }

func (o *OBV) Name() string { return "OBV" }

// NextItem feeds one bar.
func (o *OBV) NextItem(item model.DataItem) (numeric.Value, error) {
	c := numeric.NewCalc()
	next := o.obv
	switch item.Close().Cmp(o.prevClose) {
	case 1:
		next = c.Add(o.obv, item.Volume())
	case -1:
		next = c.Sub(o.obv, item.Volume())
	}
	if err := c.Err(); err != nil {
		return numeric.Zero, err
	}
	o.obv = next
	o.prevClose = item.Close()
	o.hasPrev = true
	return next, nil
}

func (o *OBV) Update(item model.DataItem) (Output, error) {
	v, err := o.NextItem(item)
	if err != nil {
		return nil, err
	}
	return single(v), nil
}

func (o *OBV) Reset() {
	o.obv = numeric.Zero
	o.prevClose = numeric.Zero
	o.hasPrev = false
}

func (o *OBV) Phase() Phase {
	if o.hasPrev {
		return Steady
	}
	return Fresh
}

func (o *OBV) Ready() bool { return o.hasPrev }

func (o *OBV) Snapshot() IndicatorSnapshot {
	snap := newSnapshot(TypeOBV)
	snap.Current = o.obv
	snap.Prev = o.prevClose
	snap.HasPrev = o.hasPrev
	return snap
}

func (o *OBV) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	snap, err := expect(snap, TypeOBV, 0)
	if err != nil {
		return err
	}
	o.obv = snap.Current
	o.prevClose = snap.Prev
	o.hasPrev = snap.HasPrev
	return nil
}
