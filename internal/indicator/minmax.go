package indicator

import (
	"fmt"

	"taengine/internal/model"
	"taengine/internal/numeric"
	"taengine/internal/ringbuf"
)

// extremum tracks the minimum or maximum of a sliding window. The slot of
// the current extreme is cached; the window is rescanned only when that
// slot is about to be overwritten, so updates are amortised O(1) and
// O(period) in the worst case.
type extremum struct {
	period int
	window *ringbuf.Window[numeric.Value]
	ext    int // physical slot holding the extreme
	beats  func(a, b numeric.Value) bool // a strictly beats b
}

func newExtremum(period int, beats func(a, b numeric.Value) bool) extremum {
	return extremum{period: period, window: ringbuf.New[numeric.Value](period), beats: beats}
}

// advance returns the slot and value of the extreme after v is pushed.
func (x *extremum) advance(v numeric.Value) (slot int, ext numeric.Value) {
	next := x.window.Slot()
	if x.window.Len() == 0 {
		return next, v
	}
	cur := x.window.Get(x.ext)
	// ties move to the newest slot, which postpones the next rescan
	if !x.beats(cur, v) {
		return next, v
	}
	if !x.window.Full() || x.ext != next {
		return x.ext, cur
	}
	slot, ext = next, v
	for i := 0; i < x.window.Cap(); i++ {
		if i == next {
			continue
		}
		if c := x.window.Get(i); x.beats(c, ext) {
			slot, ext = i, c
		}
	}
	return slot, ext
}

func (x *extremum) commit(v numeric.Value, slot int) {
	x.window.Push(v)
	x.ext = slot
}

func (x *extremum) reset() {
	x.window.Reset()
	x.ext = 0
}

func (x *extremum) phase() Phase { return phaseOf(x.window.Len(), x.period) }

func (x *extremum) snapshot(typ string) IndicatorSnapshot {
	snap := newSnapshot(typ)
	snap.Period = x.period
	snap.Buf, snap.Idx, snap.Count = x.window.Raw()
	snap.ExtremeIdx = x.ext
	return snap
}

func (x *extremum) restore(snap IndicatorSnapshot, typ string) error {
	snap, err := expect(snap, typ, x.period)
	if err != nil {
		return err
	}
	w, err := loadWindow(x.period, snap)
	if err != nil {
		return err
	}
	if snap.Count > 0 && (snap.ExtremeIdx < 0 || snap.ExtremeIdx >= x.period || snap.ExtremeIdx >= snap.Count && snap.Count < x.period) {
		return fmt.Errorf("%w: %s extreme slot %d with %d values", ErrSnapshotCorrupt, typ, snap.ExtremeIdx, snap.Count)
	}
	x.window = w
	x.ext = snap.ExtremeIdx
	return nil
}

func (x *extremum) next(v numeric.Value) numeric.Value {
	slot, ext := x.advance(v)
	x.commit(v, slot)
	return ext
}

// Minimum is the lowest value over the last period observations.
type Minimum struct {
	extremum
}

// NewMinimum creates a sliding-window minimum.
func NewMinimum(period int) (*Minimum, error) {
	if err := checkPeriod("MIN", period); err != nil {
		return nil, err
	}
	return &Minimum{newExtremum(period, numeric.Value.LessThan)}, nil
}

// DefaultMinimum returns MIN(14).
func DefaultMinimum() *Minimum {
	m, _ := NewMinimum(14)
	return m
}

func (m *Minimum) Name() string { return fmt.Sprintf("MIN(%d)", m.period) }

// Next feeds one value. It cannot fail.
func (m *Minimum) Next(v numeric.Value) numeric.Value { return m.next(v) }

func (m *Minimum) Update(item model.DataItem) (Output, error) {
	return single(m.next(item.Low())), nil
}

func (m *Minimum) Reset()       { m.reset() }
func (m *Minimum) Phase() Phase { return m.phase() }
func (m *Minimum) Ready() bool  { return m.phase() == Steady }

func (m *Minimum) Snapshot() IndicatorSnapshot { return m.snapshot(TypeMin) }

func (m *Minimum) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	return m.restore(snap, TypeMin)
}

// Maximum is the highest value over the last period observations.
type Maximum struct {
	extremum
}

// NewMaximum creates a sliding-window maximum.
func NewMaximum(period int) (*Maximum, error) {
	if err := checkPeriod("MAX", period); err != nil {
		return nil, err
	}
	return &Maximum{newExtremum(period, numeric.Value.GreaterThan)}, nil
}

// DefaultMaximum returns MAX(14).
func DefaultMaximum() *Maximum {
	m, _ := NewMaximum(14)
	return m
}

func (m *Maximum) Name() string { return fmt.Sprintf("MAX(%d)", m.period) }

// Next feeds one value. It cannot fail.
func (m *Maximum) Next(v numeric.Value) numeric.Value { return m.next(v) }

func (m *Maximum) Update(item model.DataItem) (Output, error) {
	return single(m.next(item.High())), nil
}

func (m *Maximum) Reset()       { m.reset() }
func (m *Maximum) Phase() Phase { return m.phase() }
func (m *Maximum) Ready() bool  { return m.phase() == Steady }

func (m *Maximum) Snapshot() IndicatorSnapshot { return m.snapshot(TypeMax) }

func (m *Maximum) RestoreFromSnapshot(snap IndicatorSnapshot) error {
	return m.restore(snap, TypeMax)
}
