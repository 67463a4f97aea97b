package indicator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taengine/internal/numeric"
	"taengine/internal/ringbuf"
)

// SnapshotVersion is the schema version written by this build.
// Version 0 is the unversioned layout and migrates in place.
const SnapshotVersion = 1

// Indicator type tags, shared by Spec and IndicatorSnapshot.
const (
	TypeSMA        = "SMA"
	TypeEMA        = "EMA"
	TypeSMMA       = "SMMA"
	TypeRSI        = "RSI"
	TypeMACD       = "MACD"
	TypeStochastic = "STOCH"
	TypeMin        = "MIN"
	TypeMax        = "MAX"
	TypeSD         = "SD"
	TypeBollinger  = "BB"
	TypeTrueRange  = "TR"
	TypeATR        = "ATR"
	TypeROC        = "ROC"
	TypeKeltner    = "KC"
	TypePPO        = "PPO"
	TypeOBV        = "OBV"
	TypeER         = "ER"
)

// IndicatorSnapshot holds the serialized state of a single indicator instance.
// State fields are always encoded, even when zero, so a restore never
// silently defaults an accumulator.
type IndicatorSnapshot struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Period  int    `json:"period"`

	// Composite parameters
	Fast       int           `json:"fast,omitempty"`
	Slow       int           `json:"slow,omitempty"`
	Signal     int           `json:"signal,omitempty"`
	DPeriod    int           `json:"d_period,omitempty"`
	Multiplier numeric.Value `json:"multiplier"`

	// Window state, physical order
	Buf   []numeric.Value `json:"buf"`
	Idx   int             `json:"idx"`
	Count int             `json:"count"`
	Seen  int             `json:"seen"`

	// Accumulators
	Sum        numeric.Value `json:"sum"`
	SumSq      numeric.Value `json:"sum_sq"`
	Current    numeric.Value `json:"current"`
	Prev       numeric.Value `json:"prev"`
	HasPrev    bool          `json:"has_prev"`
	ExtremeIdx int           `json:"extreme_idx"`

	// Owned sub-indicators, in a fixed order per type
	Children []IndicatorSnapshot `json:"children,omitempty"`
}

func newSnapshot(typ string) IndicatorSnapshot {
	return IndicatorSnapshot{Version: SnapshotVersion, Type: typ}
}

// migrate upgrades a snapshot to SnapshotVersion.
func migrate(snap IndicatorSnapshot) (IndicatorSnapshot, error) {
	switch {
	case snap.Version > SnapshotVersion:
		return snap, fmt.Errorf("%w: %d (this build reads up to %d)", ErrSnapshotVersion, snap.Version, SnapshotVersion)
	case snap.Version < 0:
		return snap, fmt.Errorf("%w: negative version %d", ErrSnapshotCorrupt, snap.Version)
	case snap.Version == 0:
		// v0 carried the same fields without the version tag
		snap.Version = SnapshotVersion
	}
	return snap, nil
}

// expect migrates snap and checks its type and period.
func expect(snap IndicatorSnapshot, typ string, period int) (IndicatorSnapshot, error) {
	snap, err := migrate(snap)
	if err != nil {
		return snap, err
	}
	if snap.Type != typ || snap.Period != period {
		return snap, fmt.Errorf("%w: got %s period %d, want %s period %d",
			ErrSnapshotMismatch, snap.Type, snap.Period, typ, period)
	}
	return snap, nil
}

func expectWithMultiplier(snap IndicatorSnapshot, typ string, period int, multiplier numeric.Value) (IndicatorSnapshot, error) {
	snap, err := expect(snap, typ, period)
	if err != nil {
		return snap, err
	}
	if !snap.Multiplier.Equal(multiplier) {
		return snap, fmt.Errorf("%w: %s multiplier %s, want %s", ErrSnapshotMismatch, typ, snap.Multiplier, multiplier)
	}
	return snap, nil
}

func expectChildren(snap IndicatorSnapshot, n int) error {
	if len(snap.Children) != n {
		return fmt.Errorf("%w: %s has %d children, want %d", ErrSnapshotCorrupt, snap.Type, len(snap.Children), n)
	}
	return nil
}

func loadWindow(period int, snap IndicatorSnapshot) (*ringbuf.Window[numeric.Value], error) {
	w := ringbuf.New[numeric.Value](period)
	if err := w.Load(snap.Buf, snap.Idx, snap.Count); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSnapshotCorrupt, snap.Type, err)
	}
	return w, nil
}

// loadWindowSeen is loadWindow for indicators that count one observation
// beyond the window.
func loadWindowSeen(period int, snap IndicatorSnapshot) (*ringbuf.Window[numeric.Value], error) {
	if snap.Seen < 0 || snap.Seen > period+1 || min(snap.Seen, period) != snap.Count {
		return nil, fmt.Errorf("%w: %s seen %d with %d values", ErrSnapshotCorrupt, snap.Type, snap.Seen, snap.Count)
	}
	return loadWindow(period, snap)
}

// FromSnapshot builds a new indicator of the snapshot's type and parameters
// and restores its state.
func FromSnapshot(snap IndicatorSnapshot) (Indicator, error) {
	snap, err := migrate(snap)
	if err != nil {
		return nil, err
	}
	ind, err := New(specFromSnapshot(snap))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if err := ind.RestoreFromSnapshot(snap); err != nil {
		return nil, err
	}
	return ind, nil
}

// SeriesSnapshot holds indicator snapshots for a single series.
type SeriesSnapshot struct {
	Series     string              `json:"series"`
	Indicators []IndicatorSnapshot `json:"indicators"`
}

// EngineSnapshot holds the full state of the indicator engine.
type EngineSnapshot struct {
	Version int              `json:"version"` // schema version for forward compat
	Cursor  string           `json:"cursor"`  // bar stream ID at checkpoint time
	TakenAt time.Time        `json:"taken_at"`
	Series  []SeriesSnapshot `json:"series"`
}

// SnapshotEngine captures the full state of an indicator Engine.
func SnapshotEngine(e *Engine, cursor string) (*EngineSnapshot, error) {
	snap := &EngineSnapshot{
		Version: SnapshotVersion,
		Cursor:  cursor,
		TakenAt: time.Now().UTC(),
		Series:  make([]SeriesSnapshot, 0, len(e.series)),
	}
	for _, key := range e.Series() {
		si := e.series[key]
		ss := SeriesSnapshot{Series: key, Indicators: make([]IndicatorSnapshot, 0, len(si.indicators))}
		for _, ind := range si.indicators {
			ss.Indicators = append(ss.Indicators, ind.Snapshot())
		}
		snap.Series = append(snap.Series, ss)
	}
	return snap, nil
}

// RestoreEngine rebuilds an indicator Engine from a snapshot.
// It is tolerant of config changes: indicators are matched by spec key
// rather than by index. Matching indicators get their state restored; new
// indicators start fresh (cold). Removed indicators are silently skipped.
func RestoreEngine(specs []Spec, snap *EngineSnapshot) (*Engine, error) {
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("%w: engine snapshot %d", ErrSnapshotVersion, snap.Version)
	}
	e, err := NewEngine(specs)
	if err != nil {
		return nil, err
	}

	for _, ss := range snap.Series {
		si, err := e.newSeries()
		if err != nil {
			return nil, err
		}

		lookup := make(map[string]IndicatorSnapshot, len(ss.Indicators))
		for _, indSnap := range ss.Indicators {
			lookup[specFromSnapshot(indSnap).Key()] = indSnap
		}

		restored, cold := 0, 0
		for i, ind := range si.indicators {
			indSnap, found := lookup[si.specs[i].Key()]
			if !found {
				cold++
				continue
			}
			if err := ind.RestoreFromSnapshot(indSnap); err != nil {
				if errors.Is(err, ErrSnapshotVersion) {
					return nil, err
				}
				// non-fatal: leave cold
				slog.Warn("indicator restore failed, cold-starting",
					"component", "restorer", "series", ss.Series, "indicator", ind.Name(), "error", err)
				cold++
				continue
			}
			restored++
		}

		if cold > 0 {
			slog.Info("series restored",
				"component", "restorer", "series", ss.Series, "restored", restored, "cold", cold)
		}
		e.series[ss.Series] = si
	}

	return e, nil
}
