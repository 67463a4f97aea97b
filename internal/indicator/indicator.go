// Package indicator provides incremental technical indicators over a single
// series of observations.
//
// Every indicator consumes one observation per call, in arrival order, and
// returns its current output in O(1) or O(period) time. Concrete types offer
// typed Next/NextItem methods; the Indicator interface gives uniform dynamic
// dispatch for engines built from configuration at runtime.
//
// Indicators are not safe for concurrent use. A failed update returns an
// error and leaves the indicator exactly as it was before the call.
package indicator

import (
	"taengine/internal/model"
	"taengine/internal/numeric"
)

// Line names used as Output keys.
const (
	LineValue     = "value"
	LineMACD      = "macd"
	LineSignal    = "signal"
	LineHistogram = "histogram"
	LineK         = "k"
	LineD         = "d"
	LineAverage   = "average"
	LineUpper     = "upper"
	LineLower     = "lower"
	LinePPO       = "ppo"
)

// Output maps line names to values. Single-line indicators use LineValue.
type Output map[string]numeric.Value

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the display name with parameters (e.g. "SMA(20)").
	Name() string

	// Update feeds one data item and returns the new output.
	Update(item model.DataItem) (Output, error)

	// Reset returns the indicator to its just-constructed state.
	Reset()

	// Phase reports Fresh, Warming or Steady.
	Phase() Phase

	// Ready returns true once the indicator is Steady.
	Ready() bool

	// Snapshot captures every accumulator needed to resume the computation.
	Snapshot() IndicatorSnapshot

	// RestoreFromSnapshot replaces the state with a snapshot taken from an
	// identically parameterised indicator. On error nothing changes.
	RestoreFromSnapshot(snap IndicatorSnapshot) error
}

func single(v numeric.Value) Output {
	return Output{LineValue: v}
}
