package indicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"taengine/internal/model"
)

// seriesIndicators holds live indicator instances for one series.
type seriesIndicators struct {
	indicators []Indicator
	specs      []Spec
}

// Engine computes a fixed set of indicators for every series it sees.
// Designed for single-goroutine usage, no locks needed.
type Engine struct {
	specs  []Spec
	series map[string]*seriesIndicators
}

// NewEngine creates an indicator engine computing specs for each series.
func NewEngine(specs []Spec) (*Engine, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	return &Engine{
		specs:  append([]Spec(nil), specs...),
		series: make(map[string]*seriesIndicators, 64),
	}, nil
}

// Specs returns the configured indicator specs.
func (e *Engine) Specs() []Spec { return append([]Spec(nil), e.specs...) }

// Process feeds a completed bar to every indicator of its series and
// returns one result per indicator that updated. Instances are created on
// the first bar of a series. A failing indicator is left unchanged and
// reported in the joined error; the others still update.
func (e *Engine) Process(bar model.Bar) ([]model.IndicatorResult, error) {
	si, exists := e.series[bar.Series]
	if !exists {
		var err error
		if si, err = e.newSeries(); err != nil {
			return nil, err
		}
		e.series[bar.Series] = si
	}

	results := make([]model.IndicatorResult, 0, len(si.indicators))
	var errs []error
	for _, ind := range si.indicators {
		out, err := ind.Update(bar.Item)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s on %s: %w", ind.Name(), bar.Series, err))
			continue
		}
		results = append(results, result(ind, bar, out, false))
	}
	return results, errors.Join(errs...)
}

// ProcessPeek computes what Process would return for a forming bar without
// mutating any indicator. Returns nil if the series hasn't been seen before.
func (e *Engine) ProcessPeek(bar model.Bar) ([]model.IndicatorResult, error) {
	si, exists := e.series[bar.Series]
	if !exists {
		return nil, nil
	}

	results := make([]model.IndicatorResult, 0, len(si.indicators))
	var errs []error
	for _, ind := range si.indicators {
		clone, err := FromSnapshot(ind.Snapshot())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s on %s: %w", ind.Name(), bar.Series, err))
			continue
		}
		out, err := clone.Update(bar.Item)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s on %s: %w", ind.Name(), bar.Series, err))
			continue
		}
		results = append(results, result(clone, bar, out, true))
	}
	return results, errors.Join(errs...)
}

// Run consumes bars and emits indicator results. Blocks until ctx is done
// or bars is closed. Results are dropped when out is full.
func (e *Engine) Run(ctx context.Context, bars <-chan model.Bar, out chan<- model.IndicatorResult) {
	log := slog.With("component", "engine")
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-bars:
			if !ok {
				return
			}
			results, err := e.Process(bar)
			if err != nil {
				log.Warn("indicator update failed", "series", bar.Series, "error", err)
			}
			for _, r := range results {
				select {
				case out <- r:
				default:
					// drop if channel full
				}
			}
		}
	}
}

// Reset returns every indicator of a series to its fresh state.
// It reports whether the series was known.
func (e *Engine) Reset(series string) bool {
	si, ok := e.series[series]
	if !ok {
		return false
	}
	for _, ind := range si.indicators {
		ind.Reset()
	}
	return true
}

// Series returns the known series keys in sorted order.
func (e *Engine) Series() []string {
	keys := make([]string, 0, len(e.series))
	for k := range e.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Indicators returns the live instances of a series, in spec order.
func (e *Engine) Indicators(series string) []Indicator {
	si, ok := e.series[series]
	if !ok {
		return nil
	}
	return append([]Indicator(nil), si.indicators...)
}

// newSeries creates fresh indicator instances for the engine's specs.
func (e *Engine) newSeries() (*seriesIndicators, error) {
	inds := make([]Indicator, len(e.specs))
	for i, s := range e.specs {
		ind, err := New(s)
		if err != nil {
			return nil, err
		}
		inds[i] = ind
	}
	return &seriesIndicators{indicators: inds, specs: e.specs}, nil
}

func result(ind Indicator, bar model.Bar, out Output, live bool) model.IndicatorResult {
	phase := ind.Phase()
	return model.IndicatorResult{
		Name:   ind.Name(),
		Series: bar.Series,
		TS:     bar.TS,
		Values: out,
		Phase:  phase.String(),
		Ready:  phase == Steady,
		Live:   live,
	}
}
