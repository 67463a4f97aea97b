package indicator

import "log/slog"

// ReloadSpecs replaces the engine's indicator set. State is preserved for
// indicators whose key is unchanged; only genuinely new indicators are
// created fresh, so adding one indicator does not discard the warm-up
// history of the others. Removed indicators are dropped.
// Returns the number of preserved and newly created instances across all
// series. On error the engine is unchanged.
func (e *Engine) ReloadSpecs(specs []Spec) (preserved, created int, err error) {
	if err := ValidateSpecs(specs); err != nil {
		return 0, 0, err
	}

	if specSetsEqual(e.specs, specs) {
		for _, si := range e.series {
			preserved += len(si.indicators)
		}
		slog.Info("indicator set unchanged", "component", "reload", "series", len(e.series))
		return preserved, 0, nil
	}

	specs = append([]Spec(nil), specs...)
	migrated := make(map[string]*seriesIndicators, len(e.series))
	for key, old := range e.series {
		si, kept, fresh, err := migrateSeries(old, specs)
		if err != nil {
			return 0, 0, err
		}
		migrated[key] = si
		preserved += kept
		created += fresh
	}

	e.specs = specs
	e.series = migrated

	slog.Info("indicator set reloaded", "component", "reload",
		"indicators", len(specs), "series", len(migrated), "preserved", preserved, "created", created)
	return preserved, created, nil
}

// migrateSeries builds instances for specs, reusing old ones by key.
func migrateSeries(old *seriesIndicators, specs []Spec) (si *seriesIndicators, kept, fresh int, err error) {
	byKey := make(map[string]Indicator, len(old.indicators))
	for i, s := range old.specs {
		byKey[s.Key()] = old.indicators[i]
	}

	inds := make([]Indicator, len(specs))
	for i, s := range specs {
		if existing, ok := byKey[s.Key()]; ok {
			inds[i] = existing
			kept++
			continue
		}
		if inds[i], err = New(s); err != nil {
			return nil, 0, 0, err
		}
		fresh++
	}
	return &seriesIndicators{indicators: inds, specs: specs}, kept, fresh, nil
}

// specSetsEqual reports whether a and b hold the same keys in the same order.
func specSetsEqual(a, b []Spec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() {
			return false
		}
	}
	return true
}
