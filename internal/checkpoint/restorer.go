package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"taengine/internal/indicator"
)

// Source describes where a restored engine came from.
type Source struct {
	Store   string    // store name, empty on a cold start
	Cursor  string    // bar stream position the snapshot was taken at
	TakenAt time.Time // zero on a cold start
	Series  int       // series restored
}

// Cold reports whether no snapshot was used.
func (s Source) Cold() bool { return s.Store == "" }

// Restorer orchestrates engine state restoration at startup.
// It follows a priority chain, e.g. Redis snapshot → SQLite snapshot → cold start.
type Restorer struct {
	specs  []indicator.Spec
	stores []Store
	obs    Observer
	log    *slog.Logger
}

// NewRestorer creates a Restorer trying stores in order.
func NewRestorer(specs []indicator.Spec, obs Observer, stores ...Store) *Restorer {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Restorer{
		specs:  specs,
		stores: stores,
		obs:    obs,
		log:    slog.With("component", "restorer"),
	}
}

// Restore returns an engine built from the first usable snapshot, or a
// fresh engine when no store has one. A store that fails to load or holds
// an unusable snapshot is skipped. It only fails when the specs themselves
// are invalid or ctx is done.
func (r *Restorer) Restore(ctx context.Context) (*indicator.Engine, Source, error) {
	for _, st := range r.stores {
		if err := ctx.Err(); err != nil {
			return nil, Source{}, err
		}
		snap, err := st.Load(ctx)
		if err != nil {
			r.log.Warn("snapshot load failed, trying next store", "store", st.Name(), "error", err)
			continue
		}
		if snap == nil {
			r.log.Info("no snapshot found", "store", st.Name())
			continue
		}

		e, err := indicator.RestoreEngine(r.specs, snap)
		if err != nil {
			r.log.Warn("snapshot restore failed, trying next store", "store", st.Name(), "error", err)
			if errors.Is(err, indicator.ErrInvalidParameter) || errors.Is(err, indicator.ErrUnknownType) {
				return nil, Source{}, err
			}
			continue
		}

		src := Source{Store: st.Name(), Cursor: snap.Cursor, TakenAt: snap.TakenAt, Series: len(snap.Series)}
		r.log.Info("restored indicator engine",
			"store", src.Store, "cursor", src.Cursor, "taken_at", src.TakenAt, "series", src.Series)
		r.obs.Restored(src)
		return e, src, nil
	}

	e, err := indicator.NewEngine(r.specs)
	if err != nil {
		return nil, Source{}, err
	}
	r.log.Info("no usable snapshot, cold starting indicator engine")
	r.obs.Restored(Source{})
	return e, Source{}, nil
}
