package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taengine/internal/indicator"
)

// Observer receives checkpoint outcomes, e.g. for metrics.
type Observer interface {
	CheckpointSaved(store string, took time.Duration, err error)
	Restored(src Source)
}

type nopObserver struct{}

func (nopObserver) CheckpointSaved(string, time.Duration, error) {}
func (nopObserver) Restored(Source)                              {}

// CaptureFunc takes a snapshot of the live engine. It is called from the
// checkpoint loop goroutine and must synchronise with the engine's owner.
type CaptureFunc func() (*indicator.EngineSnapshot, error)

// Checkpointer writes engine snapshots to every configured store.
type Checkpointer struct {
	stores []Store
	obs    Observer
	log    *slog.Logger
}

// NewCheckpointer creates a Checkpointer. obs may be nil.
func NewCheckpointer(obs Observer, stores ...Store) *Checkpointer {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Checkpointer{stores: stores, obs: obs, log: slog.With("component", "checkpoint")}
}

// Save snapshots e at cursor and writes it everywhere.
func (c *Checkpointer) Save(ctx context.Context, e *indicator.Engine, cursor string) error {
	snap, err := indicator.SnapshotEngine(e, cursor)
	if err != nil {
		return fmt.Errorf("snapshot engine: %w", err)
	}
	return c.SaveSnapshot(ctx, snap)
}

// SaveSnapshot writes snap to every store. A failing store does not stop
// the others; all failures are joined.
func (c *Checkpointer) SaveSnapshot(ctx context.Context, snap *indicator.EngineSnapshot) error {
	var errs []error
	for _, st := range c.stores {
		start := time.Now()
		err := st.Save(ctx, snap)
		c.obs.CheckpointSaved(st.Name(), time.Since(start), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.log.Info("checkpoint saved", "series", len(snap.Series), "cursor", snap.Cursor, "stores", len(c.stores))
	return nil
}

// Loop captures and saves a snapshot every interval until ctx is done.
// Failures are logged and the loop continues.
func (c *Checkpointer) Loop(ctx context.Context, interval time.Duration, capture CaptureFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := capture()
			if err != nil {
				c.log.Error("snapshot error", "error", err)
				continue
			}
			if err := c.SaveSnapshot(ctx, snap); err != nil {
				c.log.Error("checkpoint write error", "error", err)
			}
		}
	}
}
