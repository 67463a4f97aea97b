// Package replay feeds archived or simulated bars to the engine: a
// speed-controlled replayer for backtests and a random-walk bar simulator.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"taengine/internal/model"
)

// maxGap caps the simulated pause between two bars.
const maxGap = 5 * time.Second

// Replayer emits a fixed set of bars in time order. It implements
// model.BarSource.
type Replayer struct {
	bars  []model.Bar
	speed float64

	// OnBar, if set, is called after each bar is emitted.
	OnBar func(model.Bar)

	sleep func(ctx context.Context, d time.Duration) error
}

// New sorts bars by time, then series, and returns a replayer.
// speed controls the playback rate: 1 = real time, 10 = 10x, 0 = as fast
// as possible.
func New(bars []model.Bar, speed float64) *Replayer {
	sorted := append([]model.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].TS.Equal(sorted[j].TS) {
			return sorted[i].TS.Before(sorted[j].TS)
		}
		return sorted[i].Series < sorted[j].Series
	})
	return &Replayer{bars: sorted, speed: speed, sleep: sleepCtx}
}

// Len returns the number of bars to replay.
func (r *Replayer) Len() int { return len(r.bars) }

// ConsumeBars emits every bar and returns nil, or ctx.Err() if cancelled.
// It does not close out.
func (r *Replayer) ConsumeBars(ctx context.Context, out chan<- model.Bar) error {
	log := slog.With("component", "replay")
	log.Info("replay starting", "bars", len(r.bars), "speed", r.speed)

	var prev time.Time
	for i, b := range r.bars {
		if r.speed > 0 && !prev.IsZero() {
			if gap := b.TS.Sub(prev); gap > 0 {
				d := time.Duration(float64(gap) / r.speed)
				if d > maxGap {
					d = maxGap
				}
				if err := r.sleep(ctx, d); err != nil {
					log.Info("replay cancelled", "emitted", i)
					return err
				}
			}
		}
		prev = b.TS

		select {
		case out <- b:
		case <-ctx.Done():
			log.Info("replay cancelled", "emitted", i)
			return ctx.Err()
		}
		if r.OnBar != nil {
			r.OnBar(b)
		}
	}
	log.Info("replay completed", "bars", len(r.bars))
	return nil
}

func (r *Replayer) Close() error { return nil }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
