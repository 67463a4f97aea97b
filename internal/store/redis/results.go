package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"taengine/internal/model"
)

// ResultOptions configures a ResultWriter.
type ResultOptions struct {
	Prefix    string        // result stream prefix, e.g. "ind"
	MaxLen    int64         // approximate cap per result stream
	LatestTTL time.Duration // TTL of the latest-value keys
	BufferCap int           // confirmed results held while the breaker is open
}

func (o *ResultOptions) defaults() {
	if o.Prefix == "" {
		o.Prefix = "ind"
	}
	if o.MaxLen <= 0 {
		o.MaxLen = 10000
	}
	if o.LatestTTL <= 0 {
		o.LatestTTL = 24 * time.Hour
	}
	if o.BufferCap <= 0 {
		o.BufferCap = 5000
	}
}

// ResultWriter publishes indicator results. Confirmed results are appended
// to "{prefix}:{name}:{series}", stored under a latest key and published;
// live previews are only published.
//
// While the breaker is open confirmed results are buffered, oldest dropped
// first, and flushed after the next successful write.
type ResultWriter struct {
	client  *goredis.Client
	breaker *Breaker
	opts    ResultOptions
	log     *slog.Logger

	mu      sync.Mutex
	pending []model.IndicatorResult
	dropped int
}

// NewResultWriter creates a writer. The breaker may be nil.
func NewResultWriter(client *goredis.Client, breaker *Breaker, opts ResultOptions) *ResultWriter {
	opts.defaults()
	return &ResultWriter{
		client:  client,
		breaker: breaker,
		opts:    opts,
		log:     slog.Default().With("component", "redis-results"),
	}
}

// WriteResults writes one bar's results in a single pipeline.
func (w *ResultWriter) WriteResults(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}
	err := guard(w.breaker, func() error { return w.writeBatch(ctx, results) })
	if errors.Is(err, ErrBreakerOpen) {
		w.buffer(results)
		return nil
	}
	if err != nil {
		return err
	}
	return w.flush(ctx)
}

// Buffered returns the number of results waiting for Redis.
func (w *ResultWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close flushes what it can. The client is owned by the caller.
func (w *ResultWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.flush(ctx)
}

func (w *ResultWriter) writeBatch(ctx context.Context, results []model.IndicatorResult) error {
	pipe := w.client.Pipeline()
	for i := range results {
		r := &results[i]
		data := r.JSON()
		if !r.Live {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: r.StreamKey(w.opts.Prefix),
				MaxLen: w.opts.MaxLen,
				Approx: true,
				Values: map[string]interface{}{"data": string(data)},
			})
			pipe.Set(ctx, latestKey(w.opts.Prefix, r), data, w.opts.LatestTTL)
		}
		pipe.Publish(ctx, pubSubChannel(w.opts.Prefix, r), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (w *ResultWriter) buffer(results []model.IndicatorResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range results {
		if r.Live {
			continue
		}
		if len(w.pending) >= w.opts.BufferCap {
			w.pending = w.pending[1:]
			w.dropped++
		}
		w.pending = append(w.pending, r)
	}
}

func (w *ResultWriter) flush(ctx context.Context) error {
	w.mu.Lock()
	batch, dropped := w.pending, w.dropped
	w.pending, w.dropped = nil, 0
	w.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := guard(w.breaker, func() error { return w.writeBatch(ctx, batch) }); err != nil {
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		if over := len(w.pending) - w.opts.BufferCap; over > 0 {
			w.pending = w.pending[over:]
			dropped += over
		}
		w.dropped += dropped
		w.mu.Unlock()
		return err
	}
	w.log.Info("flushed buffered results", "count", len(batch), "dropped", dropped)
	return nil
}

func guard(b *Breaker, fn func() error) error {
	if b == nil {
		return fn()
	}
	return b.Do(fn)
}
