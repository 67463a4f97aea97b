package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"taengine/internal/model"
)

// BarConsumer reads bars from a Redis stream with XREAD, starting after a
// given entry ID.
type BarConsumer struct {
	client *goredis.Client
	stream string
	lastID string
	count  int64
	block  time.Duration
	log    *slog.Logger

	// OnBadEntry, if set, is called for every skipped entry.
	OnBadEntry func(id string, err error)
}

// NewBarConsumer creates a consumer. An empty after reads only entries
// added from now on; otherwise reading resumes right after that ID.
func NewBarConsumer(client *goredis.Client, stream, after string) *BarConsumer {
	if after == "" {
		after = "$"
	}
	return &BarConsumer{
		client: client,
		stream: stream,
		lastID: after,
		count:  100,
		block:  2 * time.Second,
		log:    slog.Default().With("component", "redis-bars", "stream", stream),
	}
}

// ConsumeBars blocks until ctx is done. Malformed entries are logged and
// skipped so one bad producer cannot stall the stream.
func (c *BarConsumer) ConsumeBars(ctx context.Context, out chan<- model.Bar) error {
	c.log.Info("consuming bars", "after", c.lastID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XRead(ctx, &goredis.XReadArgs{
			Streams: []string{c.stream, c.lastID},
			Count:   c.count,
			Block:   c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("xread failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.lastID = msg.ID
				bar, err := DecodeBar(msg.ID, msg.Values)
				if err != nil {
					c.log.Warn("skipping entry", "id", msg.ID, "error", err)
					if c.OnBadEntry != nil {
						c.OnBadEntry(msg.ID, err)
					}
					continue
				}
				select {
				case out <- bar:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// LastID returns the ID of the last entry read.
func (c *BarConsumer) LastID() string { return c.lastID }

// Close is a no-op; the client is owned by the caller.
func (c *BarConsumer) Close() error { return nil }

// BarProducer appends bars to a stream.
type BarProducer struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// NewBarProducer creates a producer capping the stream at roughly maxLen.
func NewBarProducer(client *goredis.Client, stream string, maxLen int64) *BarProducer {
	return &BarProducer{client: client, stream: stream, maxLen: maxLen}
}

// PublishBars appends bars in one pipeline and returns their entry IDs.
func (p *BarProducer) PublishBars(ctx context.Context, bars []model.Bar) ([]string, error) {
	pipe := p.client.Pipeline()
	cmds := make([]*goredis.StringCmd, len(bars))
	for i, b := range bars {
		cmds[i] = pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: p.maxLen > 0,
			Values: EncodeBar(b),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, len(cmds))
	for i, cmd := range cmds {
		ids[i] = cmd.Val()
	}
	return ids, nil
}
