package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"taengine/internal/model"
)

// LiveBarSubscriber delivers forming bars published on a PubSub channel.
// Payloads are JSON objects with the same fields as bar stream entries.
type LiveBarSubscriber struct {
	client  *goredis.Client
	channel string
	log     *slog.Logger
}

// NewLiveBarSubscriber creates a subscriber for channel.
func NewLiveBarSubscriber(client *goredis.Client, channel string) *LiveBarSubscriber {
	return &LiveBarSubscriber{
		client:  client,
		channel: channel,
		log:     slog.Default().With("component", "redis-live", "channel", channel),
	}
}

// ConsumeBars blocks until ctx is done or the subscription closes.
func (s *LiveBarSubscriber) ConsumeBars(ctx context.Context, out chan<- model.Bar) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.log.Info("subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			bar, err := DecodeLiveBar([]byte(msg.Payload))
			if err != nil {
				s.log.Warn("skipping live bar", "error", err)
				continue
			}
			select {
			case out <- bar:
			default:
				// drop previews while the engine is busy
			}
		}
	}
}

func (s *LiveBarSubscriber) Close() error { return nil }

// EncodeLiveBar renders a bar as a PubSub payload.
func EncodeLiveBar(bar model.Bar) ([]byte, error) {
	return json.Marshal(EncodeBar(bar))
}

// DecodeLiveBar parses a PubSub payload. Live bars carry no cursor.
func DecodeLiveBar(payload []byte) (model.Bar, error) {
	var values map[string]interface{}
	if err := json.Unmarshal(payload, &values); err != nil {
		return model.Bar{}, fmt.Errorf("%w: %v", ErrBadEntry, err)
	}
	bar, err := DecodeBar("live", values)
	if err != nil {
		return model.Bar{}, err
	}
	bar.Cursor = ""
	return bar, nil
}

// PublishLiveBar publishes a forming bar.
func PublishLiveBar(ctx context.Context, client *goredis.Client, channel string, bar model.Bar) error {
	payload, err := EncodeLiveBar(bar)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, payload).Err()
}

// ConfigSubscriber delivers indicator set updates published on a channel.
type ConfigSubscriber struct {
	client  *goredis.Client
	channel string
}

// NewConfigSubscriber creates a subscriber for channel.
func NewConfigSubscriber(client *goredis.Client, channel string) *ConfigSubscriber {
	return &ConfigSubscriber{client: client, channel: channel}
}

// Listen calls fn with every payload until ctx is done.
func (s *ConfigSubscriber) Listen(ctx context.Context, fn func(payload string)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	slog.Info("subscribed for indicator reloads", "component", "redis-config", "channel", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}
