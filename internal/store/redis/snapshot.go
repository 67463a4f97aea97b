package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// SnapshotStore keeps the latest engine snapshot under one key.
type SnapshotStore struct {
	client  *goredis.Client
	key     string
	ttl     time.Duration
	breaker *Breaker
}

// NewSnapshotStore creates a store. A zero ttl keeps the key forever; the
// breaker may be nil.
func NewSnapshotStore(client *goredis.Client, key string, ttl time.Duration, breaker *Breaker) *SnapshotStore {
	if key == "" {
		key = "engine:snapshot"
	}
	return &SnapshotStore{client: client, key: key, ttl: ttl, breaker: breaker}
}

func (s *SnapshotStore) Name() string { return "redis" }

// SaveSnapshotJSON overwrites the snapshot key.
func (s *SnapshotStore) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	return guard(s.breaker, func() error {
		return s.client.Set(ctx, s.key, data, s.ttl).Err()
	})
}

// ReadLatestSnapshotJSON returns nil, nil when the key does not exist.
func (s *SnapshotStore) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	var data []byte
	err := guard(s.breaker, func() error {
		b, err := s.client.Get(ctx, s.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		data = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
