// Package checkpoint persists indicator engine snapshots and restores the
// engine at startup following a priority chain of stores.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"taengine/internal/indicator"
	"taengine/internal/model"
)

// Store saves and loads engine snapshots.
type Store interface {
	Name() string
	Save(ctx context.Context, snap *indicator.EngineSnapshot) error
	// Load returns nil, nil when no snapshot exists.
	Load(ctx context.Context) (*indicator.EngineSnapshot, error)
}

// JSONStore adapts a raw model.SnapshotStore to Store by encoding
// snapshots as JSON.
type JSONStore struct {
	raw model.SnapshotStore
}

// NewJSONStore wraps a raw snapshot store.
func NewJSONStore(raw model.SnapshotStore) *JSONStore {
	return &JSONStore{raw: raw}
}

func (s *JSONStore) Name() string { return s.raw.Name() }

func (s *JSONStore) Save(ctx context.Context, snap *indicator.EngineSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.raw.SaveSnapshotJSON(ctx, data)
}

func (s *JSONStore) Load(ctx context.Context) (*indicator.EngineSnapshot, error) {
	data, err := s.raw.ReadLatestSnapshotJSON(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	var snap indicator.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", indicator.ErrSnapshotCorrupt, s.raw.Name(), err)
	}
	return &snap, nil
}
