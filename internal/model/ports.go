package model

import "context"

// ── Port Interfaces ──
// These decouple the engine service from Redis/SQLite implementations.

// BarSource delivers bars in arrival order.
type BarSource interface {
	// ConsumeBars reads bars and sends them to out.
	// Blocks until ctx is cancelled or the source fails.
	ConsumeBars(ctx context.Context, out chan<- Bar) error

	// Close releases underlying resources.
	Close() error
}

// ResultWriter persists or publishes indicator results.
type ResultWriter interface {
	// WriteResults writes a batch of results produced by one bar.
	WriteResults(ctx context.Context, results []IndicatorResult) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes engine snapshots as raw JSON.
// Using []byte avoids a model→indicator→model import cycle.
type SnapshotStore interface {
	// Name identifies the store in logs and metrics ("redis", "sqlite").
	Name() string

	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(ctx context.Context, data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error)
}
