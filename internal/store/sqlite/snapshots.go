package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *Store) Name() string { return "sqlite" }

// SaveSnapshotJSON appends a snapshot and prunes all but the newest ones.
func (s *Store) SaveSnapshotJSON(ctx context.Context, data []byte) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO indicator_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM indicator_snapshots
		WHERE id NOT IN (SELECT id FROM indicator_snapshots ORDER BY id DESC LIMIT ?)
	`, s.keep)
	if err != nil {
		s.log.Warn("prune snapshots", "error", err)
	}
	return nil
}

// ReadLatestSnapshotJSON returns nil, nil when no snapshot was saved yet.
func (s *Store) ReadLatestSnapshotJSON(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM indicator_snapshots ORDER BY id DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// SnapshotCount returns how many snapshots are retained.
func (s *Store) SnapshotCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indicator_snapshots`).Scan(&n)
	return n, err
}
