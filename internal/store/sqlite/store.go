// Package sqlite persists bars, confirmed indicator results and engine
// snapshots in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

const defaultKeepSnapshots = 10

// Config configures the store.
type Config struct {
	DBPath        string // e.g. "data/taengine.db"
	KeepSnapshots int    // snapshots retained after each save
}

// Store is a SQLite-backed bar archive, result sink and snapshot store.
// All writes go through one connection.
type Store struct {
	db   *sql.DB
	keep int
	log  *slog.Logger
}

// Open opens or creates the database in WAL mode and applies the schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	keep := cfg.KeepSnapshots
	if keep <= 0 {
		keep = defaultKeepSnapshots
	}
	log := slog.Default().With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Store{db: db, keep: keep, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			series TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   TEXT    NOT NULL,
			high   TEXT    NOT NULL,
			low    TEXT    NOT NULL,
			close  TEXT    NOT NULL,
			volume TEXT    NOT NULL,
			PRIMARY KEY (series, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_results (
			name   TEXT    NOT NULL,
			series TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			phase  TEXT    NOT NULL,
			vals   TEXT    NOT NULL,
			PRIMARY KEY (name, series, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// DB returns the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// inTx runs fn in a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}
