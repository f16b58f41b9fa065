// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/adcollector/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS seen_ads (
	id TEXT PRIMARY KEY,
	first_seen TIMESTAMP
);
CREATE TABLE IF NOT EXISTS collection_runs (
	run_at TIMESTAMP
);
`

// PersistentTracker is the duckdb-backed Tracker from spec.md §4.7 and
// §6's persisted-state section: one embedded database file holding
// seen_ads and collection_runs. HasSeen reads an in-memory cache that
// Load rebuilds from the store; writes are committed to the store
// immediately, so Save has nothing to flush. Follows the teacher's
// connection/schema conventions in internal/database.
type PersistentTracker struct {
	conn *sql.DB
	seen map[string]bool
}

// NewPersistentTracker opens (creating if necessary) the duckdb file
// at path and ensures the schema exists.
func NewPersistentTracker(path string) (*PersistentTracker, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("dedup: create directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("dedup: open %s: %w", path, err)
	}
	if _, err := conn.ExecContext(context.Background(), schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dedup: create schema: %w", err)
	}

	t := &PersistentTracker{conn: conn, seen: make(map[string]bool)}
	if err := t.Load(); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *PersistentTracker) HasSeen(id string) bool { return t.seen[id] }

// MarkSeen records id both in the in-memory cache and the backing
// store immediately; there is no deferred-write batching since the
// volumes involved (ads per collection run) do not warrant it.
func (t *PersistentTracker) MarkSeen(id string) error {
	if t.seen[id] {
		return nil
	}
	_, err := t.conn.ExecContext(context.Background(),
		`INSERT INTO seen_ads (id, first_seen) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("dedup: mark seen %s: %w", id, err)
	}
	t.seen[id] = true
	return nil
}

func (t *PersistentTracker) LastCollectionTime() (*time.Time, error) {
	row := t.conn.QueryRowContext(context.Background(), `SELECT MAX(run_at) FROM collection_runs`)
	var ts sql.NullTime
	if err := row.Scan(&ts); err != nil {
		return nil, fmt.Errorf("dedup: last collection time: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	v := ts.Time.UTC()
	return &v, nil
}

func (t *PersistentTracker) UpdateCollectionTime() error {
	_, err := t.conn.ExecContext(context.Background(),
		`INSERT INTO collection_runs (run_at) VALUES (?)`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("dedup: update collection time: %w", err)
	}
	return nil
}

// Save is a no-op: MarkSeen and UpdateCollectionTime commit
// immediately rather than buffering, so there is nothing pending to
// flush.
func (t *PersistentTracker) Save() error { return nil }

// Load rebuilds the in-memory seen-id cache from the store.
func (t *PersistentTracker) Load() error {
	rows, err := t.conn.QueryContext(context.Background(), `SELECT id FROM seen_ads`)
	if err != nil {
		return fmt.Errorf("dedup: load seen ads: %w", err)
	}
	defer rows.Close()

	fresh := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("dedup: scan seen ad: %w", err)
		}
		fresh[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("dedup: iterate seen ads: %w", err)
	}
	t.seen = fresh
	return nil
}

// Close flushes nothing further (writes are already committed) and
// releases the underlying connection.
func (t *PersistentTracker) Close() error {
	if err := t.conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("dedup: error closing persistent tracker")
		return err
	}
	return nil
}
