// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package dedup implements the two interchangeable dedup backings of
// spec.md §4.7: an in-memory tracker and a duckdb-backed persistent
// tracker sharing one Tracker contract.
package dedup

import "time"

// Tracker tracks previously seen ad identifiers across one or more
// collection runs.
type Tracker interface {
	HasSeen(id string) bool
	MarkSeen(id string) error
	LastCollectionTime() (*time.Time, error)
	UpdateCollectionTime() error
	Save() error
	Load() error
	Close() error
}

// MemoryTracker is the in-memory backing: a plain set plus one
// optional timestamp. Save/Load are no-ops, per spec.md §4.7.
type MemoryTracker struct {
	seen    map[string]bool
	lastRun *time.Time
}

// NewMemoryTracker returns an empty MemoryTracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seen: make(map[string]bool)}
}

func (m *MemoryTracker) HasSeen(id string) bool { return m.seen[id] }

func (m *MemoryTracker) MarkSeen(id string) error {
	m.seen[id] = true
	return nil
}

func (m *MemoryTracker) LastCollectionTime() (*time.Time, error) {
	return m.lastRun, nil
}

func (m *MemoryTracker) UpdateCollectionTime() error {
	now := time.Now().UTC()
	m.lastRun = &now
	return nil
}

func (m *MemoryTracker) Save() error { return nil }
func (m *MemoryTracker) Load() error { return nil }
func (m *MemoryTracker) Close() error { return nil }
