// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package dedup

import "testing"

func TestMemoryTracker_MarkThenHasSeen(t *testing.T) {
	tr := NewMemoryTracker()
	if tr.HasSeen("A1") {
		t.Fatal("expected unseen before MarkSeen")
	}
	if err := tr.MarkSeen("A1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.HasSeen("A1") {
		t.Fatal("expected seen after MarkSeen")
	}
}

func TestMemoryTracker_LastCollectionTimeNilInitially(t *testing.T) {
	tr := NewMemoryTracker()
	ts, err := tr.LastCollectionTime()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != nil {
		t.Fatal("expected nil last-collection time before any run")
	}
	if err := tr.UpdateCollectionTime(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts, err = tr.LastCollectionTime()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts == nil {
		t.Fatal("expected non-nil last-collection time after update")
	}
}
