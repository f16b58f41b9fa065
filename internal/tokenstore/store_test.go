// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package tokenstore

import "testing"

func TestExtract_FindsPrimaryPattern(t *testing.T) {
	body := `{"require":[["LSD",[],{"token":"abc123lsd"}]]}`
	s := New()
	s.Extract(body)
	if got := s.Get(KeyLSD); got != "abc123lsd" {
		t.Fatalf("expected lsd extracted, got %q", got)
	}
	if !s.Ready() {
		t.Fatal("expected store ready once lsd is populated")
	}
}

func TestExtract_FallsBackThroughAliases(t *testing.T) {
	body := `"lsd":"fallbacklsd"`
	s := New()
	s.Extract(body)
	if got := s.Get(KeyLSD); got != "fallbacklsd" {
		t.Fatalf("expected second alias to match, got %q", got)
	}
}

func TestExtract_UsesDefaultsWhenAbsent(t *testing.T) {
	s := New()
	s.Extract(`"lsd":"x"`)
	if got := s.Get(KeyRev); got != Defaults[KeyRev] {
		t.Fatalf("expected __rev default, got %q", got)
	}
	if got := s.Get(DocAdSearch); got != Defaults[DocAdSearch] {
		t.Fatalf("expected doc_ad_search default, got %q", got)
	}
}

func TestExtract_DerivesJazoestFromLSD(t *testing.T) {
	s := New()
	s.Extract(`"lsd":"AVq"`)
	want := deriveJazoest("AVq")
	if got := s.Get(KeyJazoest); got != want {
		t.Fatalf("expected derived jazoest %q, got %q", want, got)
	}
}

func TestReady_FalseWithoutLSD(t *testing.T) {
	s := New()
	if s.Ready() {
		t.Fatal("expected not ready before any extraction")
	}
}

func TestAll_ReturnsIndependentCopy(t *testing.T) {
	s := New()
	s.Set(KeyLSD, "x")
	snapshot := s.All()
	snapshot[KeyLSD] = "mutated"
	if got := s.Get(KeyLSD); got != "x" {
		t.Fatalf("expected All() copy not to alias internal state, got %q", got)
	}
}
