// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPagesFetched_Increments(t *testing.T) {
	before := testutil.ToFloat64(PagesFetched)
	PagesFetched.Inc()
	after := testutil.ToFloat64(PagesFetched)
	if after != before+1 {
		t.Fatalf("expected PagesFetched to increment by 1, got %v -> %v", before, after)
	}
}

func TestProxyFailures_LabeledByEndpoint(t *testing.T) {
	ProxyFailures.WithLabelValues("http://p1:1").Inc()
	if got := testutil.ToFloat64(ProxyFailures.WithLabelValues("http://p1:1")); got < 1 {
		t.Fatalf("expected at least 1 proxy failure recorded, got %v", got)
	}
}

func TestStateToFloat(t *testing.T) {
	cases := map[string]float64{"closed": 0, "half-open": 1, "open": 2, "unknown": 0}
	for state, want := range cases {
		if got := StateToFloat(state); got != want {
			t.Fatalf("StateToFloat(%q) = %v, want %v", state, got, want)
		}
	}
}
