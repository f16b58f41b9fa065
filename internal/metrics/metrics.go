// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_pages_fetched_total",
			Help: "Total number of GraphQL pages fetched.",
		},
	)

	AdsCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_ads_collected_total",
			Help: "Total number of ad records yielded after dedup and filtering.",
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_proxy_failures_total",
			Help: "Total number of proxy endpoint failures.",
		},
		[]string{"endpoint"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_rate_limit_hits_total",
			Help: "Total number of rate-limit responses observed.",
		},
	)

	SessionRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_session_refreshes_total",
			Help: "Total number of session refreshes, by reason.",
		},
		[]string{"reason"},
	)
)

// StateToFloat maps a gobreaker state name to the numeric value
// CircuitBreakerState reports, matching the 0/1/2 convention
// documented on the gauge.
func StateToFloat(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
