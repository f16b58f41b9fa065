// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package metrics provides Prometheus metrics collection for the
// collector.
//
// Metrics are exposed at /metrics in Prometheus text format by
// whatever HTTP server cmd/collector's caller mounts; this package
// only registers and updates the collectors.
package metrics
