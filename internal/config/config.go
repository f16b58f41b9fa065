// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package config loads the collector's configuration via koanf v2:
// defaults struct, then an optional YAML file, then environment
// variables, exactly in that precedence order, matching the teacher's
// config-loading layering.
package config

// Config holds every construction-time option enumerated in spec.md
// §6, plus the dedup-store path and query defaults needed to drive
// cmd/collector's example wiring.
type Config struct {
	Proxy       ProxyConfig `koanf:"proxy"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
	Session     SessionConfig   `koanf:"session"`
	Dedup       DedupConfig     `koanf:"dedup"`
	Query       QueryDefaults   `koanf:"query"`
	Logging     LoggingConfig   `koanf:"logging"`
}

// ProxyConfig declares the proxy pool's construction inputs.
type ProxyConfig struct {
	Endpoints       []string `koanf:"endpoints"`
	EndpointsFile   string   `koanf:"endpoints_file"`
	MaxFailures     int      `koanf:"max_failures" validate:"gte=0"`
	CooldownSeconds int      `koanf:"cooldown_seconds" validate:"gte=0"`
}

// RateLimitConfig holds the pipeline's pacing and retry discipline,
// per spec.md §4.3/§6.
type RateLimitConfig struct {
	DelaySeconds   float64       `koanf:"delay_seconds" validate:"gte=0"`
	JitterSeconds  float64       `koanf:"jitter_seconds" validate:"gte=0"`
	TimeoutSeconds int           `koanf:"timeout_seconds" validate:"gte=1"`
	MaxRetries     int           `koanf:"max_retries" validate:"gte=0"`
}

// SessionConfig bounds session refresh behavior, per spec.md §3/§6.
type SessionConfig struct {
	MaxRefreshAttempts int `koanf:"max_refresh_attempts" validate:"gte=1"`
}

// DedupConfig selects and configures the dedup backing, per spec.md
// §4.7/§6.
type DedupConfig struct {
	Persistent bool   `koanf:"persistent"`
	StorePath  string `koanf:"store_path"`
}

// QueryDefaults supplies the country/ad_type values cmd/collector
// uses when none are given on its command line.
type QueryDefaults struct {
	Country string `koanf:"country" validate:"len=2"`
	AdType  string `koanf:"ad_type"`
}

// LoggingConfig mirrors internal/logging.Config's fields for
// environment/file-driven configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns the built-in defaults applied before the
// config file and environment overrides, per spec.md §6's documented
// defaults.
func defaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			MaxFailures:     3,
			CooldownSeconds: 300,
		},
		RateLimit: RateLimitConfig{
			DelaySeconds:   2.0,
			JitterSeconds:  1.0,
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Session: SessionConfig{
			MaxRefreshAttempts: 3,
		},
		Dedup: DedupConfig{
			Persistent: false,
			StorePath:  "collector_dedup.duckdb",
		},
		Query: QueryDefaults{
			Country: "US",
			AdType:  "all",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
