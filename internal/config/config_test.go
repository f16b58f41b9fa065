// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package config

import "testing"

func TestLoad_AppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Proxy.MaxFailures != 3 {
		t.Errorf("Proxy.MaxFailures = %d, want 3", cfg.Proxy.MaxFailures)
	}
	if cfg.RateLimit.DelaySeconds != 2.0 {
		t.Errorf("RateLimit.DelaySeconds = %v, want 2.0", cfg.RateLimit.DelaySeconds)
	}
	if cfg.Query.Country != "US" {
		t.Errorf("Query.Country = %q, want US", cfg.Query.Country)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("ADCOLLECTOR_RATE_LIMIT_MAX_RETRIES", "7")
	t.Setenv("ADCOLLECTOR_QUERY_COUNTRY", "GB")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimit.MaxRetries != 7 {
		t.Errorf("RateLimit.MaxRetries = %d, want 7", cfg.RateLimit.MaxRetries)
	}
	if cfg.Query.Country != "GB" {
		t.Errorf("Query.Country = %q, want GB", cfg.Query.Country)
	}
}

func TestLoad_ValidationRejectsBadCountryCode(t *testing.T) {
	t.Setenv("ADCOLLECTOR_QUERY_COUNTRY", "USA")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for a 3-letter country code")
	}
}

func TestEnvKeyToPath(t *testing.T) {
	cases := map[string]string{
		"RATE_LIMIT_MAX_RETRIES": "rate_limit.max_retries",
		"QUERY_COUNTRY":          "query.country",
		"PROXY_MAX_FAILURES":     "proxy.max_failures",
		"DEDUP_STORE_PATH":       "dedup.store_path",
	}
	for in, want := range cases {
		if got := envKeyToPath(in); got != want {
			t.Errorf("envKeyToPath(%q) = %q, want %q", in, got, want)
		}
	}
}
