// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Command collector is a thin example wiring around the adcollector
// library: it loads configuration, constructs a Collector, runs one
// query, and writes each collected ad to stdout as a JSON line. It is
// not a general-purpose CLI or output-writer; see DESIGN.md for that
// scope boundary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/adcollector/internal/adlib"
	"github.com/tomtom215/adcollector/internal/collector"
	"github.com/tomtom215/adcollector/internal/config"
	"github.com/tomtom215/adcollector/internal/dedup"
	"github.com/tomtom215/adcollector/internal/events"
	"github.com/tomtom215/adcollector/internal/filter"
	"github.com/tomtom215/adcollector/internal/fingerprint"
	"github.com/tomtom215/adcollector/internal/logging"
	"github.com/tomtom215/adcollector/internal/pipeline"
	"github.com/tomtom215/adcollector/internal/proxypool"
	"github.com/tomtom215/adcollector/internal/session"
)

func main() {
	keywords := flag.String("keywords", "", "search keywords")
	country := flag.String("country", "", "ISO 3166-1 alpha-2 country code, overrides config default")
	maxResults := flag.Int("max-results", 0, "stop after this many ads (0 = unbounded)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "adcollector: config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	c, closeFn, err := build(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("adcollector: build failed")
		os.Exit(1)
	}
	defer closeFn()

	c.On(events.PageFetched, func(ev events.Event) {
		logging.Info().Interface("payload", ev.Payload).Msg("page fetched")
	})
	c.On(events.ErrorOccurred, func(ev events.Event) {
		logging.Warn().Interface("payload", ev.Payload).Msg("error during collection")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := adlib.Query{
		Country:    cfg.Query.Country,
		Keywords:   *keywords,
		AdType:     cfg.Query.AdType,
		MaxResults: *maxResults,
	}
	if *country != "" {
		q.Country = *country
	}

	enc := json.NewEncoder(os.Stdout)
	for res := range c.CollectChan(ctx, q) {
		if res.Err != nil {
			logging.Error().Err(res.Err).Msg("adcollector: collection stopped")
			os.Exit(1)
		}
		if err := enc.Encode(res.Ad); err != nil {
			logging.Error().Err(err).Msg("adcollector: failed to write ad")
		}
	}
}

// build assembles a Collector from cfg, returning a cleanup func that
// must run before the process exits so a persistent dedup store flushes.
func build(cfg *config.Config) (*collector.Collector, func(), error) {
	var pool *proxypool.Pool
	var ep *proxypool.Endpoint
	switch {
	case cfg.Proxy.EndpointsFile != "":
		p, err := proxypool.FromFile(cfg.Proxy.EndpointsFile, cfg.Proxy.MaxFailures, cfg.Proxy.CooldownSeconds)
		if err != nil {
			return nil, nil, fmt.Errorf("proxy pool: %w", err)
		}
		pool = p
	case len(cfg.Proxy.Endpoints) > 0:
		p, err := proxypool.New(cfg.Proxy.Endpoints, cfg.Proxy.MaxFailures, cfg.Proxy.CooldownSeconds)
		if err != nil {
			return nil, nil, fmt.Errorf("proxy pool: %w", err)
		}
		pool = p
	}
	if pool != nil {
		if next, err := pool.Next(); err == nil {
			ep = next
		}
	}

	var tracker dedup.Tracker
	if cfg.Dedup.Persistent {
		t, err := dedup.NewPersistentTracker(cfg.Dedup.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("dedup store: %w", err)
		}
		tracker = t
	}

	c := collector.New(collector.Options{
		Fetcher:     session.HTTPFetcher{Country: cfg.Query.Country, AdType: cfg.Query.AdType},
		Fingerprint: fingerprint.NewTableSource(nil).Generate(),
		Proxy:       ep,
		Pool:        pool,
		Dedup:       tracker,
		Filter:      filter.Config{}.Predicate(),
		PipelineCfg: pipeline.Config{
			RateLimitDelay: time.Duration(cfg.RateLimit.DelaySeconds * float64(time.Second)),
			Jitter:         time.Duration(cfg.RateLimit.JitterSeconds * float64(time.Second)),
			Timeout:        time.Duration(cfg.RateLimit.TimeoutSeconds) * time.Second,
			MaxRetries:     cfg.RateLimit.MaxRetries,
		},
		MaxRefreshAttempts: cfg.Session.MaxRefreshAttempts,
	})

	return c, func() {
		if err := c.Close(); err != nil {
			logging.Warn().Err(err).Msg("adcollector: close failed")
		}
	}, nil
}
