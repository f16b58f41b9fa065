// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package proxypool maintains a ring of proxy endpoints with per-endpoint
// failure tracking, dead-state, and cooldown revival, per spec.md §4.1.
// A Pool may be shared across multiple collectors; every mutating
// operation is serialized behind a single mutex.
package proxypool

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/adcollector/internal/logging"
)

// ErrNoEndpointsConfigured is returned by Next when the pool is empty.
var ErrNoEndpointsConfigured = errors.New("proxypool: no endpoints configured")

// InvalidEndpointError is returned when an endpoint string cannot be
// normalized into a canonical URL per spec.md §4.1's accepted grammars.
type InvalidEndpointError struct {
	Raw string
	Err error
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("proxypool: invalid endpoint %q: %v", e.Raw, e.Err)
}

func (e *InvalidEndpointError) Unwrap() error { return e.Err }

// Endpoint is the proxy endpoint record from spec.md §3.
type Endpoint struct {
	URL              string
	ConsecutiveFails int
	DeadSince        *time.Time
	CooldownSeconds  int
}

func (e *Endpoint) eligible(now time.Time) bool {
	if e.DeadSince == nil {
		return true
	}
	return now.Sub(*e.DeadSince) > time.Duration(e.CooldownSeconds)*time.Second
}

// Pool is a round-robin ring of Endpoints with failure tracking.
type Pool struct {
	mu          sync.Mutex
	endpoints   []*Endpoint
	cursor      int
	maxFailures int
	cooldown    int
}

// New constructs a Pool from a list of raw endpoint strings. maxFailures
// is the consecutive-failure threshold that marks an endpoint dead;
// cooldownSeconds is how long a dead endpoint stays excluded before it is
// eligible again. Malformed entries make New fail fast with
// *InvalidEndpointError, matching spec.md: proxy input is validated at
// construction, not during collection.
func New(raw []string, maxFailures, cooldownSeconds int) (*Pool, error) {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldownSeconds <= 0 {
		cooldownSeconds = 300
	}
	p := &Pool{
		maxFailures: maxFailures,
		cooldown:    cooldownSeconds,
	}
	for _, r := range raw {
		canon, err := Normalize(r)
		if err != nil {
			return nil, &InvalidEndpointError{Raw: r, Err: err}
		}
		p.endpoints = append(p.endpoints, &Endpoint{URL: canon, CooldownSeconds: cooldownSeconds})
	}
	return p, nil
}

// FromFile parses one endpoint per line, ignoring blank and
// `#`-prefixed lines, per spec.md §4.1.
func FromFile(path string, maxFailures, cooldownSeconds int) (*Pool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proxypool: open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxypool: read %s: %w", path, err)
	}
	return New(lines, maxFailures, cooldownSeconds)
}

// Next returns the next eligible endpoint in round-robin order. If every
// endpoint is dead and still in cooldown, it returns the one closest to
// revival (oldest dead-since) rather than erroring, per spec.md §4.1.
// Next leaves the cursor just past the endpoint it returned, skipping
// over ineligible ones; in the all-dead fallback it advances one step.
func (p *Pool) Next() (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return nil, ErrNoEndpointsConfigured
	}

	now := time.Now()
	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if p.endpoints[idx].eligible(now) {
			p.cursor = (idx + 1) % n
			return p.endpoints[idx], nil
		}
	}

	// Everything is dead and in cooldown: fall back to the one closest
	// to revival.
	best := p.endpoints[p.cursor%n]
	for _, ep := range p.endpoints {
		if ep.DeadSince != nil && best.DeadSince != nil && ep.DeadSince.Before(*best.DeadSince) {
			best = ep
		}
	}
	p.cursor = (p.cursor + 1) % n
	return best, nil
}

// MarkSuccess resets the endpoint's failure counter and clears its
// dead-since marker, restoring it to eligible state.
func (p *Pool) MarkSuccess(ep *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.ConsecutiveFails = 0
	ep.DeadSince = nil
}

// MarkFailure increments the endpoint's failure counter; once it reaches
// maxFailures the endpoint is marked dead-since now.
func (p *Pool) MarkFailure(ep *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep.ConsecutiveFails++
	if ep.ConsecutiveFails >= p.maxFailures && ep.DeadSince == nil {
		now := time.Now()
		ep.DeadSince = &now
		logging.Warn().Str("endpoint", redact(ep.URL)).Int("failures", ep.ConsecutiveFails).Msg("proxy endpoint marked dead")
	}
}

// Reset clears all failure counters and dead-state on every endpoint.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		ep.ConsecutiveFails = 0
		ep.DeadSince = nil
	}
}

// Len reports the number of configured endpoints.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// redact strips embedded credentials before logging an endpoint URL.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	u.User = nil
	return u.String()
}
