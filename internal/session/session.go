// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package session implements the bootstrap state machine of spec.md
// §4.2 and the staleness/refresh-failure accounting of §3. A Session
// binds exactly one fingerprint bundle, one proxy endpoint, one cookie
// jar, and one token store for its lifetime.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/tomtom215/adcollector/internal/fingerprint"
	"github.com/tomtom215/adcollector/internal/proxypool"
	"github.com/tomtom215/adcollector/internal/tokenstore"
)

// MaxSessionAge is the staleness threshold from spec.md §4.3.
const MaxSessionAge = 30 * time.Minute

// ErrAuthenticationFailed is returned when bootstrap or refresh cannot
// obtain a working lsd after one challenge round.
var ErrAuthenticationFailed = errors.New("session: authentication failed")

// ErrSessionExpired is returned once consecutive refresh failures
// exceed the configured cap.
var ErrSessionExpired = errors.New("session: expired, consecutive refresh failures exceeded cap")

// state is the explicit bootstrap state tag, per design-notes §9's
// "state machine concentration" requirement.
type state int

const (
	stateUninitialized state = iota
	stateChallenge
	stateExtract
	stateReady
)

// RefreshReason distinguishes why a refresh was triggered, carried on
// session_refreshed events.
type RefreshReason string

const (
	RefreshReasonStale          RefreshReason = "stale"
	RefreshReasonAuthentication RefreshReason = "authentication_failed"
)

// LandingFetcher performs the landing-page GET (and the one challenge
// POST, if needed) and returns the response body. It is the only
// network seam a Session depends on, so tests can substitute a fake.
type LandingFetcher interface {
	FetchLanding(ctx context.Context, fp fingerprint.Bundle, ep *proxypool.Endpoint, jar *cookiejar.Jar) (body string, statusCode int, err error)
	SubmitChallenge(ctx context.Context, form string, fp fingerprint.Bundle, ep *proxypool.Endpoint, jar *cookiejar.Jar) error
}

// Session is one-per-collector-instance state, per spec.md §3.
type Session struct {
	Fingerprint fingerprint.Bundle
	Proxy       *proxypool.Endpoint
	Jar         *cookiejar.Jar
	Tokens      *tokenstore.Store

	createdAt              time.Time
	initialized            bool
	consecutiveRefreshFail int
	maxRefreshAttempts     int

	fetcher LandingFetcher
	state   state
}

// New constructs an uninitialized Session bound to fp and ep.
// maxRefreshAttempts is the consecutive-refresh-failure cap from §6
// (default 3 if <= 0).
func New(fetcher LandingFetcher, fp fingerprint.Bundle, ep *proxypool.Endpoint, maxRefreshAttempts int) *Session {
	if maxRefreshAttempts <= 0 {
		maxRefreshAttempts = 3
	}
	jar, _ := cookiejar.New(nil)
	return &Session{
		Fingerprint:        fp,
		Proxy:              ep,
		Jar:                jar,
		Tokens:             tokenstore.New(),
		fetcher:            fetcher,
		maxRefreshAttempts: maxRefreshAttempts,
		state:              stateUninitialized,
	}
}

// Stale reports whether the session has exceeded MaxSessionAge.
func (s *Session) Stale() bool {
	return s.initialized && time.Since(s.createdAt) > MaxSessionAge
}

// Ready reports whether the session has completed bootstrap and is not
// past its refresh-failure cap.
func (s *Session) Ready() bool {
	return s.initialized && s.state == stateReady
}

// Bootstrap drives Uninitialized → Challenge → Extract → Ready exactly
// as spec.md §4.2 describes. A challenge round is attempted at most
// once; failure to extract a non-empty lsd afterward surfaces
// ErrAuthenticationFailed.
func (s *Session) Bootstrap(ctx context.Context) error {
	s.state = stateUninitialized
	body, status, err := s.fetcher.FetchLanding(ctx, s.Fingerprint, s.Proxy, s.Jar)
	if err != nil {
		return fmt.Errorf("%w: landing fetch: %v", ErrAuthenticationFailed, err)
	}

	if status == http.StatusForbidden || hasChallengeMarker(body) {
		s.state = stateChallenge
		form, ok := extractChallengeForm(body)
		if !ok {
			return fmt.Errorf("%w: unrecognized challenge response", ErrAuthenticationFailed)
		}
		if err := s.fetcher.SubmitChallenge(ctx, form, s.Fingerprint, s.Proxy, s.Jar); err != nil {
			return fmt.Errorf("%w: challenge submission: %v", ErrAuthenticationFailed, err)
		}
		body, _, err = s.fetcher.FetchLanding(ctx, s.Fingerprint, s.Proxy, s.Jar)
		if err != nil {
			return fmt.Errorf("%w: post-challenge landing fetch: %v", ErrAuthenticationFailed, err)
		}
	}

	s.state = stateExtract
	s.Tokens = tokenstore.New()
	s.Tokens.Extract(body)
	if !s.Tokens.Ready() {
		return fmt.Errorf("%w: lsd not present after extraction", ErrAuthenticationFailed)
	}

	s.state = stateReady
	s.initialized = true
	s.createdAt = time.Now()
	s.consecutiveRefreshFail = 0
	return nil
}

// Refresh re-runs Bootstrap, tracking consecutive failures against
// maxRefreshAttempts. Once the cap is exceeded it returns
// ErrSessionExpired instead of attempting another bootstrap.
func (s *Session) Refresh(ctx context.Context, reason RefreshReason) error {
	if s.consecutiveRefreshFail >= s.maxRefreshAttempts {
		return ErrSessionExpired
	}
	if err := s.Bootstrap(ctx); err != nil {
		s.consecutiveRefreshFail++
		if s.consecutiveRefreshFail >= s.maxRefreshAttempts {
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return err
	}
	return nil
}

// hasChallengeMarker recognizes two verification-challenge markers
// ("checkpoint/block" and "__fb_challenge_form__"). Only the latter
// carries a form extractChallengeForm can submit; any other challenge
// falls through to AuthenticationFailed.
func hasChallengeMarker(body string) bool {
	return strings.Contains(body, "checkpoint/block") || strings.Contains(body, "__fb_challenge_form__")
}

// extractChallengeForm pulls the URL-encoded form embedded in the
// challenge marker. Only the one documented marker shape is supported.
func extractChallengeForm(body string) (string, bool) {
	const marker = `__fb_challenge_form__":"`
	i := strings.Index(body, marker)
	if i < 0 {
		return "", false
	}
	rest := body[i+len(marker):]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
