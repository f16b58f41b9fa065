// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package pipeline issues GraphQL requests against the remote ad
// library service and classifies every response into one of the
// outcomes enumerated in spec.md §4.3: success, rate-limit, a
// 403-triggered session refresh and single retry, a 5xx/network-error
// proxy-rotated retry, or a protocol error. It owns no state beyond a
// monotonic request counter, a circuit breaker, and its pacing limiter
// with a first-request flag; the session and proxy pool it mutates are
// supplied by the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/adcollector/internal/logging"
	"github.com/tomtom215/adcollector/internal/metrics"
	"github.com/tomtom215/adcollector/internal/proxypool"
	"github.com/tomtom215/adcollector/internal/session"
)

const graphQLPath = "https://www.facebook.com/api/graphql/"

// Sentinel errors per spec.md §7. Callers type-switch or errors.Is
// against these rather than inspecting HTTP status codes.
var (
	ErrRateLimited   = errors.New("pipeline: rate limited")
	ErrProtocolError = errors.New("pipeline: response did not parse as a recognized envelope")
	ErrNetworkError  = errors.New("pipeline: network or server error exhausted retries")
)

// knownRateLimitMarkers are substrings gobreaker-unrelated errors
// arrays contain when the remote service throttles a session rather
// than rejecting it outright.
var knownRateLimitMarkers = []string{"please wait", "try again later", "rate limit"}

// Config bounds the pipeline's retry and pacing discipline, per
// spec.md §4.3/§6.
type Config struct {
	RateLimitDelay time.Duration
	Jitter         time.Duration
	Timeout        time.Duration
	MaxRetries     int

	// Endpoint overrides the GraphQL URL every request is submitted to.
	// Left empty, requests go to the real remote service; tests point
	// it at an httptest.Server.
	Endpoint string

	// OnRefresh, if set, is invoked after a session refresh succeeds,
	// so a caller (the collector's event emitter) can surface a
	// session_refreshed lifecycle event without the pipeline knowing
	// anything about events.
	OnRefresh func(session.RefreshReason)

	// OnRateLimited, if set, is invoked once per rate-limited attempt
	// that is about to be retried (not on the final attempt that
	// exhausts max_retries), so a caller can surface one rate_limited
	// lifecycle event per retry without the pipeline knowing anything
	// about events.
	OnRateLimited func()
}

// Pipeline dispatches one GraphQL document at a time against a single
// Session, rotating proxies on 5xx/network failures and refreshing the
// session on 403s.
type Pipeline struct {
	cfg     Config
	client  *http.Client
	pool    *proxypool.Pool
	breaker *gobreaker.CircuitBreaker[map[string]any]
	reqSeq  uint64
	limiter *rate.Limiter
	primed  bool
}

// New constructs a Pipeline. pool may be nil when the caller has no
// proxy rotation configured; in that case 5xx/network failures retry
// against the same transport.
func New(cfg Config, pool *proxypool.Pool) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = graphQLPath
	}

	breaker := gobreaker.NewCircuitBreaker[map[string]any](gobreaker.Settings{
		Name:        "adlib-graphql",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures == counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			toName := breakerStateName(to)
			logging.Warn().Str("breaker", name).Str("from", breakerStateName(from)).Str("to", toName).Msg("pipeline circuit breaker state change")
			metrics.CircuitBreakerState.Set(metrics.StateToFloat(toName))
		},
	})

	return &Pipeline{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		pool:    pool,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1),
	}
}

// Request carries the per-call document id and GraphQL variables.
type Request struct {
	DocID     string
	Variables map[string]any
}

// Dispatch sends one GraphQL request and returns the parsed `data`
// envelope. It enforces session staleness, inter-request pacing, and
// the full outcome-classification table from spec.md §4.3.
func (p *Pipeline) Dispatch(ctx context.Context, sess *session.Session, req Request) (map[string]any, error) {
	if sess.Stale() {
		if err := sess.Refresh(ctx, session.RefreshReasonStale); err != nil {
			return nil, err
		}
		metrics.SessionRefreshes.WithLabelValues(string(session.RefreshReasonStale)).Inc()
		if p.cfg.OnRefresh != nil {
			p.cfg.OnRefresh(session.RefreshReasonStale)
		}
	}

	p.pace(ctx)

	body, err := p.doWithRetries(ctx, sess, req)
	if err != nil {
		return nil, err
	}

	data, ok := body["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing data envelope", ErrProtocolError)
	}
	return data, nil
}

// doWithRetries implements the rate-limit backoff-and-retry branch, the
// 403-refresh-retry-once branch, and the 5xx/network-error retry branch.
// send only detects a rate limit; the retry happens here. When a pool is
// configured, every attempt (including a rate-limit retry) takes the
// pool's next endpoint.
func (p *Pipeline) doWithRetries(ctx context.Context, sess *session.Session, req Request) (map[string]any, error) {
	var lastErr error
	bo := newBackoff(p.cfg.RateLimitDelay)
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		var ep *proxypool.Endpoint
		if p.pool != nil {
			var err error
			ep, err = p.pool.Next()
			if err != nil {
				return nil, err
			}
		}

		body, status, err := p.sendThroughBreaker(ctx, sess, req, ep)
		switch {
		case err == nil && status >= 200 && status < 300:
			if p.pool != nil && ep != nil {
				p.pool.MarkSuccess(ep)
			}
			return body, nil

		case errors.Is(err, ErrRateLimited):
			lastErr = err
			metrics.RateLimitHits.Inc()
			if attempt >= p.cfg.MaxRetries {
				// Exhausted: no further event, let the loop end and
				// return lastErr so the collector can terminate cleanly.
				continue
			}
			if p.cfg.OnRateLimited != nil {
				p.cfg.OnRateLimited()
			}
			wait := bo.NextBackOff()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue

		case status == http.StatusForbidden:
			if refreshErr := sess.Refresh(ctx, session.RefreshReasonAuthentication); refreshErr != nil {
				return nil, refreshErr
			}
			metrics.SessionRefreshes.WithLabelValues(string(session.RefreshReasonAuthentication)).Inc()
			if p.cfg.OnRefresh != nil {
				p.cfg.OnRefresh(session.RefreshReasonAuthentication)
			}
			retryBody, retryStatus, retryErr := p.send(ctx, sess, req, ep)
			if retryErr == nil && retryStatus >= 200 && retryStatus < 300 {
				if p.pool != nil && ep != nil {
					p.pool.MarkSuccess(ep)
				}
				return retryBody, nil
			}
			return nil, session.ErrAuthenticationFailed

		case status >= 500 || isNetworkError(err):
			lastErr = fmt.Errorf("%w: %v", ErrNetworkError, err)
			if p.pool != nil && ep != nil {
				p.pool.MarkFailure(ep)
			}
			time.Sleep(bo.NextBackOff())
			continue

		case err != nil:
			return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)

		default:
			lastErr = fmt.Errorf("unexpected status %d", status)
		}
	}
	return nil, lastErr
}

// send assembles and submits a single request, without retry logic.
// It returns the parsed JSON body (nil on non-2xx or parse failure),
// the HTTP status (0 on a transport-level failure), and an error that
// is ErrRateLimited when a rate-limit marker is detected.
func (p *Pipeline) send(ctx context.Context, sess *session.Session, req Request, ep *proxypool.Endpoint) (map[string]any, int, error) {
	form, err := p.buildForm(sess, req)
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", sess.Fingerprint.UserAgent)
	httpReq.Header.Set("x-fb-lsd", sess.Tokens.Get("lsd"))
	httpReq.Header.Set("x-fb-friendly-name", "AdLibrarySearchPaginationQuery")
	httpReq.Header.Set("sec-fetch-site", "same-origin")
	httpReq.Header.Set("__req", strconv.FormatUint(atomic.AddUint64(&p.reqSeq, 1), 36))
	for _, c := range sess.Jar.Cookies(httpReq.URL) {
		httpReq.AddCookie(c)
	}

	client := p.client
	if ep != nil {
		proxyURL, parseErr := url.Parse(ep.URL)
		if parseErr == nil {
			transport := &http.Transport{Proxy: http.ProxyURL(proxyURL)}
			client = &http.Client{Timeout: p.cfg.Timeout, Transport: transport}
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, fmt.Errorf("%w: status 429", ErrRateLimited)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, resp.StatusCode, err
	}

	if marker, found := rateLimitMarker(body); found {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s", ErrRateLimited, marker)
	}

	return body, resp.StatusCode, nil
}

// sendThroughBreaker wraps send with the circuit breaker, but only for
// the 5xx/connection-error failure class: 403s, 429s, and parse
// failures are application-level outcomes the breaker must not see as
// infrastructure failures, per spec.md's design notes on the
// 403-refresh-retry path and the breaker's intended scope.
func (p *Pipeline) sendThroughBreaker(ctx context.Context, sess *session.Session, req Request, ep *proxypool.Endpoint) (map[string]any, int, error) {
	var status int
	var sendErr error
	var body map[string]any

	_, breakerErr := p.breaker.Execute(func() (map[string]any, error) {
		body, status, sendErr = p.send(ctx, sess, req, ep)
		if status >= 500 || isNetworkError(sendErr) {
			if sendErr != nil {
				return nil, sendErr
			}
			return nil, fmt.Errorf("server error status %d", status)
		}
		return body, nil
	})

	if errors.Is(breakerErr, gobreaker.ErrOpenState) || errors.Is(breakerErr, gobreaker.ErrTooManyRequests) {
		return nil, status, fmt.Errorf("%w: circuit open", ErrNetworkError)
	}
	return body, status, sendErr
}

func (p *Pipeline) buildForm(sess *session.Session, req Request) (url.Values, error) {
	variables, err := json.Marshal(req.Variables)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding variables: %v", ErrProtocolError, err)
	}

	form := url.Values{}
	form.Set("doc_id", req.DocID)
	form.Set("variables", string(variables))
	for k, v := range sess.Tokens.All() {
		form.Set(k, v)
	}
	return form, nil
}

// pace blocks for rate_limit_delay + uniform(0, jitter) via the token
// bucket limiter, then applies a single additional human-jitter delay
// the first time it is called for this Pipeline, per spec.md §4.3.
func (p *Pipeline) pace(ctx context.Context) {
	if p.cfg.RateLimitDelay <= 0 {
		return
	}
	_ = p.limiter.Wait(ctx)
	if p.cfg.Jitter > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(p.cfg.Jitter))))
	}
	if !p.primed {
		p.primed = true
		time.Sleep(time.Duration(1500+rand.Intn(1500)) * time.Millisecond)
	}
}

// newBackoff builds a fresh exponential-backoff-with-jitter sequence
// for one doWithRetries call, seeded from rate_limit_delay per
// spec.md §4.3.
func newBackoff(base time.Duration) *backoff.ExponentialBackOff {
	if base <= 0 {
		base = time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

func rateLimitMarker(body map[string]any) (string, bool) {
	errs, ok := body["errors"].([]any)
	if !ok {
		return "", false
	}
	for _, e := range errs {
		em, ok := e.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := em["message"].(string)
		lower := strings.ToLower(msg)
		for _, marker := range knownRateLimitMarkers {
			if strings.Contains(lower, marker) {
				return msg, true
			}
		}
	}
	return "", false
}

func breakerStateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
