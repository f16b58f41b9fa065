// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/adcollector/internal/adlib"
	"github.com/tomtom215/adcollector/internal/dedup"
	"github.com/tomtom215/adcollector/internal/events"
	"github.com/tomtom215/adcollector/internal/filter"
	"github.com/tomtom215/adcollector/internal/fingerprint"
	"github.com/tomtom215/adcollector/internal/pipeline"
	"github.com/tomtom215/adcollector/internal/proxypool"
	"github.com/tomtom215/adcollector/internal/session"
)

const landingBody = `"lsd":"abc123def"`

func newCollector(t *testing.T, graphqlURL string, opts Options) *Collector {
	t.Helper()
	if opts.Fingerprint == (fingerprint.Bundle{}) {
		opts.Fingerprint = fingerprint.NewTableSource(nil).Generate()
	}
	opts.PipelineCfg.Endpoint = graphqlURL
	if opts.PipelineCfg.Timeout == 0 {
		opts.PipelineCfg.Timeout = 5 * time.Second
	}
	if opts.PipelineCfg.MaxRetries == 0 {
		opts.PipelineCfg.MaxRetries = 2
	}
	return New(opts)
}

// collectAll drains an iterator into a slice, returning the trailing
// error (if any) the way a caller ranging over Collect would observe it.
func collectAll(seq func(func(adlib.Ad, error) bool)) ([]adlib.Ad, error) {
	var ads []adlib.Ad
	var lastErr error
	seq(func(ad adlib.Ad, err error) bool {
		if err != nil {
			lastErr = err
			return false
		}
		ads = append(ads, ad)
		return true
	})
	return ads, lastErr
}

func page(records []map[string]any, hasNext bool, cursor string) map[string]any {
	edges := make([]any, 0, len(records))
	for _, r := range records {
		edges = append(edges, map[string]any{"node": r})
	}
	return map[string]any{
		"data": map[string]any{
			"search_results_connection": map[string]any{
				"edges": edges,
				"page_info": map[string]any{
					"has_next_page": hasNext,
					"end_cursor":    cursor,
				},
			},
		},
	}
}

func adRecord(id string) map[string]any {
	return map[string]any{"ad_archive_id": id, "is_active": true}
}

// scenario 1: a single page with one ad yields cleanly and finishes.
func TestCollect_HappyPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(landingBody)) })
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(page([]map[string]any{adRecord("A1")}, false, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := fetcherFor(srv.URL)
	c := newCollector(t, srv.URL+"/graphql", Options{Fetcher: fetcher})
	defer c.Close()

	var finished bool
	c.On(events.CollectionFinished, func(events.Event) { finished = true })

	got, err := collectAll(c.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "A1" {
		t.Fatalf("expected one ad A1, got %+v", got)
	}
	if !finished {
		t.Fatal("expected a collection_finished event")
	}
}

// scenario 2: a single 403 triggers exactly one session refresh and the
// retried request succeeds without propagating an error.
func TestCollect_Single403TriggersOneRefreshThenSucceeds(t *testing.T) {
	var graphqlCalls, landingCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&landingCalls, 1)
		w.Write([]byte(landingBody))
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&graphqlCalls, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(page([]map[string]any{adRecord("A1")}, false, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := fetcherFor(srv.URL)
	c := newCollector(t, srv.URL+"/graphql", Options{Fetcher: fetcher})
	defer c.Close()

	var refreshes int32
	c.On(events.SessionRefreshed, func(events.Event) { atomic.AddInt32(&refreshes, 1) })

	got, err := collectAll(c.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("unexpected error propagated after recovered 403: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the retried page to still yield its ad, got %+v", got)
	}
	if refreshes != 1 {
		t.Fatalf("expected exactly one session_refreshed event, got %d", refreshes)
	}
}

// scenario 3: a persistent dedup tracker excludes ads already seen in a
// prior run, even across separate Collector instances.
func TestCollect_DedupAcrossRuns(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "dedup.duckdb")

	var servedRun int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(landingBody)) })
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&servedRun) == 1 {
			_ = json.NewEncoder(w).Encode(page([]map[string]any{adRecord("A1"), adRecord("A2")}, false, ""))
			return
		}
		_ = json.NewEncoder(w).Encode(page([]map[string]any{adRecord("A2"), adRecord("A3")}, false, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher := fetcherFor(srv.URL)

	tracker1, err := dedup.NewPersistentTracker(storePath)
	if err != nil {
		t.Fatalf("new persistent tracker: %v", err)
	}
	atomic.StoreInt32(&servedRun, 1)
	c1 := newCollector(t, srv.URL+"/graphql", Options{Fetcher: fetcher, Dedup: tracker1})
	run1Ads, err := collectAll(c1.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("run1: %v", err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("close run1: %v", err)
	}
	var run1 []string
	for _, ad := range run1Ads {
		run1 = append(run1, ad.ID)
	}
	if len(run1) != 2 {
		t.Fatalf("run1 expected [A1 A2], got %v", run1)
	}

	atomic.StoreInt32(&servedRun, 2)
	tracker2, err := dedup.NewPersistentTracker(storePath)
	if err != nil {
		t.Fatalf("reopen persistent tracker: %v", err)
	}
	c2 := newCollector(t, srv.URL+"/graphql", Options{Fetcher: fetcher, Dedup: tracker2})
	defer c2.Close()
	run2Ads, err := collectAll(c2.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("run2: %v", err)
	}
	if len(run2Ads) != 1 || run2Ads[0].ID != "A3" {
		t.Fatalf("run2 expected only the unseen A3, got %+v", run2Ads)
	}
}

// scenario 4: missing impression data is never rejected by a min-
// impressions filter, only a value that actually fails the check is.
func TestCollect_FilterIsMissingDataInclusive(t *testing.T) {
	low := adRecord("LOW")
	low["impressions"] = map[string]any{"upper_bound": float64(500)}
	unknown := adRecord("UNKNOWN")
	// no impressions field at all

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(landingBody)) })
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(page([]map[string]any{low, unknown}, false, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher := fetcherFor(srv.URL)

	f := filter.Config{MinImpressions: 1000}.Predicate()
	c := newCollector(t, srv.URL+"/graphql", Options{Fetcher: fetcher, Filter: f})
	defer c.Close()

	got, err := collectAll(c.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "UNKNOWN" {
		t.Fatalf("expected only the ad with no impression data, got %+v", got)
	}
}

// scenario 5: one dead proxy endpoint does not stop collection; rotation
// continues across the remaining endpoints.
func TestCollect_ProxyRotationSurvivesADeadEndpoint(t *testing.T) {
	origin := http.NewServeMux()
	origin.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(landingBody)) })
	var pageCalls int32
	origin.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&pageCalls, 1)
		if n == 1 {
			_ = json.NewEncoder(w).Encode(page([]map[string]any{adRecord("A1")}, true, "c1"))
			return
		}
		_ = json.NewEncoder(w).Encode(page([]map[string]any{adRecord("A2")}, false, ""))
	})
	originSrv := httptest.NewServer(origin)
	defer originSrv.Close()

	deadProxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer deadProxy.Close()
	goodProxy1 := forwardProxy(t, originSrv.URL)
	defer goodProxy1.Close()
	goodProxy2 := forwardProxy(t, originSrv.URL)
	defer goodProxy2.Close()

	pool, err := proxypool.New([]string{deadProxy.URL, goodProxy1.URL, goodProxy2.URL}, 2, 300)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	fetcher := fetcherFor(originSrv.URL)
	c := newCollector(t, originSrv.URL+"/graphql", Options{Fetcher: fetcher, Pool: pool})
	defer c.Close()

	got, err := collectAll(c.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("unexpected error despite two healthy proxies remaining: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both pages' ads despite the dead proxy, got %+v", got)
	}
}

// scenario 6: a sustained rate limit terminates the iterator cleanly
// after retries are exhausted, with no trailing error.
func TestCollect_SustainedRateLimitTerminatesCleanly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(landingBody)) })
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	fetcher := fetcherFor(srv.URL)

	c := newCollector(t, srv.URL+"/graphql", Options{Fetcher: fetcher, PipelineCfg: pipeline.Config{MaxRetries: 2}})
	defer c.Close()

	var rateLimitedEvents, finishedEvents int32
	c.On(events.RateLimited, func(events.Event) { atomic.AddInt32(&rateLimitedEvents, 1) })
	c.On(events.CollectionFinished, func(ev events.Event) {
		atomic.AddInt32(&finishedEvents, 1)
		if ev.Payload["total"] != 0 {
			t.Errorf("expected total=0, got %v", ev.Payload["total"])
		}
	})

	got, err := collectAll(c.Collect(context.Background(), adlib.Query{Country: "US"}))
	if err != nil {
		t.Fatalf("a sustained rate limit must not propagate an error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no ads collected, got %+v", got)
	}
	if rateLimitedEvents != 2 {
		t.Fatalf("expected exactly two rate_limited events for max_retries=2, got %d", rateLimitedEvents)
	}
	if finishedEvents != 1 {
		t.Fatalf("expected exactly one collection_finished event, got %d", finishedEvents)
	}
}

// fetcherFor returns the production HTTPFetcher pointed at srv instead of
// the real remote host, so these tests exercise the real bootstrap and
// GraphQL-dispatch code paths end to end.
func fetcherFor(srv string) session.HTTPFetcher {
	return session.HTTPFetcher{Country: "US", AdType: "all", BaseURL: srv}
}

func forwardProxy(t *testing.T, origin string) *httptest.Server {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target, err := url.Parse(origin)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		target.Path = r.URL.Path
		target.RawQuery = r.URL.RawQuery

		outReq, err := http.NewRequest(r.Method, target.String(), r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		outReq.Header = r.Header.Clone()

		resp, err := client.Do(outReq)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
	}))
}
