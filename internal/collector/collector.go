// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package collector implements the paginated collection iterator of
// spec.md §4.4: it drives cursor-based pagination through the request
// pipeline, applies dedup and filter predicates per record, emits
// lifecycle events, and yields normalized ad records until a cap or
// exhaustion.
package collector

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/tomtom215/adcollector/internal/adlib"
	"github.com/tomtom215/adcollector/internal/dedup"
	"github.com/tomtom215/adcollector/internal/events"
	"github.com/tomtom215/adcollector/internal/filter"
	"github.com/tomtom215/adcollector/internal/fingerprint"
	"github.com/tomtom215/adcollector/internal/logging"
	"github.com/tomtom215/adcollector/internal/metrics"
	"github.com/tomtom215/adcollector/internal/normalizer"
	"github.com/tomtom215/adcollector/internal/pipeline"
	"github.com/tomtom215/adcollector/internal/proxypool"
	"github.com/tomtom215/adcollector/internal/session"
)

const (
	adSearchDocID      = "ad_search"
	interRequestDelay  = 2 * time.Second
	defaultMaxRefresh  = 3
)

// Collector owns the session, event emitter, and request pipeline for
// one collection lifetime. It borrows the proxy pool, dedup tracker,
// and filter predicate supplied at construction, per spec.md §3's
// ownership rules.
type Collector struct {
	pipeline *pipeline.Pipeline
	session  *session.Session
	emitter  *events.Emitter
	dedup    dedup.Tracker
	filter   filter.Predicate
}

// Options bundles the borrowed collaborators and construction-time
// tuning a Collector needs.
type Options struct {
	Fetcher            session.LandingFetcher
	Fingerprint        fingerprint.Bundle
	Proxy              *proxypool.Endpoint
	Pool               *proxypool.Pool
	Dedup              dedup.Tracker
	Filter             filter.Predicate
	PipelineCfg        pipeline.Config
	MaxRefreshAttempts int
}

// New constructs a Collector. The session is not bootstrapped until
// the first call to Collect.
func New(opts Options) *Collector {
	d := opts.Dedup
	if d == nil {
		d = dedup.NewMemoryTracker()
	}
	f := opts.Filter
	if f == nil {
		f = func(adlib.Ad) bool { return true }
	}
	maxRefresh := opts.MaxRefreshAttempts
	if maxRefresh <= 0 {
		maxRefresh = defaultMaxRefresh
	}
	emitter := events.NewEmitter()
	pcfg := opts.PipelineCfg
	pcfg.OnRefresh = func(reason session.RefreshReason) {
		emitter.Emit(events.New(events.SessionRefreshed, map[string]any{"reason": string(reason)}))
	}
	pcfg.OnRateLimited = func() {
		emitter.Emit(events.New(events.RateLimited, nil))
	}
	return &Collector{
		pipeline: pipeline.New(pcfg, opts.Pool),
		session:  session.New(opts.Fetcher, opts.Fingerprint, opts.Proxy, maxRefresh),
		emitter:  emitter,
		dedup:    d,
		filter:   f,
	}
}

// On registers a lifecycle event listener, per spec.md §4.6.
func (c *Collector) On(t events.Type, listener events.Listener) {
	c.emitter.On(t, listener)
}

// page is the pipeline's decoded response shape for one page of
// results: a list of raw records plus cursor/next-page bookkeeping.
type page struct {
	Records    []map[string]any
	NextCursor string
	HasNext    bool
}

// decodePage extracts the record list and page_info envelope the
// remote service wraps every page in. Shape drift is tolerated per
// spec.md §4.5: missing fields yield an empty/false page rather than
// a panic.
func decodePage(data map[string]any) page {
	var p page
	results, _ := data["search_results_connection"].(map[string]any)
	if results == nil {
		results, _ = data["ad_library_main"].(map[string]any)
	}
	if edges, ok := results["edges"].([]any); ok {
		for _, e := range edges {
			edge, ok := e.(map[string]any)
			if !ok {
				continue
			}
			if node, ok := edge["node"].(map[string]any); ok {
				p.Records = append(p.Records, node)
			}
		}
	}
	if info, ok := results["page_info"].(map[string]any); ok {
		p.HasNext, _ = info["has_next_page"].(bool)
		p.NextCursor, _ = info["end_cursor"].(string)
	}
	return p
}

// Collect runs the collection iterator described in spec.md §4.4 and
// returns a Go iterator over normalized ad records. Range stops early
// if the consumer breaks out of the loop; the query is exhausted,
// max_results is reached, ctx is cancelled, or an error occurs
// otherwise. A rate-limit exhaustion after retries terminates the
// iteration cleanly with no trailing error, matching spec.md §8
// scenario 6; every other dispatch failure is surfaced as the
// iterator's final (adlib.Ad{}, err) pair.
func (c *Collector) Collect(ctx context.Context, q adlib.Query) iter.Seq2[adlib.Ad, error] {
	return func(yield func(adlib.Ad, error) bool) {
		if err := q.Validate(); err != nil {
			yield(adlib.Ad{}, err)
			return
		}

		if !c.session.Ready() {
			if err := c.session.Bootstrap(ctx); err != nil {
				yield(adlib.Ad{}, err)
				return
			}
		}

		started := time.Now()
		c.emitter.Emit(events.New(events.CollectionStarted, map[string]any{
			"country": q.Country, "keywords": q.Keywords, "ad_type": q.AdType,
		}))

		var cursor string
		var pageIndex, totalCollected int

		for {
			req := pipeline.Request{
				DocID: adSearchDocID,
				Variables: map[string]any{
					"countryCode": q.Country,
					"queryString": q.Keywords,
					"pageID":      q.PageID,
					"adType":      q.AdType,
					"adStatus":    q.Status,
					"searchType":  q.SearchType,
					"cursor":      cursor,
					"count":       q.PageSize,
				},
			}

			data, err := c.pipeline.Dispatch(ctx, c.session, req)
			if err != nil {
				if errors.Is(err, pipeline.ErrRateLimited) {
					// Per-retry rate_limited events already fired via
					// pipeline.Config.OnRateLimited; exhaustion just ends
					// the iteration cleanly, per spec.md §8 scenario 6.
					break
				}
				c.emitter.Emit(events.New(events.ErrorOccurred, map[string]any{"error": err.Error(), "page": pageIndex}))
				yield(adlib.Ad{}, err)
				return
			}

			metrics.PagesFetched.Inc()
			pg := decodePage(data)
			c.emitter.Emit(events.New(events.PageFetched, map[string]any{
				"page": pageIndex, "count": len(pg.Records), "has_next": pg.HasNext,
			}))

			done, err := c.processPage(pg, q, &totalCollected, yield)
			if err != nil {
				yield(adlib.Ad{}, err)
				return
			}
			if done {
				break
			}
			if !pg.HasNext {
				break
			}

			cursor = pg.NextCursor
			pageIndex++
			select {
			case <-ctx.Done():
				yield(adlib.Ad{}, ctx.Err())
				return
			case <-time.After(interRequestDelay):
			}
		}

		c.emitter.Emit(events.New(events.CollectionFinished, map[string]any{
			"total":       totalCollected,
			"duration_ms": time.Since(started).Milliseconds(),
		}))
	}
}

// Result pairs an ad with its error for CollectChan's channel-based
// convenience wrapper.
type Result struct {
	Ad  adlib.Ad
	Err error
}

// CollectChan adapts Collect to a channel for callers who prefer
// range-over-channel to a range-over-iter.Seq2. The channel is closed
// once iteration ends; a received Result with a non-nil Err is always
// the last value sent.
func (c *Collector) CollectChan(ctx context.Context, q adlib.Query) <-chan Result {
	out := make(chan Result)
	go func() {
		defer close(out)
		for ad, err := range c.Collect(ctx, q) {
			select {
			case out <- Result{Ad: ad, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// processPage normalizes, dedups, and filters one page of raw records,
// yielding each surviving record. It returns done=true once
// max_results is reached or the consumer stops ranging.
func (c *Collector) processPage(pg page, q adlib.Query, total *int, yield func(adlib.Ad, error) bool) (bool, error) {
	for _, raw := range pg.Records {
		ad, ok := normalizer.Normalize(raw)
		if !ok {
			continue
		}
		if c.dedup.HasSeen(ad.ID) {
			continue
		}
		if err := c.dedup.MarkSeen(ad.ID); err != nil {
			return false, err
		}
		if !c.filter(ad) {
			continue
		}

		metrics.AdsCollected.Inc()
		c.emitter.Emit(events.New(events.AdCollected, map[string]any{"id": ad.ID}))
		*total++

		if !yield(ad, nil) {
			return true, nil
		}
		if q.MaxResults > 0 && *total >= q.MaxResults {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the dedup tracker's resources (flushing a persistent
// store, if configured) and stamps its last-collection timestamp.
func (c *Collector) Close() error {
	if err := c.dedup.UpdateCollectionTime(); err != nil {
		logging.Warn().Err(err).Msg("collector: failed to record last collection time")
	}
	return c.dedup.Close()
}
