// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package adlib holds the canonical ad record and the small value types
// shared across the collection engine: proxy pool, token store, session,
// request pipeline, normalizer, and iterator all speak in terms of these
// types rather than the remote service's raw JSON shapes.
package adlib

import "time"

// Range is an inclusive lower/upper bound pair over an integer quantity
// (impressions, spend, reach). Either bound may be absent when the remote
// service did not report it.
type Range struct {
	Lower *int64
	Upper *int64
}

// Valid reports whether the range satisfies Lower <= Upper when both are
// present. An absent bound never violates the invariant.
func (r Range) Valid() bool {
	if r.Lower == nil || r.Upper == nil {
		return true
	}
	return *r.Lower <= *r.Upper
}

// SpendRange adds a currency code to a Range.
type SpendRange struct {
	Range
	Currency string
}

// Page describes the advertiser page an ad belongs to.
type Page struct {
	ID        string
	Name      string
	Verified  bool
	LikeCount *int64
}

// Creative is one variant of an ad's rendered content. The remote service
// may return several variants per ad (carousel cards, A/B copy, etc).
type Creative struct {
	Body         string
	Title        string
	Description  string
	LinkURL      string
	ImageURL     string
	VideoURLs    []string
	ThumbnailURL string
	CTAText      string
}

// Ad is the canonical, immutable record produced by the normalizer.
// Identifier is the only field every instance is guaranteed to carry;
// everything else reflects what the source payload actually contained.
type Ad struct {
	ID       string
	Page     Page
	IsActive bool

	StartTime *time.Time
	StopTime  *time.Time

	Creatives []Creative

	Impressions Range
	Spend       SpendRange
	Reach       Range

	PublisherPlatforms []string
	Languages          []string
	FundingEntity      string
	Disclaimer         string

	DemographicDistribution []DemographicBucket
	RegionDistribution      []RegionBucket

	AdCategory string

	CollationID    string
	CollationCount int

	CollectedAt time.Time
}

// DemographicBucket is one age/gender slice of a demographic distribution.
type DemographicBucket struct {
	Age        string
	Gender     string
	Percentage float64
}

// RegionBucket is one geographic slice of a regional distribution.
type RegionBucket struct {
	Region     string
	Percentage float64
}

// Valid reports whether the record satisfies the invariants in the data
// model: non-empty identifier and well-formed ranges. Timestamps are not
// re-validated here since the normalizer only ever produces well-formed
// UTC instants or nil.
func (a Ad) Valid() bool {
	if a.ID == "" {
		return false
	}
	return a.Impressions.Valid() && a.Spend.Valid() && a.Reach.Valid()
}
