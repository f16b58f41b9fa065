// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package filter implements the collector's client-side filter
// predicate, per spec.md §4 Filter predicate and the missing-data-
// inclusive policy tested in §8.
package filter

import "github.com/tomtom215/adcollector/internal/adlib"

// Predicate is a pure function over a normalized ad record.
type Predicate func(adlib.Ad) bool

// Config declares the filter criteria a caller wants applied. Zero
// values disable the corresponding check.
type Config struct {
	MinImpressions     int64
	RequiredPlatforms  []string
	ActiveOnly         bool
	RequiredCountryLanguages []string
}

// Predicate builds a Predicate from c. Per spec.md §8's missing-data-
// inclusive policy: a record missing the data a check needs is never
// rejected by that check.
func (c Config) Predicate() Predicate {
	return func(ad adlib.Ad) bool {
		if c.MinImpressions > 0 {
			if ad.Impressions.Upper != nil && *ad.Impressions.Upper < c.MinImpressions {
				return false
			}
		}
		if c.ActiveOnly && !ad.IsActive {
			return false
		}
		if len(c.RequiredPlatforms) > 0 && len(ad.PublisherPlatforms) > 0 {
			if !anyMatch(ad.PublisherPlatforms, c.RequiredPlatforms) {
				return false
			}
		}
		if len(c.RequiredCountryLanguages) > 0 && len(ad.Languages) > 0 {
			if !anyMatch(ad.Languages, c.RequiredCountryLanguages) {
				return false
			}
		}
		return true
	}
}

func anyMatch(have, want []string) bool {
	set := make(map[string]bool, len(want))
	for _, w := range want {
		set[w] = true
	}
	for _, h := range have {
		if set[h] {
			return true
		}
	}
	return false
}
