// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package adlib

import (
	"fmt"
	"regexp"
)

// AdType, Status and SearchType enumerate the remote service's accepted
// filter values. They are exported as string sets rather than typed enums
// because the remote service occasionally adds values the client has no
// business rejecting outright, but the collection iterator validates
// against these sets per spec before dispatching a request.
var (
	AllowedAdTypes = map[string]bool{
		"all":            true,
		"political_and_issue_ads": true,
		"housing_ads":    true,
		"employment_ads": true,
		"credit_ads":     true,
	}

	AllowedStatuses = map[string]bool{
		"all":      true,
		"active":   true,
		"inactive": true,
	}

	AllowedSearchTypes = map[string]bool{
		"keyword_unordered": true,
		"keyword_exact_phrase": true,
		"page": true,
	}
)

var countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)

// InvalidParameterError carries the field, value, and allowed set for a
// parameter validation failure, per spec.md's InvalidParameter taxonomy
// entry.
type InvalidParameterError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%q (allowed: %v)", e.Field, e.Value, e.Allowed)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Query is the caller-supplied search envelope for one collection run.
type Query struct {
	Country    string
	Keywords   string
	PageID     string
	AdType     string
	Status     string
	SearchType string
	PageSize   int
	MaxResults int
}

// Validate enforces the enumerated-parameter invariant from spec.md §4.4
// step 1. It returns *InvalidParameterError, never a generic error, so
// callers can type-switch on the field that failed.
func (q Query) Validate() error {
	if !countryPattern.MatchString(q.Country) {
		return &InvalidParameterError{Field: "country", Value: q.Country, Allowed: []string{"ISO 3166-1 alpha-2, uppercase"}}
	}
	if q.AdType != "" && !AllowedAdTypes[q.AdType] {
		return &InvalidParameterError{Field: "ad_type", Value: q.AdType, Allowed: keys(AllowedAdTypes)}
	}
	if q.Status != "" && !AllowedStatuses[q.Status] {
		return &InvalidParameterError{Field: "status", Value: q.Status, Allowed: keys(AllowedStatuses)}
	}
	if q.SearchType != "" && !AllowedSearchTypes[q.SearchType] {
		return &InvalidParameterError{Field: "search_type", Value: q.SearchType, Allowed: keys(AllowedSearchTypes)}
	}
	return nil
}
