// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package tokenstore extracts and holds the short-lived values a Session
// needs to authenticate its GraphQL calls, per spec.md §3/§4.2.
package tokenstore

import (
	"fmt"
	"regexp"
)

// Keys recognized by the store, per spec.md §3.
const (
	KeyLSD      = "lsd"
	KeyFBDTSG   = "fb_dtsg"
	KeyJazoest  = "jazoest"
	KeyRev      = "__rev"
	KeySpinR    = "__spin_r"
	KeySpinT    = "__spin_t"
	KeyHSI      = "__hsi"
	KeyDyn      = "__dyn"
	KeyCSR      = "__csr"
	DocAdSearch = "doc_ad_search"
	DocTypeahead = "doc_page_typeahead"
)

// Defaults are the build-time fallback values used when a token cannot be
// extracted from the landing page. They are process-wide read-only data,
// per design-notes §9, and never mutated after program start.
var Defaults = map[string]string{
	KeyFBDTSG:    "",
	KeyRev:       "1000000000",
	KeySpinR:     "1000000000",
	KeySpinT:     "1700000000",
	KeyHSI:       "0",
	KeyDyn:       "",
	KeyCSR:       "",
	DocAdSearch:  "9333605530071508",
	DocTypeahead: "9195848943835133",
}

// Store is an opaque mapping of token key to extracted value. It is owned
// by exactly one Session and mutated only during bootstrap/refresh.
type Store struct {
	values map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Set stores a value for the given key.
func (s *Store) Set(key, value string) { s.values[key] = value }

// Get returns the value for key, or "" if absent.
func (s *Store) Get(key string) string { return s.values[key] }

// Ready reports whether lsd has been populated, the one mandatory
// invariant from spec.md §3.
func (s *Store) Ready() bool { return s.values[KeyLSD] != "" }

// All returns a copy of every stored key/value pair, suitable for
// assembling a request body.
func (s *Store) All() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// extractionOrder declares, per key, the regex alternatives tried in
// order; the first match wins. Declarative rather than branching, per
// design-notes §9's "dynamic key dialects" guidance applied to token
// extraction as well as response normalization.
var extractionOrder = map[string][]*regexp.Regexp{
	KeyLSD: {
		regexp.MustCompile(`"LSD"[^{]*\{"token":"([^"]+)"`),
		regexp.MustCompile(`"lsd"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`name="lsd"\s+value="([^"]+)"`),
	},
	KeyFBDTSG: {
		regexp.MustCompile(`"DTSGInitialData"[^{]*\{"token":"([^"]+)"`),
		regexp.MustCompile(`name="fb_dtsg"\s+value="([^"]+)"`),
		regexp.MustCompile(`"fb_dtsg"\s*:\s*"([^"]+)"`),
	},
	KeyRev: {
		regexp.MustCompile(`"__rev"\s*:\s*(\d+)`),
		regexp.MustCompile(`"client_revision"\s*:\s*(\d+)`),
	},
	KeySpinR: {
		regexp.MustCompile(`"__spin_r"\s*:\s*(\d+)`),
	},
	KeySpinT: {
		regexp.MustCompile(`"__spin_t"\s*:\s*(\d+)`),
	},
	KeyHSI: {
		regexp.MustCompile(`"__hsi"\s*:\s*"?(\d+)"?`),
	},
	KeyDyn: {
		regexp.MustCompile(`"__dyn"\s*:\s*"([^"]+)"`),
	},
	KeyCSR: {
		regexp.MustCompile(`"__csr"\s*:\s*"([^"]+)"`),
	},
	DocAdSearch: {
		regexp.MustCompile(`"AdLibrarySearchPaginationQuery"[^}]*"id":"(\d+)"`),
		regexp.MustCompile(`adLibrarySearch[^"]*","id":"(\d+)"`),
		regexp.MustCompile(`"queryID"\s*:\s*"(\d+)"\s*,\s*"name"\s*:\s*"[^"]*AdLibrarySearch`),
	},
	DocTypeahead: {
		regexp.MustCompile(`"AdLibraryPageTypeaheadQuery"[^}]*"id":"(\d+)"`),
		regexp.MustCompile(`pageTypeahead[^"]*","id":"(\d+)"`),
		regexp.MustCompile(`"queryID"\s*:\s*"(\d+)"\s*,\s*"name"\s*:\s*"[^"]*Typeahead`),
	},
}

// Extract runs the declared regex set over the landing-page body and
// populates every key it can find, falling back to Defaults for keys it
// cannot. jazoest, if still absent, is derived deterministically from
// lsd. Extract never clears a previously-set value it fails to re-find.
func (s *Store) Extract(body string) {
	for key, patterns := range extractionOrder {
		for _, p := range patterns {
			if m := p.FindStringSubmatch(body); m != nil {
				s.values[key] = m[1]
				break
			}
		}
	}
	for key, fallback := range Defaults {
		if s.values[key] == "" && fallback != "" {
			s.values[key] = fallback
		}
	}
	if s.values[KeyJazoest] == "" && s.values[KeyLSD] != "" {
		s.values[KeyJazoest] = deriveJazoest(s.values[KeyLSD])
	}
}

// deriveJazoest computes the jazoest value from lsd: a "2" prefix
// followed by the sum of the byte values of lsd, matching the one
// documented computation for this value (see spec.md §4.2, design-notes
// Open Questions — this is the only form confirmed against real
// responses).
func deriveJazoest(lsd string) string {
	sum := 0
	for _, b := range []byte(lsd) {
		sum += int(b)
	}
	return fmt.Sprintf("2%d", sum)
}
