// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tomtom215/adcollector/internal/adlib"
)

// suffixMultiplier maps the thousands/millions/billions suffix used in
// range-strings to its numeric multiplier, per spec.md §4.5.
var suffixMultiplier = map[byte]float64{
	'K': 1_000,
	'M': 1_000_000,
	'B': 1_000_000_000,
}

var boundPattern = regexp.MustCompile(`(?i)^[>$]*([0-9]+(?:\.[0-9]+)?)([KMB]?)$`)

// ParseRangeString parses the tested range-string shapes from spec.md
// §8: ">1M" -> lower=1000000, upper=nil; "$9K-$10K" -> lower=9000,
// upper=10000. Anything outside these tested shapes is left
// unparsed, per design-notes §9's open question on range-string
// parsing — this is deliberately not a complete grammar.
//
// TODO: currency-symbol-after-amount shapes (e.g. "9K€") are not
// covered; the source this was distilled from does not handle them
// either.
func ParseRangeString(s string) (adlib.Range, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return adlib.Range{}, false
	}

	if strings.HasPrefix(s, ">") {
		v, ok := parseBound(s[1:])
		if !ok {
			return adlib.Range{}, false
		}
		n := int64(v)
		return adlib.Range{Lower: &n}, true
	}

	if parts := strings.SplitN(s, "-", 2); len(parts) == 2 {
		lower, ok1 := parseBound(parts[0])
		upper, ok2 := parseBound(parts[1])
		if ok1 && ok2 {
			lo, hi := int64(lower), int64(upper)
			return adlib.Range{Lower: &lo, Upper: &hi}, true
		}
	}

	if v, ok := parseBound(s); ok {
		n := int64(v)
		return adlib.Range{Lower: &n, Upper: &n}, true
	}

	return adlib.Range{}, false
}

func parseBound(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	m := boundPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	base, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] != "" {
		mult, ok := suffixMultiplier[strings.ToUpper(m[2])[0]]
		if ok {
			base *= mult
		}
	}
	return base, true
}
