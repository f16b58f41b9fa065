// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package normalizer deserializes the remote service's heterogeneous
// ad-record shapes into the canonical adlib.Ad, per spec.md §4.5.
// Every field is resolved through a declarative alias list tried in
// order, mirroring the teacher's mapStringField/mapStringPtrField
// alias-table style rather than branching on shape.
package normalizer

import (
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/adcollector/internal/adlib"
)

// record is the raw, already-JSON-decoded ad shape from one GraphQL
// page. Keys vary in casing and nesting between remote releases.
type record = map[string]any

// Normalize builds a canonical Ad from one raw record. Normalization
// is total: any input carrying an identifier produces a record;
// anything without one produces nothing, per spec.md §4.5.
func Normalize(raw record) (adlib.Ad, bool) {
	id, ok := firstString(raw, "ad_archive_id", "adArchiveID", "id", "collation_id")
	if !ok || id == "" {
		return adlib.Ad{}, false
	}

	ad := adlib.Ad{
		ID:          id,
		CollectedAt: time.Now().UTC(),
	}

	ad.Page = normalizePage(raw)
	ad.IsActive = firstBool(raw, "is_active", "isActive", "active")
	ad.StartTime = firstTime(raw, "start_date", "startDate", "ad_delivery_start_time")
	ad.StopTime = firstTime(raw, "end_date", "endDate", "ad_delivery_stop_time")

	ad.Creatives = normalizeCreatives(raw)

	ad.Impressions = firstRange(raw, "impressions", "impressionsRange")
	ad.Spend = normalizeSpend(raw)
	ad.Reach = firstRange(raw, "reach", "reachEstimate")

	ad.PublisherPlatforms = normalizePlatforms(raw)
	ad.Languages, _ = firstStringSlice(raw, "languages", "ad_languages")
	ad.FundingEntity, _ = firstString(raw, "funding_entity", "fundingEntity", "bylines")
	ad.Disclaimer, _ = firstString(raw, "disclaimer", "payer_beneficiary")

	ad.DemographicDistribution = normalizeDemographics(raw)
	ad.RegionDistribution = normalizeRegions(raw)

	ad.AdCategory, _ = firstString(raw, "category", "ad_category", "political_countries")

	ad.CollationID, _ = firstString(raw, "collation_id", "collationId")
	if n, ok := firstInt(raw, "collation_count", "collationCount"); ok {
		ad.CollationCount = int(n)
	}

	return ad, true
}

func normalizePage(raw record) adlib.Page {
	p := adlib.Page{}
	p.ID, _ = firstString(raw, "page_id", "pageID")
	p.Name, _ = firstString(raw, "page_name", "pageName")
	p.Verified = firstBool(raw, "page_is_profile_page", "is_page_verified", "pageVerified")
	if n, ok := firstInt(raw, "page_like_count", "pageLikeCount"); ok {
		p.LikeCount = &n
	}
	return p
}

func normalizeCreatives(raw record) []adlib.Creative {
	if cards, ok := firstSlice(raw, "cards", "creatives"); ok {
		out := make([]adlib.Creative, 0, len(cards))
		for _, c := range cards {
			cm, ok := c.(record)
			if !ok {
				continue
			}
			out = append(out, creativeFromMap(cm))
		}
		if len(out) > 0 {
			return out
		}
	}

	// Parallel-array dialect: body/title/etc. given as same-length
	// arrays instead of a cards list.
	bodies, _ := firstStringSlice(raw, "body", "bodies")
	titles, _ := firstStringSlice(raw, "title", "titles")
	if len(bodies) == 0 && len(titles) == 0 {
		if single, ok := firstString(raw, "ad_creative_body", "snapshot_body"); ok && single != "" {
			return []adlib.Creative{{Body: single}}
		}
		return nil
	}
	n := len(bodies)
	if len(titles) > n {
		n = len(titles)
	}
	out := make([]adlib.Creative, 0, n)
	for i := 0; i < n; i++ {
		c := adlib.Creative{}
		if i < len(bodies) {
			c.Body = bodies[i]
		}
		if i < len(titles) {
			c.Title = titles[i]
		}
		out = append(out, c)
	}
	return out
}

func creativeFromMap(cm record) adlib.Creative {
	c := adlib.Creative{}
	c.Body, _ = firstString(cm, "body", "ad_creative_body")
	c.Title, _ = firstString(cm, "title", "ad_creative_link_title")
	c.Description, _ = firstString(cm, "description", "ad_creative_link_description")
	c.LinkURL, _ = firstString(cm, "link_url", "linkUrl")
	c.ImageURL, _ = firstString(cm, "original_image_url", "resized_image_url", "imageUrl")
	c.ThumbnailURL, _ = firstString(cm, "video_preview_image_url", "thumbnailUrl")
	c.CTAText, _ = firstString(cm, "cta_text", "ctaText")
	if urls, ok := firstStringSlice(cm, "video_sd_url", "video_hd_url"); ok {
		c.VideoURLs = urls
	} else if u, ok := firstString(cm, "video_sd_url", "videoUrl"); ok && u != "" {
		c.VideoURLs = []string{u}
	}
	return c
}

// platformAliases collapses singular/plural naming drift into one
// canonical set, per spec.md §4.5.
var platformAliases = map[string]string{
	"facebook":   "facebook",
	"facebooks":  "facebook",
	"instagram":  "instagram",
	"instagrams": "instagram",
	"audience_network": "audience_network",
	"messenger":  "messenger",
}

func normalizePlatforms(raw record) []string {
	vals, _ := firstStringSlice(raw, "publisher_platform", "publisherPlatforms", "publisher_platforms")
	if len(vals) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		canon := strings.ToLower(v)
		if alias, ok := platformAliases[canon]; ok {
			canon = alias
		}
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out
}

func normalizeSpend(raw record) adlib.SpendRange {
	r := firstRange(raw, "spend", "spendRange")
	currency, _ := firstString(raw, "currency", "spend_currency")
	if currency == "" {
		currency = inferredCurrency
	}
	return adlib.SpendRange{Range: r, Currency: currency}
}

func normalizeDemographics(raw record) []adlib.DemographicBucket {
	items, ok := firstSlice(raw, "demographic_distribution", "demographicDistribution")
	if !ok {
		return nil
	}
	out := make([]adlib.DemographicBucket, 0, len(items))
	for _, it := range items {
		m, ok := it.(record)
		if !ok {
			continue
		}
		age, _ := firstString(m, "age", "ageRange")
		gender, _ := firstString(m, "gender")
		pct, _ := firstFloat(m, "percentage")
		out = append(out, adlib.DemographicBucket{Age: age, Gender: gender, Percentage: pct})
	}
	return out
}

func normalizeRegions(raw record) []adlib.RegionBucket {
	items, ok := firstSlice(raw, "region_distribution", "regionDistribution")
	if !ok {
		return nil
	}
	out := make([]adlib.RegionBucket, 0, len(items))
	for _, it := range items {
		m, ok := it.(record)
		if !ok {
			continue
		}
		region, _ := firstString(m, "region", "name")
		pct, _ := firstFloat(m, "percentage")
		out = append(out, adlib.RegionBucket{Region: region, Percentage: pct})
	}
	return out
}

const inferredCurrency = "USD"

// firstString tries each key in order against m, returning the first
// non-empty string value found; a numeric value is returned formatted
// as a string. Any other shape is silently
// skipped rather than propagated, per spec.md §4.5's guarded-
// dereference requirement.
func firstString(m record, keys ...string) (string, bool) {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		}
	}
	return "", false
}

func firstBool(m record, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k].(bool); ok {
			return v
		}
	}
	return false
}

func firstInt(m record, keys ...string) (int64, bool) {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int64(t), true
		case string:
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func firstFloat(m record, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case string:
			if f, err := strconv.ParseFloat(t, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func firstStringSlice(m record, keys ...string) ([]string, bool) {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(arr))
		for _, e := range arr {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out, true
		}
	}
	return nil, false
}

func firstSlice(m record, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if v, ok := m[k].([]any); ok && len(v) > 0 {
			return v, true
		}
	}
	return nil, false
}

func firstTime(m record, keys ...string) *time.Time {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				utc := parsed.UTC()
				return &utc
			}
		case float64:
			parsed := time.Unix(int64(t), 0).UTC()
			return &parsed
		}
	}
	return nil
}

// firstRange resolves a Range field that may arrive as a structured
// object, a range-string, or a bare scalar, per spec.md §4.5.
func firstRange(m record, keys ...string) adlib.Range {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		switch t := v.(type) {
		case record:
			if r, ok := rangeFromMap(t); ok {
				return r
			}
		case string:
			if r, ok := ParseRangeString(t); ok {
				return r
			}
		case float64:
			n := int64(t)
			return adlib.Range{Lower: &n, Upper: &n}
		}
	}
	return adlib.Range{}
}

func rangeFromMap(m record) (adlib.Range, bool) {
	lowerKeys := []string{"lower_bound", "lowerBound", "min"}
	upperKeys := []string{"upper_bound", "upperBound", "max"}
	r := adlib.Range{}
	found := false
	if n, ok := firstInt(m, lowerKeys...); ok {
		r.Lower = &n
		found = true
	}
	if n, ok := firstInt(m, upperKeys...); ok {
		r.Upper = &n
		found = true
	}
	return r, found
}
