// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package normalizer

import "testing"

func TestParseRangeString_GreaterThan(t *testing.T) {
	r, ok := ParseRangeString(">1M")
	if !ok {
		t.Fatal("expected parse success")
	}
	if r.Lower == nil || *r.Lower != 1_000_000 || r.Upper != nil {
		t.Fatalf("expected lower=1000000 upper=nil, got %+v", r)
	}
}

func TestParseRangeString_DollarRange(t *testing.T) {
	r, ok := ParseRangeString("$9K-$10K")
	if !ok {
		t.Fatal("expected parse success")
	}
	if r.Lower == nil || *r.Lower != 9000 || r.Upper == nil || *r.Upper != 10000 {
		t.Fatalf("expected 9000-10000, got %+v", r)
	}
}

func TestNormalize_MissingIdentifierYieldsNothing(t *testing.T) {
	_, ok := Normalize(record{"body": "no id here"})
	if ok {
		t.Fatal("expected no record without an identifier")
	}
}

func TestNormalize_SnakeCaseDialect(t *testing.T) {
	raw := record{
		"ad_archive_id": "123",
		"page_id":       "p1",
		"page_name":     "Acme",
		"is_active":     true,
		"impressions":   map[string]any{"lower_bound": float64(1000), "upper_bound": float64(5000)},
		"publisher_platform": []any{"facebook", "instagram"},
	}
	ad, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected record produced")
	}
	if ad.ID != "123" || ad.Page.Name != "Acme" || !ad.IsActive {
		t.Fatalf("unexpected ad: %+v", ad)
	}
	if ad.Impressions.Lower == nil || *ad.Impressions.Lower != 1000 {
		t.Fatalf("expected impressions lower=1000, got %+v", ad.Impressions)
	}
	if len(ad.PublisherPlatforms) != 2 {
		t.Fatalf("expected 2 platforms, got %v", ad.PublisherPlatforms)
	}
}

func TestNormalize_CamelCaseDialect(t *testing.T) {
	raw := record{
		"adArchiveID": "456",
		"pageID":      "p2",
		"pageName":    "Acme Camel",
	}
	ad, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected record produced")
	}
	if ad.ID != "456" || ad.Page.Name != "Acme Camel" {
		t.Fatalf("unexpected ad: %+v", ad)
	}
}

func TestNormalize_GuardsUnexpectedShape(t *testing.T) {
	raw := record{
		"ad_archive_id": "789",
		"impressions":   "not-a-range-shape-@@@",
	}
	ad, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected record produced despite unparseable impressions field")
	}
	if ad.Impressions.Lower != nil || ad.Impressions.Upper != nil {
		t.Fatalf("expected impressions left absent, got %+v", ad.Impressions)
	}
}

func TestNormalize_PlatformAliasCollapse(t *testing.T) {
	raw := record{
		"ad_archive_id":       "1",
		"publisher_platform": []any{"Facebook", "facebooks", "Instagram"},
	}
	ad, _ := Normalize(raw)
	if len(ad.PublisherPlatforms) != 2 {
		t.Fatalf("expected facebook+instagram collapsed, got %v", ad.PublisherPlatforms)
	}
}
