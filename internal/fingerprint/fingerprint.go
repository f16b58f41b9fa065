// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package fingerprint produces the self-consistent identity bundle a
// Session binds to for its lifetime: User-Agent, platform hints,
// viewport, device pixel ratio, and the synthetic first-party cookies
// set on the landing-page GET. The randomization tables here are
// intentionally small placeholders — the real tables are an external
// data source per spec.md §1/§6; this package only guarantees internal
// consistency of whatever bundle it hands out.
package fingerprint

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// Bundle is one session's worth of header and cookie values. Every field
// is filled in by Generate; cross-references between UserAgent,
// SecCHUA, and SecCHUAPlatform are guaranteed consistent by construction.
type Bundle struct {
	UserAgent        string
	Platform         string
	SecCHUA          string
	SecCHUAPlatform  string
	SecCHUAMobile    string
	ViewportWidth    int
	ViewportHeight   int
	DevicePixelRatio float64

	// DATR, WD, and DPR are the synthetic cookie values set on first
	// landing per spec.md §6.
	DATR string
	WD   string
	DPR  string
}

// Validate checks the cross-reference invariant required by spec.md §6:
// the UA's Chrome major version must match sec-ch-ua, and the UA's OS
// must match sec-ch-ua-platform.
func (b Bundle) Validate() error {
	if !strings.Contains(b.UserAgent, "Chrome/") {
		return fmt.Errorf("fingerprint: user agent missing Chrome token: %q", b.UserAgent)
	}
	major := chromeMajor(b.UserAgent)
	if major == "" || !strings.Contains(b.SecCHUA, major) {
		return fmt.Errorf("fingerprint: sec-ch-ua %q does not match user agent Chrome major %q", b.SecCHUA, major)
	}
	if !strings.Contains(b.UserAgent, platformToken(b.Platform)) {
		return fmt.Errorf("fingerprint: user agent %q does not match platform %q", b.UserAgent, b.Platform)
	}
	if !strings.Contains(b.SecCHUAPlatform, b.Platform) {
		return fmt.Errorf("fingerprint: sec-ch-ua-platform %q does not match platform %q", b.SecCHUAPlatform, b.Platform)
	}
	return nil
}

func chromeMajor(ua string) string {
	i := strings.Index(ua, "Chrome/")
	if i < 0 {
		return ""
	}
	rest := ua[i+len("Chrome/"):]
	if j := strings.Index(rest, "."); j > 0 {
		return rest[:j]
	}
	return ""
}

func platformToken(platform string) string {
	switch platform {
	case "Windows":
		return "Windows NT"
	case "macOS":
		return "Macintosh"
	case "Linux":
		return "X11; Linux"
	default:
		return platform
	}
}

// chromeVersions and platforms are the built-in placeholder tables. A real
// deployment supplies a richer, regularly refreshed table through its own
// implementation of the Source interface below.
var chromeVersions = []string{"124.0.6367.91", "125.0.6422.76", "126.0.6478.61"}

var platforms = []struct {
	name        string
	secCHUA     string
	mobile      string
	viewportW   int
	viewportH   int
	dpr         float64
}{
	{"Windows", "Windows", "?0", 1920, 1080, 1.0},
	{"macOS", "macOS", "?0", 1728, 1117, 2.0},
	{"Linux", "Linux", "?0", 1920, 1080, 1.0},
}

// Source mints Bundles. The default Source is TableSource, backed by the
// placeholder tables above; production deployments supply their own
// implementation sourced from a maintained fingerprint database.
type Source interface {
	Generate() Bundle
}

// TableSource is the built-in Source implementation.
type TableSource struct {
	rng *rand.Rand
}

// NewTableSource constructs a TableSource seeded from the given source of
// randomness. Callers needing deterministic table picks for tests should
// pass a rand.New(rand.NewSource(seed)); the DATR value is always fresh
// and does not depend on the seed.
func NewTableSource(rng *rand.Rand) *TableSource {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &TableSource{rng: rng}
}

// Generate picks one self-consistent combination from the built-in tables
// and mints a fresh datr cookie value.
func (s *TableSource) Generate() Bundle {
	version := chromeVersions[s.rng.Intn(len(chromeVersions))]
	p := platforms[s.rng.Intn(len(platforms))]
	major := strings.SplitN(version, ".", 2)[0]

	ua := fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
		uaPlatformString(p.name), version)

	return Bundle{
		UserAgent:        ua,
		Platform:         p.name,
		SecCHUA:          fmt.Sprintf(`"Chromium";v="%s", "Not.A/Brand";v="8", "Google Chrome";v="%s"`, major, major),
		SecCHUAPlatform:  fmt.Sprintf("%q", p.secCHUA),
		SecCHUAMobile:    p.mobile,
		ViewportWidth:    p.viewportW,
		ViewportHeight:   p.viewportH,
		DevicePixelRatio: p.dpr,
		DATR:             datr(),
		WD:               fmt.Sprintf("%dx%d", p.viewportW, p.viewportH),
		DPR:              fmt.Sprintf("%g", p.dpr),
	}
}

func uaPlatformString(platform string) string {
	switch platform {
	case "Windows":
		return "Windows NT 10.0; Win64; x64"
	case "macOS":
		return "Macintosh; Intel Mac OS X 10_15_7"
	case "Linux":
		return "X11; Linux x86_64"
	default:
		return platform
	}
}

// datr mints a 24-character opaque token in the shape the remote service
// expects for its first-party tracking cookie. It is locally generated,
// never observed from a real response.
func datr() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:24]
}
