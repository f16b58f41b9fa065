// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package session

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/adcollector/internal/fingerprint"
	"github.com/tomtom215/adcollector/internal/proxypool"
)

// landingURL is the ad library front page's fetch target, per
// spec.md §6's external-interfaces list.
const landingURL = "https://www.facebook.com/ads/library/"

// HTTPFetcher is the production LandingFetcher: it issues the landing
// GET and challenge POST against the real remote service, proxied
// through whatever Endpoint the caller supplies.
type HTTPFetcher struct {
	Country string
	AdType  string
	Timeout time.Duration

	// BaseURL overrides landingURL; left empty, the real remote
	// service is used. Tests point it at an httptest.Server.
	BaseURL string
}

func (f HTTPFetcher) baseURL() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	return landingURL
}

func (f HTTPFetcher) client(ep *proxypool.Endpoint) *http.Client {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &http.Client{Timeout: timeout}
	if ep != nil {
		if proxyURL, err := url.Parse(ep.URL); err == nil {
			c.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return c
}

// FetchLanding issues the GET described in spec.md §4.2 step 1: the
// ad library front page with fingerprint headers and synthetic
// datr/wd/dpr cookies, scoped to the given cookie jar.
func (f HTTPFetcher) FetchLanding(ctx context.Context, fp fingerprint.Bundle, ep *proxypool.Endpoint, jar *cookiejar.Jar) (string, int, error) {
	u, err := url.Parse(f.baseURL())
	if err != nil {
		return "", 0, err
	}
	q := u.Query()
	q.Set("country", f.Country)
	q.Set("ad_type", f.AdType)
	u.RawQuery = q.Encode()

	jar.SetCookies(u, []*http.Cookie{
		{Name: "datr", Value: fp.DATR},
		{Name: "wd", Value: fp.WD},
		{Name: "dpr", Value: fp.DPR},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", 0, err
	}
	applyFingerprintHeaders(req, fp)
	for _, c := range jar.Cookies(u) {
		req.AddCookie(c)
	}

	client := f.client(ep)
	client.Jar = jar
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(body), resp.StatusCode, nil
}

// SubmitChallenge POSTs the URL-encoded challenge form extracted from
// the challenge marker, per spec.md §4.2 step 2.
func (f HTTPFetcher) SubmitChallenge(ctx context.Context, form string, fp fingerprint.Bundle, ep *proxypool.Endpoint, jar *cookiejar.Jar) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL(), strings.NewReader(form))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	applyFingerprintHeaders(req, fp)

	client := f.client(ep)
	client.Jar = jar
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func applyFingerprintHeaders(req *http.Request, fp fingerprint.Bundle) {
	req.Header.Set("User-Agent", fp.UserAgent)
	req.Header.Set("sec-ch-ua", fp.SecCHUA)
	req.Header.Set("sec-ch-ua-platform", fp.SecCHUAPlatform)
	req.Header.Set("sec-fetch-site", "same-origin")
	req.Header.Set("accept", "text/html,application/xhtml+xml")
	req.Header.Set("accept-language", "en-US,en;q=0.9")
}
