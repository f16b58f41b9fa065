// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

package proxypool

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize accepts the endpoint grammars enumerated in spec.md §4.1:
//
//	host:port
//	host:port:user:pass
//	scheme://[user:pass@]host:port  (scheme one of http, https, socks5)
//
// and returns a canonical URL string, defaulting to the http scheme when
// none is given.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		if !allowedScheme(u.Scheme) {
			return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return "", fmt.Errorf("missing host")
		}
		return u.String(), nil
	}

	parts := strings.Split(raw, ":")
	switch len(parts) {
	case 2:
		return fmt.Sprintf("http://%s:%s", parts[0], parts[1]), nil
	case 4:
		u := url.URL{
			Scheme: "http",
			User:   url.UserPassword(parts[2], parts[3]),
			Host:   fmt.Sprintf("%s:%s", parts[0], parts[1]),
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unrecognized endpoint grammar %q", raw)
	}
}

func allowedScheme(scheme string) bool {
	switch scheme {
	case "http", "https", "socks5":
		return true
	default:
		return false
	}
}
