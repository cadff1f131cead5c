package transport

import (
	"net/http"
	"strings"
)

// Site is per-host request customization. Authentication to a publisher is
// handled here, through headers or cookies, rather than by the engine.
type Site struct {
	// Cookie is a raw cookie string, e.g. "session=abc; theme=dark".
	Cookie string

	// Headers are set on every request to the host.
	Headers map[string]string
}

// SiteLookup returns the settings for host, or false when there are none.
type SiteLookup func(host string) (Site, bool)

// headerInjectingTransport adds a host's configured headers and cookies to
// each request, including requests issued while following redirects.
type headerInjectingTransport struct {
	base      http.RoundTripper
	lookup    SiteLookup
	userAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.lookup != nil {
		if site, ok := t.lookup(strings.ToLower(req.URL.Hostname())); ok {
			if site.Cookie != "" {
				if existing := clone.Header.Get("Cookie"); existing != "" {
					clone.Header.Set("Cookie", existing+"; "+site.Cookie)
				} else {
					clone.Header.Set("Cookie", site.Cookie)
				}
			}
			for key, value := range site.Headers {
				clone.Header.Set(key, value)
			}
		}
	}

	return t.base.RoundTrip(clone)
}
