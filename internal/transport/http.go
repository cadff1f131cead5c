package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/net/proxy"
)

// Default HTTP settings.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 5
	DefaultUserAgent    = "burrow-client/1.0"
)

// DialControl inspects the resolved address just before a socket connects.
// Returning an error aborts the connection.
type DialControl func(network, address string, c syscall.RawConn) error

// RedirectCheck is consulted for each redirect target. Returning an error
// stops the redirect chain.
type RedirectCheck func(ctx context.Context, target *url.URL) error

// HTTPTransport fetches http and https locations.
type HTTPTransport struct {
	client *http.Client
	now    func() time.Time

	timeout       time.Duration
	maxRedirects  int
	userAgent     string
	proxyAddress  string
	sites         SiteLookup
	dialControl   DialControl
	dialBypass    func(host string) bool
	redirectCheck RedirectCheck
	customClient  bool
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithTimeout bounds each request including reading the body.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.timeout = d
	}
}

// WithMaxRedirects sets how many redirects a single fetch may follow.
func WithMaxRedirects(n int) HTTPOption {
	return func(t *HTTPTransport) {
		t.maxRedirects = n
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

// WithProxy routes every connection through the SOCKS5 proxy at address
// ("host:port"), such as a Tor daemon.
func WithProxy(address string) HTTPOption {
	return func(t *HTTPTransport) {
		t.proxyAddress = address
	}
}

// WithSites injects per-host headers and cookies.
func WithSites(lookup SiteLookup) HTTPOption {
	return func(t *HTTPTransport) {
		t.sites = lookup
	}
}

// WithDialControl installs a hook that sees the resolved IP of every direct
// connection. It is not used when a proxy is configured, because the socket
// then connects to the proxy rather than to the target.
func WithDialControl(fn DialControl) HTTPOption {
	return func(t *HTTPTransport) {
		t.dialControl = fn
	}
}

// WithDialBypass skips the dial control hook for hosts where fn returns
// true, such as hosts an operator has explicitly allowed.
func WithDialBypass(fn func(host string) bool) HTTPOption {
	return func(t *HTTPTransport) {
		t.dialBypass = fn
	}
}

// WithRedirectCheck installs a hook that vets every redirect target.
func WithRedirectCheck(fn RedirectCheck) HTTPOption {
	return func(t *HTTPTransport) {
		t.redirectCheck = fn
	}
}

// WithHTTPClient replaces the underlying client. Redirect and header
// settings are still applied on top of it.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
		t.customClient = true
	}
}

// NewHTTPTransport builds an HTTP(S) transport.
func NewHTTPTransport(opts ...HTTPOption) (*HTTPTransport, error) {
	t := &HTTPTransport{
		now:          time.Now,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		userAgent:    DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}

	var base http.RoundTripper
	if t.customClient {
		base = t.client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
	} else {
		rt, err := t.newRoundTripper()
		if err != nil {
			return nil, err
		}
		base = rt
		t.client = &http.Client{}
	}

	client := *t.client
	client.Transport = &headerInjectingTransport{base: base, lookup: t.sites, userAgent: t.userAgent}
	if client.Timeout == 0 {
		client.Timeout = t.timeout
	}
	client.CheckRedirect = t.checkRedirect
	t.client = &client
	return t, nil
}

func (t *HTTPTransport) newRoundTripper() (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: t.timeout, KeepAlive: 30 * time.Second}

	rt := &http.Transport{
		Proxy:                 nil,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if t.proxyAddress == "" {
		rt.DialContext = dialer.DialContext
		if t.dialControl != nil {
			guarded := *dialer
			guarded.Control = t.dialControl
			rt.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if t.dialBypass != nil {
					if host, _, err := net.SplitHostPort(addr); err == nil && t.dialBypass(host) {
						return dialer.DialContext(ctx, network, addr)
					}
				}
				return guarded.DialContext(ctx, network, addr)
			}
		}
		return rt, nil
	}

	socks, err := proxy.SOCKS5("tcp", t.proxyAddress, nil, dialer)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	if cd, ok := socks.(proxy.ContextDialer); ok {
		rt.DialContext = cd.DialContext
	} else {
		rt.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return socks.Dial(network, addr)
		}
	}
	// Proxied connections are fewer and slower; keep the pool small.
	rt.MaxIdleConnsPerHost = 2
	rt.IdleConnTimeout = 30 * time.Second
	return rt, nil
}

func (t *HTTPTransport) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > t.maxRedirects {
		return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, t.maxRedirects)
	}
	if t.redirectCheck != nil {
		if err := t.redirectCheck(req.Context(), req.URL); err != nil {
			return err
		}
	}
	return nil
}

// Schemes implements Transport.
func (t *HTTPTransport) Schemes() []string {
	return []string{"http", "https"}
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, location string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, unwrapURLError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, t.statusError(location, resp)
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: %s declares %d bytes, limit is %d", ErrTooLarge, location, resp.ContentLength, limit)
	}
	return readLimited(resp.Body, limit, location)
}

// Exists implements Transport using a HEAD request.
func (t *HTTPTransport) Exists(ctx context.Context, location string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
	if err != nil {
		return false, fmt.Errorf("invalid location %q: %w", location, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, unwrapURLError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	default:
		return false, t.statusError(location, resp)
	}
}

func (t *HTTPTransport) statusError(location string, resp *http.Response) *StatusError {
	se := &StatusError{Location: location, StatusCode: resp.StatusCode}
	se.RetryAfter, se.HasRetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), t.now())
	return se
}

// unwrapURLError drops the *url.Error layer that http.Client adds around
// CheckRedirect failures so the sentinel underneath stays visible to
// errors.Is while the message keeps the URL.
func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return fmt.Errorf("%s %q: %w", ue.Op, ue.URL, ue.Err)
	}
	return err
}
