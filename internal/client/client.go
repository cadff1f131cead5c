package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/burrow/internal/cache"
	"github.com/nao1215/burrow/internal/config"
	"github.com/nao1215/burrow/internal/ratelimit"
	"github.com/nao1215/burrow/internal/report"
	"github.com/nao1215/burrow/internal/security"
	"github.com/nao1215/burrow/internal/transport"
)

// maxRetryBackoff caps the exponential backoff between attempts.
const maxRetryBackoff = 30 * time.Second

// Client discovers, traverses and fetches burrows. It is safe for
// concurrent use.
type Client struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *transport.Registry
	validator *security.Validator
	cache     *cache.Manager
	limiter   *ratelimit.Limiter
	now       func() time.Time
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	transports []transport.Transport
	store      cache.Store
	resolver   security.Resolver
	httpClient *http.Client
	now        func() time.Time
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport registers an additional transport. A transport declaring
// http, https or file replaces the built-in one for that scheme.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transports = append(o.transports, t)
	}
}

// WithCacheStore replaces the in-memory cache store.
func WithCacheStore(s cache.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithResolver sets the resolver used to vet host names before fetching.
// The default is net.DefaultResolver; proxied clients never resolve.
func WithResolver(r security.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithHTTPClient replaces the HTTP client of the built-in transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithClock replaces time.Now for cache freshness and attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New builds a Client from cfg. A nil cfg means config.NewConfig().
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := options{
		logger:   slog.Default(),
		resolver: net.DefaultResolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:    *cfg,
		logger: o.logger,
		now:    o.now,
	}

	c.validator = security.NewValidator(
		security.WithAllowPrivate(cfg.AllowPrivate),
		security.WithAllowHosts(cfg.AllowHosts...),
		security.WithProxy(cfg.Proxied()),
		security.WithProxyDNSCheck(cfg.ProxyDNSCheck),
		security.WithLimits(cfg.Limits),
		security.WithResolver(o.resolver),
	)

	httpOpts := []transport.HTTPOption{
		transport.WithTimeout(cfg.Limits.Timeout),
		transport.WithMaxRedirects(cfg.Limits.MaxRedirects),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithSites(cfg.SiteLookup()),
		transport.WithRedirectCheck(func(ctx context.Context, target *url.URL) error {
			return c.validator.Check(ctx, target.String())
		}),
	}
	if cfg.ProxyAddress != "" {
		httpOpts = append(httpOpts, transport.WithProxy(cfg.ProxyAddress))
	} else if !cfg.AllowPrivate {
		httpOpts = append(httpOpts,
			transport.WithDialControl(c.validator.DialControl),
			transport.WithDialBypass(c.validator.Allowed),
		)
	}
	if o.httpClient != nil {
		httpOpts = append(httpOpts, transport.WithHTTPClient(o.httpClient))
	}
	httpTransport, err := transport.NewHTTPTransport(httpOpts...)
	if err != nil {
		return nil, err
	}

	c.registry = transport.NewRegistry(httpTransport, transport.NewFileTransport())
	for _, t := range o.transports {
		if err := c.registry.Register(t); err != nil {
			return nil, err
		}
	}

	cacheOpts := []cache.Option{
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(o.logger),
		cache.WithClock(o.now),
	}
	if o.store != nil {
		cacheOpts = append(cacheOpts, cache.WithStore(o.store))
	}
	c.cache = cache.NewManager(cacheOpts...)

	c.limiter = ratelimit.New(
		ratelimit.WithConcurrency(cfg.HostConcurrency),
		ratelimit.WithMinDelay(cfg.HostMinDelay),
		ratelimit.WithThrottleBackoff(cfg.ThrottleBackoff),
		ratelimit.WithHostLimits(cfg.HostLimits()),
	)
	return c, nil
}

// Config returns a copy of the configuration the client was built from.
func (c *Client) Config() config.Config {
	return c.cfg
}

// Schemes lists the schemes the client can fetch.
func (c *Client) Schemes() []string {
	return c.registry.Schemes()
}

// CacheStats returns the cache counters.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// Invalidate drops the cached copy of location.
func (c *Client) Invalidate(ctx context.Context, location string) error {
	loc, err := security.NormalizeLocation(location)
	if err != nil {
		return err
	}
	return c.cache.Invalidate(ctx, loc)
}

// Exists reports whether location exists, without reading it through the
// cache.
func (c *Client) Exists(ctx context.Context, location string) (bool, error) {
	loc, err := security.NormalizeLocation(location)
	if err != nil {
		return false, &Error{Category: categorize(err, report.CategoryEntryNotFound), Op: "exists", Location: location, Err: err}
	}
	if err := c.validator.Check(ctx, loc); err != nil {
		return false, &Error{Category: categorize(err, report.CategoryEntryNotFound), Op: "exists", Location: loc, Err: err}
	}
	release, err := c.limiter.Acquire(ctx, hostOf(loc))
	if err != nil {
		return false, &Error{Category: report.CategoryTimeout, Op: "exists", Location: loc, Err: err}
	}
	defer release()
	ok, err := c.registry.Exists(ctx, loc)
	if err != nil {
		return false, &Error{Category: categorize(err, report.CategoryEntryNotFound), Op: "exists", Location: loc, Err: err}
	}
	return ok, nil
}

// hostOf returns the rate-limit key for location; local files have none.
func hostOf(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "file" {
		return ""
	}
	return u.Hostname()
}
