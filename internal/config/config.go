package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/burrow/internal/ratelimit"
	"github.com/nao1215/burrow/internal/security"
	"github.com/nao1215/burrow/internal/tor"
	"github.com/nao1215/burrow/internal/transport"
)

// Default configuration values not covered by security.DefaultLimits.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "burrow"

	// DefaultParentWalkDepth is how many directory levels discovery climbs
	// above the given location.
	DefaultParentWalkDepth = 2

	// DefaultCacheTTL is how long fetched documents are reused.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultRetryAttempts counts the first try.
	DefaultRetryAttempts = 3

	// DefaultRetryBackoff is the wait before the second attempt; each later
	// attempt doubles it.
	DefaultRetryBackoff = 500 * time.Millisecond

	// DefaultPrefetchWorkers is the number of nested manifests discovered
	// ahead of the traversal queue.
	DefaultPrefetchWorkers = 4

	// DefaultUserAgent identifies the client in HTTP requests.
	DefaultUserAgent = "burrow/1.0 (+https://github.com/nao1215/burrow)"

	// DefaultTorStartupTimeout bounds embedded Tor bootstrap.
	DefaultTorStartupTimeout = tor.DefaultStartupTimeout
)

// Config holds every setting of a client and its command-line surface.
// It is populated once and passed to constructors; nothing reads global
// state.
type Config struct {
	// Limits are the resource ceilings enforced by the security validator
	// and the traversal engine.
	Limits security.Limits

	// ParentWalkDepth is how many parent directories discovery tries when
	// nothing is found at the given location.
	ParentWalkDepth int

	// CacheTTL is the freshness window of cached documents.
	CacheTTL time.Duration

	// PersistCache stores the cache in SQLite under CacheDir instead of
	// in memory.
	PersistCache bool

	// CacheDir is the directory of the persistent cache database.
	CacheDir string

	// RetryAttempts is the total number of tries for recoverable failures.
	RetryAttempts int

	// RetryBackoff is the base of the exponential backoff between tries.
	RetryBackoff time.Duration

	// HostConcurrency bounds in-flight requests per host.
	HostConcurrency int

	// HostMinDelay is the minimum interval between request starts per host.
	HostMinDelay time.Duration

	// ThrottleBackoff is the pause after a throttling response that does not
	// carry Retry-After.
	ThrottleBackoff time.Duration

	// AllowPrivate disables private and loopback address blocking.
	AllowPrivate bool

	// AllowHosts exempts specific hosts, IPs or CIDR ranges from blocking.
	AllowHosts []string

	// ProxyAddress routes HTTP traffic through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// ProxyDNSCheck resolves host names locally even when proxied, so
	// names pointing at private addresses stay blocked.
	ProxyDNSCheck bool

	// UseEmbeddedTor starts a Tor daemon and uses it as the proxy.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// UserAgent is sent with every HTTP request.
	UserAgent string

	// SkipOnError keeps a traversal going after an entry fails.
	SkipOnError bool

	// PrefetchWorkers sizes the nested-manifest prefetch pool. Zero
	// disables prefetching.
	PrefetchWorkers int

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport and MarkdownReport select the traversal report format.
	// They are mutually exclusive; neither means plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit .burrow.yaml location.
	ConfigFilePath string

	// SiteConfigs is the loaded configuration file, if any.
	SiteConfigs *File

	// DBDir is the directory of the traversal history database.
	DBDir string

	// SaveHistory records traversal reports in the history database.
	SaveHistory bool
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Limits:            security.DefaultLimits(),
		ParentWalkDepth:   DefaultParentWalkDepth,
		CacheTTL:          DefaultCacheTTL,
		CacheDir:          XDGCacheDir(),
		RetryAttempts:     DefaultRetryAttempts,
		RetryBackoff:      DefaultRetryBackoff,
		HostConcurrency:   ratelimit.DefaultConcurrency,
		HostMinDelay:      ratelimit.DefaultMinDelay,
		ThrottleBackoff:   ratelimit.DefaultThrottleBackoff,
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		SkipOnError:       true,
		PrefetchWorkers:   DefaultPrefetchWorkers,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the data directory (~/.local/share/burrow on Linux).
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory (~/.config/burrow on Linux).
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the cache directory (~/.cache/burrow on Linux).
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate returns the first invalid setting found.
func (c *Config) Validate() error {
	l := c.Limits
	switch {
	case l.Timeout <= 0:
		return ErrInvalidTimeout
	case l.MaxDepth < 0:
		return ErrInvalidMaxDepth
	case l.MaxEntries <= 0:
		return ErrInvalidMaxEntries
	case l.MaxManifestBytes <= 0 || l.MaxEntryBytes <= 0:
		return ErrInvalidManifestSize
	case l.MaxRedirects < 0:
		return ErrInvalidRedirects
	case c.ParentWalkDepth < 0:
		return ErrInvalidParentWalk
	case c.CacheTTL < 0:
		return ErrInvalidCacheTTL
	case c.RetryAttempts < 1:
		return ErrInvalidRetryAttempts
	case c.HostConcurrency < 1 || c.PrefetchWorkers < 0:
		return ErrInvalidConcurrency
	case c.HostMinDelay < 0 || c.ThrottleBackoff < 0 || c.RetryBackoff < 0:
		return ErrInvalidRateDelay
	case c.JSONReport && c.MarkdownReport:
		return ErrConflictingReportFormats
	}
	if c.ProxyAddress != "" {
		if err := tor.ValidateProxyAddress(c.ProxyAddress); err != nil {
			return ErrInvalidProxyAddress
		}
	}
	return nil
}

// Proxied reports whether traffic leaves through a SOCKS5 proxy.
func (c *Config) Proxied() bool {
	return c.ProxyAddress != "" || c.UseEmbeddedTor
}

// SiteLookup returns the per-host header and cookie settings for the HTTP
// transport, or nil when no configuration file was loaded.
func (c *Config) SiteLookup() transport.SiteLookup {
	if c.SiteConfigs == nil {
		return nil
	}
	f := c.SiteConfigs
	return func(host string) (transport.Site, bool) {
		sc := f.GetSiteConfig(host)
		if sc.Cookie == "" && len(sc.Headers) == 0 {
			return transport.Site{}, false
		}
		return transport.Site{Cookie: sc.Cookie, Headers: sc.Headers}, true
	}
}

// HostLimits returns the per-host pacing overrides from the configuration
// file.
func (c *Config) HostLimits() map[string]ratelimit.HostLimit {
	out := make(map[string]ratelimit.HostLimit)
	if c.SiteConfigs == nil {
		return out
	}
	for host, sc := range c.SiteConfigs.Sites {
		if sc.Concurrency > 0 || sc.MinDelay > 0 {
			out[strings.ToLower(host)] = ratelimit.HostLimit{
				Concurrency: sc.Concurrency,
				MinDelay:    sc.MinDelay,
			}
		}
	}
	return out
}
