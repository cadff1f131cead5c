package config

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// SiteConfig holds settings for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent to this host.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are extra HTTP headers sent to this host.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MinDelay overrides the minimum interval between requests to this host.
	MinDelay time.Duration `yaml:"minDelay,omitempty"`

	// Concurrency overrides the in-flight request bound for this host.
	Concurrency int `yaml:"concurrency,omitempty"`

	// IgnorePatterns are glob patterns over entry location paths that a
	// traversal skips.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, restrict a traversal to entries whose
	// location path matches one of them.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// ByteSize is a size that decodes from either an integer or a
// human-readable string such as "10MB" or "512KiB".
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("size: %w", err)
	}
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}

// LimitsFile is the "limits" section. Zero values keep the defaults.
type LimitsFile struct {
	MaxManifestSize ByteSize      `yaml:"maxManifestSize,omitempty"`
	MaxEntrySize    ByteSize      `yaml:"maxEntrySize,omitempty"`
	MaxEntries      int           `yaml:"maxEntries,omitempty"`
	MaxDepth        *int          `yaml:"maxDepth,omitempty"`
	MaxRedirects    *int          `yaml:"maxRedirects,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
}

// CacheFile is the "cache" section.
type CacheFile struct {
	TTL     *time.Duration `yaml:"ttl,omitempty"`
	Persist *bool          `yaml:"persist,omitempty"`
	Dir     string         `yaml:"dir,omitempty"`
}

// RetryFile is the "retry" section.
type RetryFile struct {
	Attempts int           `yaml:"attempts,omitempty"`
	Backoff  time.Duration `yaml:"backoff,omitempty"`
}

// TraversalFile is the "traversal" section.
type TraversalFile struct {
	ParentWalkDepth *int  `yaml:"parentWalkDepth,omitempty"`
	SkipOnError     *bool `yaml:"skipOnError,omitempty"`
	Prefetch        *int  `yaml:"prefetch,omitempty"`
}

// File represents the structure of the .burrow.yaml configuration file.
type File struct {
	// Sites maps host names to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every host unless a site overrides them.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	Limits    LimitsFile    `yaml:"limits,omitempty"`
	Cache     CacheFile     `yaml:"cache,omitempty"`
	Retry     RetryFile     `yaml:"retry,omitempty"`
	Traversal TraversalFile `yaml:"traversal,omitempty"`

	AllowPrivate  *bool    `yaml:"allowPrivate,omitempty"`
	AllowHosts    []string `yaml:"allowHosts,omitempty"`
	Proxy         string   `yaml:"proxy,omitempty"`
	ProxyDNSCheck *bool    `yaml:"proxyDNSCheck,omitempty"`
	UserAgent     string   `yaml:"userAgent,omitempty"`
}

// GetSiteConfig returns the settings for host, merged over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		siteConfig, ok = cf.Sites[strings.ToLower(host)]
	}
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if siteConfig.MinDelay != 0 {
		result.MinDelay = siteConfig.MinDelay
	}
	if siteConfig.Concurrency != 0 {
		result.Concurrency = siteConfig.Concurrency
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}

// Apply copies the settings present in f onto c. Fields f leaves unset keep
// their current values.
func (c *Config) Apply(f *File) {
	if f == nil {
		return
	}
	c.SiteConfigs = f

	l := f.Limits
	if l.MaxManifestSize > 0 {
		c.Limits.MaxManifestBytes = int64(l.MaxManifestSize)
	}
	if l.MaxEntrySize > 0 {
		c.Limits.MaxEntryBytes = int64(l.MaxEntrySize)
	}
	if l.MaxEntries > 0 {
		c.Limits.MaxEntries = l.MaxEntries
	}
	if l.MaxDepth != nil {
		c.Limits.MaxDepth = *l.MaxDepth
	}
	if l.MaxRedirects != nil {
		c.Limits.MaxRedirects = *l.MaxRedirects
	}
	if l.Timeout > 0 {
		c.Limits.Timeout = l.Timeout
	}

	if f.Cache.TTL != nil {
		c.CacheTTL = *f.Cache.TTL
	}
	if f.Cache.Persist != nil {
		c.PersistCache = *f.Cache.Persist
	}
	if f.Cache.Dir != "" {
		c.CacheDir = f.Cache.Dir
	}

	if f.Retry.Attempts > 0 {
		c.RetryAttempts = f.Retry.Attempts
	}
	if f.Retry.Backoff > 0 {
		c.RetryBackoff = f.Retry.Backoff
	}

	if f.Traversal.ParentWalkDepth != nil {
		c.ParentWalkDepth = *f.Traversal.ParentWalkDepth
	}
	if f.Traversal.SkipOnError != nil {
		c.SkipOnError = *f.Traversal.SkipOnError
	}
	if f.Traversal.Prefetch != nil {
		c.PrefetchWorkers = *f.Traversal.Prefetch
	}

	if f.Defaults.MinDelay > 0 {
		c.HostMinDelay = f.Defaults.MinDelay
	}
	if f.Defaults.Concurrency > 0 {
		c.HostConcurrency = f.Defaults.Concurrency
	}

	if f.AllowPrivate != nil {
		c.AllowPrivate = *f.AllowPrivate
	}
	if len(f.AllowHosts) > 0 {
		c.AllowHosts = append([]string(nil), f.AllowHosts...)
	}
	if f.Proxy != "" {
		c.ProxyAddress = f.Proxy
	}
	if f.ProxyDNSCheck != nil {
		c.ProxyDNSCheck = *f.ProxyDNSCheck
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}
}
