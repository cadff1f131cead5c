package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig documents the defaults; a failure here means a default
// changed.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default limits", func(t *testing.T) {
		t.Parallel()
		if cfg.Limits.MaxManifestBytes != 10<<20 {
			t.Errorf("expected MaxManifestBytes 10MiB, got %d", cfg.Limits.MaxManifestBytes)
		}
		if cfg.Limits.MaxEntryBytes != 100<<20 {
			t.Errorf("expected MaxEntryBytes 100MiB, got %d", cfg.Limits.MaxEntryBytes)
		}
		if cfg.Limits.MaxEntries != 1000 {
			t.Errorf("expected MaxEntries 1000, got %d", cfg.Limits.MaxEntries)
		}
		if cfg.Limits.MaxDepth != 5 {
			t.Errorf("expected MaxDepth 5, got %d", cfg.Limits.MaxDepth)
		}
		if cfg.Limits.Timeout != 30*time.Second {
			t.Errorf("expected Timeout 30s, got %v", cfg.Limits.Timeout)
		}
	})

	t.Run("default cache TTL is 5 minutes", func(t *testing.T) {
		t.Parallel()
		if cfg.CacheTTL != 5*time.Minute {
			t.Errorf("expected CacheTTL 5m, got %v", cfg.CacheTTL)
		}
	})

	t.Run("default retry is 3 attempts", func(t *testing.T) {
		t.Parallel()
		if cfg.RetryAttempts != 3 {
			t.Errorf("expected RetryAttempts 3, got %d", cfg.RetryAttempts)
		}
	})

	t.Run("default parent walk depth is 2", func(t *testing.T) {
		t.Parallel()
		if cfg.ParentWalkDepth != 2 {
			t.Errorf("expected ParentWalkDepth 2, got %d", cfg.ParentWalkDepth)
		}
	})

	t.Run("private addresses are blocked by default", func(t *testing.T) {
		t.Parallel()
		if cfg.AllowPrivate {
			t.Error("expected AllowPrivate to be false")
		}
	})

	t.Run("skip on error is enabled", func(t *testing.T) {
		t.Parallel()
		if !cfg.SkipOnError {
			t.Error("expected SkipOnError to be true")
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"zero timeout", func(c *Config) { c.Limits.Timeout = 0 }, ErrInvalidTimeout},
		{"negative depth", func(c *Config) { c.Limits.MaxDepth = -1 }, ErrInvalidMaxDepth},
		{"zero depth is valid", func(c *Config) { c.Limits.MaxDepth = 0 }, nil},
		{"zero entries", func(c *Config) { c.Limits.MaxEntries = 0 }, ErrInvalidMaxEntries},
		{"zero manifest size", func(c *Config) { c.Limits.MaxManifestBytes = 0 }, ErrInvalidManifestSize},
		{"zero entry size", func(c *Config) { c.Limits.MaxEntryBytes = 0 }, ErrInvalidManifestSize},
		{"negative redirects", func(c *Config) { c.Limits.MaxRedirects = -1 }, ErrInvalidRedirects},
		{"negative parent walk", func(c *Config) { c.ParentWalkDepth = -1 }, ErrInvalidParentWalk},
		{"negative TTL", func(c *Config) { c.CacheTTL = -time.Second }, ErrInvalidCacheTTL},
		{"zero TTL is valid", func(c *Config) { c.CacheTTL = 0 }, nil},
		{"zero attempts", func(c *Config) { c.RetryAttempts = 0 }, ErrInvalidRetryAttempts},
		{"zero concurrency", func(c *Config) { c.HostConcurrency = 0 }, ErrInvalidConcurrency},
		{"negative prefetch", func(c *Config) { c.PrefetchWorkers = -1 }, ErrInvalidConcurrency},
		{"negative delay", func(c *Config) { c.HostMinDelay = -time.Millisecond }, ErrInvalidRateDelay},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Millisecond }, ErrInvalidRateDelay},
		{"both report formats", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"bad proxy", func(c *Config) { c.ProxyAddress = "localhost" }, ErrInvalidProxyAddress},
		{"good proxy", func(c *Config) { c.ProxyAddress = "127.0.0.1:9050" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir %q does not end in %q", name, dir, AppName)
		}
	}
}

const sampleFile = `
defaults:
  headers:
    X-Client: burrow
  minDelay: 250ms
  concurrency: 2
sites:
  docs.example.org:
    cookie: "session=abc"
    headers:
      Authorization: "Bearer t"
    concurrency: 1
    ignorePatterns: ["/drafts/*"]
limits:
  maxManifestSize: 2MiB
  maxEntrySize: 1048576
  maxEntries: 50
  maxDepth: 0
  timeout: 10s
cache:
  ttl: 1m
  persist: true
retry:
  attempts: 5
  backoff: 100ms
traversal:
  parentWalkDepth: 1
  skipOnError: false
  prefetch: 0
allowPrivate: true
allowHosts: ["10.0.0.0/8"]
proxy: "127.0.0.1:9150"
proxyDNSCheck: true
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(writeFile(t, "limits: [unclosed"))
		if err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("bad size", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(writeFile(t, "limits:\n  maxManifestSize: lots\n"))
		if err == nil {
			t.Error("expected size error")
		}
	})

	t.Run("empty file gets a sites map", func(t *testing.T) {
		t.Parallel()
		f, err := LoadConfigFile(writeFile(t, ""))
		if err != nil {
			t.Fatal(err)
		}
		if f.Sites == nil {
			t.Error("expected non-nil Sites")
		}
	})

	t.Run("full file applies", func(t *testing.T) {
		t.Parallel()
		f, err := LoadConfigFile(writeFile(t, sampleFile))
		if err != nil {
			t.Fatal(err)
		}
		cfg := NewConfig()
		cfg.Apply(f)

		if cfg.Limits.MaxManifestBytes != 2<<20 {
			t.Errorf("MaxManifestBytes = %d", cfg.Limits.MaxManifestBytes)
		}
		if cfg.Limits.MaxEntryBytes != 1<<20 {
			t.Errorf("MaxEntryBytes = %d", cfg.Limits.MaxEntryBytes)
		}
		if cfg.Limits.MaxEntries != 50 || cfg.Limits.MaxDepth != 0 {
			t.Errorf("entries/depth = %d/%d", cfg.Limits.MaxEntries, cfg.Limits.MaxDepth)
		}
		if cfg.Limits.MaxRedirects != 5 {
			t.Errorf("unset MaxRedirects changed to %d", cfg.Limits.MaxRedirects)
		}
		if cfg.Limits.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v", cfg.Limits.Timeout)
		}
		if cfg.CacheTTL != time.Minute || !cfg.PersistCache {
			t.Errorf("cache = %v/%v", cfg.CacheTTL, cfg.PersistCache)
		}
		if cfg.RetryAttempts != 5 || cfg.RetryBackoff != 100*time.Millisecond {
			t.Errorf("retry = %d/%v", cfg.RetryAttempts, cfg.RetryBackoff)
		}
		if cfg.ParentWalkDepth != 1 || cfg.SkipOnError || cfg.PrefetchWorkers != 0 {
			t.Errorf("traversal = %d/%v/%d", cfg.ParentWalkDepth, cfg.SkipOnError, cfg.PrefetchWorkers)
		}
		if cfg.HostMinDelay != 250*time.Millisecond || cfg.HostConcurrency != 2 {
			t.Errorf("host pacing = %v/%d", cfg.HostMinDelay, cfg.HostConcurrency)
		}
		if !cfg.AllowPrivate || len(cfg.AllowHosts) != 1 {
			t.Errorf("allow = %v/%v", cfg.AllowPrivate, cfg.AllowHosts)
		}
		if cfg.ProxyAddress != "127.0.0.1:9150" || !cfg.Proxied() || !cfg.ProxyDNSCheck {
			t.Errorf("proxy = %q, dns check %v", cfg.ProxyAddress, cfg.ProxyDNSCheck)
		}
		if cfg.UserAgent != DefaultUserAgent {
			t.Errorf("unset UserAgent changed to %q", cfg.UserAgent)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("applied config should validate: %v", err)
		}
	})
}

func TestGetSiteConfig(t *testing.T) {
	t.Parallel()

	f := &File{
		Defaults: SiteConfig{
			Headers:  map[string]string{"X-Client": "burrow"},
			MinDelay: time.Second,
		},
		Sites: map[string]SiteConfig{
			"docs.example.org": {
				Cookie:  "session=abc",
				Headers: map[string]string{"Authorization": "Bearer t"},
			},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()
		sc := f.GetSiteConfig("other.example.org")
		if sc.Cookie != "" || sc.Headers["X-Client"] != "burrow" || sc.MinDelay != time.Second {
			t.Errorf("unexpected %+v", sc)
		}
	})

	t.Run("site merges over defaults", func(t *testing.T) {
		t.Parallel()
		sc := f.GetSiteConfig("DOCS.example.org")
		if sc.Cookie != "session=abc" {
			t.Errorf("cookie = %q", sc.Cookie)
		}
		if sc.Headers["X-Client"] != "burrow" || sc.Headers["Authorization"] != "Bearer t" {
			t.Errorf("headers = %v", sc.Headers)
		}
	})

	t.Run("merging does not modify defaults", func(t *testing.T) {
		t.Parallel()
		_ = f.GetSiteConfig("docs.example.org")
		if _, ok := f.Defaults.Headers["Authorization"]; ok {
			t.Error("defaults were modified")
		}
	})
}

func TestSiteLookupAndHostLimits(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if cfg.SiteLookup() != nil {
		t.Error("expected nil lookup without a file")
	}
	if len(cfg.HostLimits()) != 0 {
		t.Error("expected no host limits without a file")
	}

	cfg.Apply(&File{
		Sites: map[string]SiteConfig{
			"Slow.Example.org": {MinDelay: 2 * time.Second, Concurrency: 1},
			"auth.example.org": {Cookie: "a=b"},
		},
	})

	lookup := cfg.SiteLookup()
	if site, ok := lookup("auth.example.org"); !ok || site.Cookie != "a=b" {
		t.Errorf("lookup = %+v, %v", site, ok)
	}
	if _, ok := lookup("plain.example.org"); ok {
		t.Error("expected no site for plain host")
	}

	limits := cfg.HostLimits()
	if got := limits["slow.example.org"]; got.Concurrency != 1 || got.MinDelay != 2*time.Second {
		t.Errorf("host limit = %+v", got)
	}
	if _, ok := limits["auth.example.org"]; ok {
		t.Error("host without pacing should have no limit")
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "")
	if got := FindConfigFile(path); got != path {
		t.Errorf("FindConfigFile(%q) = %q", path, got)
	}
	if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
		t.Errorf("expected empty for missing explicit path, got %q", got)
	}
}
