package main

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nao1215/burrow/internal/config"
)

// envPrefix prefixes the environment variable of every flag: --max-depth
// is read from BURROW_MAX_DEPTH.
const envPrefix = "BURROW"

// Flags shared by every command.
const (
	flagConfig          = "config"
	flagVerbose         = "verbose"
	flagLogJSON         = "log-json"
	flagTimeout         = "timeout"
	flagMaxManifestSize = "max-manifest-size"
	flagMaxEntrySize    = "max-entry-size"
	flagMaxRedirects    = "max-redirects"
	flagParentWalk      = "parent-walk"
	flagRetries         = "retries"
	flagRetryBackoff    = "retry-backoff"
	flagCacheTTL        = "cache-ttl"
	flagPersistCache    = "persist-cache"
	flagCacheDir        = "cache-dir"
	flagDBDir           = "db-dir"
	flagConcurrency     = "concurrency"
	flagMinDelay        = "min-delay"
	flagThrottleBackoff = "throttle-backoff"
	flagAllowPrivate    = "allow-private"
	flagAllowHost       = "allow-host"
	flagProxy           = "proxy"
	flagProxyDNSCheck   = "proxy-dns-check"
	flagTor             = "tor"
	flagTorTimeout      = "tor-timeout"
	flagUserAgent       = "user-agent"
)

// Flags of the traverse command.
const (
	flagMaxDepth    = "max-depth"
	flagMaxEntries  = "max-entries"
	flagSkipOnError = "skip-on-error"
	flagPrefetch    = "prefetch"
	flagJSON        = "json"
	flagMarkdown    = "markdown"
	flagOutput      = "output"
	flagNoHistory   = "no-history"
)

// addGlobalFlags registers the flags every command understands.
func addGlobalFlags(cmd *cobra.Command) {
	defaults := config.NewConfig()
	f := cmd.PersistentFlags()

	f.StringP(flagConfig, "c", "",
		"Configuration file path (default: .burrow.yaml in current directory, XDG config dir or home)")
	f.BoolP(flagVerbose, "v", false, "Enable verbose logging")
	f.Bool(flagLogJSON, false, "Write log output as JSON")

	// Limits
	f.DurationP(flagTimeout, "t", defaults.Limits.Timeout,
		"Timeout for each operation, including retries")
	f.String(flagMaxManifestSize, units.BytesSize(float64(defaults.Limits.MaxManifestBytes)),
		"Maximum manifest size (e.g. 512KiB, 10MB)")
	f.String(flagMaxEntrySize, units.BytesSize(float64(defaults.Limits.MaxEntryBytes)),
		"Maximum entry content size")
	f.Int(flagMaxRedirects, defaults.Limits.MaxRedirects, "Maximum redirects followed per request")

	// Discovery and retries
	f.Int(flagParentWalk, defaults.ParentWalkDepth,
		"Parent directories searched when no manifest is found at the location")
	f.Int(flagRetries, defaults.RetryAttempts, "Attempts for recoverable failures, including the first")
	f.Duration(flagRetryBackoff, defaults.RetryBackoff, "Base backoff between attempts, doubled each time")

	// Cache and storage
	f.Duration(flagCacheTTL, defaults.CacheTTL, "How long fetched documents are reused")
	f.Bool(flagPersistCache, false, "Keep the cache in SQLite across runs")
	f.String(flagCacheDir, defaults.CacheDir, "Directory of the persistent cache")
	f.String(flagDBDir, defaults.DBDir, "Directory of the traversal history database")

	// Pacing
	f.Int(flagConcurrency, defaults.HostConcurrency, "Maximum in-flight requests per host")
	f.Duration(flagMinDelay, defaults.HostMinDelay, "Minimum interval between requests to one host")
	f.Duration(flagThrottleBackoff, defaults.ThrottleBackoff,
		"Pause after 429/503 responses without Retry-After")

	// Network
	f.Bool(flagAllowPrivate, false, "Allow private, loopback and link-local addresses")
	f.StringSlice(flagAllowHost, nil, "Host, IP or CIDR exempt from address blocking (repeatable)")
	f.StringP(flagProxy, "x", "", "SOCKS5 proxy address (e.g. 127.0.0.1:9050)")
	f.Bool(flagProxyDNSCheck, false, "Resolve host names locally when proxied and block private results")
	f.Bool(flagTor, false, "Start an embedded Tor daemon and route traffic through it")
	f.Duration(flagTorTimeout, defaults.TorStartupTimeout, "Timeout for embedded Tor startup")
	f.String(flagUserAgent, defaults.UserAgent, "User-Agent header for HTTP requests")
}

// newViper binds the command's flags and their BURROW_* environment
// variables. A value counts as set when the flag was given or the variable
// exists.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// override copies a flag value onto dst when the user set it.
func override[T any](v *viper.Viper, key string, get func(string) T, dst *T) {
	if v.IsSet(key) {
		*dst = get(key)
	}
}

// overrideSize is override for human-readable sizes.
func overrideSize(v *viper.Viper, key string, dst *int64) error {
	if !v.IsSet(key) {
		return nil
	}
	n, err := units.RAMInBytes(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", key, err)
	}
	*dst = n
	return nil
}

// buildConfig layers defaults, the configuration file, and flags or
// environment variables, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, *viper.Viper, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, nil, err
	}

	cfg := config.NewConfig()
	cfg.ConfigFilePath = v.GetString(flagConfig)

	// An explicitly named file must exist; otherwise a missing file just
	// means defaults.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.Apply(f)
	case cfg.ConfigFilePath != "":
		return nil, nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.Verbose = v.GetBool(flagVerbose)

	override(v, flagTimeout, v.GetDuration, &cfg.Limits.Timeout)
	if err := overrideSize(v, flagMaxManifestSize, &cfg.Limits.MaxManifestBytes); err != nil {
		return nil, nil, err
	}
	if err := overrideSize(v, flagMaxEntrySize, &cfg.Limits.MaxEntryBytes); err != nil {
		return nil, nil, err
	}
	override(v, flagMaxRedirects, v.GetInt, &cfg.Limits.MaxRedirects)
	override(v, flagMaxDepth, v.GetInt, &cfg.Limits.MaxDepth)
	override(v, flagMaxEntries, v.GetInt, &cfg.Limits.MaxEntries)

	override(v, flagParentWalk, v.GetInt, &cfg.ParentWalkDepth)
	override(v, flagRetries, v.GetInt, &cfg.RetryAttempts)
	override(v, flagRetryBackoff, v.GetDuration, &cfg.RetryBackoff)

	override(v, flagCacheTTL, v.GetDuration, &cfg.CacheTTL)
	override(v, flagPersistCache, v.GetBool, &cfg.PersistCache)
	override(v, flagCacheDir, v.GetString, &cfg.CacheDir)
	override(v, flagDBDir, v.GetString, &cfg.DBDir)

	override(v, flagConcurrency, v.GetInt, &cfg.HostConcurrency)
	override(v, flagMinDelay, v.GetDuration, &cfg.HostMinDelay)
	override(v, flagThrottleBackoff, v.GetDuration, &cfg.ThrottleBackoff)

	override(v, flagAllowPrivate, v.GetBool, &cfg.AllowPrivate)
	override(v, flagAllowHost, v.GetStringSlice, &cfg.AllowHosts)
	override(v, flagProxy, v.GetString, &cfg.ProxyAddress)
	override(v, flagProxyDNSCheck, v.GetBool, &cfg.ProxyDNSCheck)
	override(v, flagTor, v.GetBool, &cfg.UseEmbeddedTor)
	override(v, flagTorTimeout, v.GetDuration, &cfg.TorStartupTimeout)
	override(v, flagUserAgent, v.GetString, &cfg.UserAgent)

	override(v, flagSkipOnError, v.GetBool, &cfg.SkipOnError)
	override(v, flagPrefetch, v.GetInt, &cfg.PrefetchWorkers)
	override(v, flagJSON, v.GetBool, &cfg.JSONReport)
	override(v, flagMarkdown, v.GetBool, &cfg.MarkdownReport)
	override(v, flagOutput, v.GetString, &cfg.ReportFile)
	cfg.SaveHistory = !v.GetBool(flagNoHistory)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	if cfg.UseEmbeddedTor && cfg.ProxyAddress != "" {
		return nil, nil, errTorWithProxy
	}
	return cfg, v, nil
}
