package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidTimeout is returned when the operation timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxDepth is returned when the traversal depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxEntries is returned when the entry ceiling is not positive.
	ErrInvalidMaxEntries = errors.New("invalid max entries: must be positive")

	// ErrInvalidManifestSize is returned when a size ceiling is not positive.
	ErrInvalidManifestSize = errors.New("invalid size limit: manifest and entry limits must be positive")

	// ErrInvalidRedirects is returned when the redirect ceiling is negative.
	ErrInvalidRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrInvalidCacheTTL is returned when the cache TTL is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL: must be non-negative")

	// ErrInvalidRetryAttempts is returned when fewer than one attempt is allowed.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts: must be at least 1")

	// ErrInvalidConcurrency is returned when per-host concurrency is below
	// one or the prefetch pool size is negative.
	ErrInvalidConcurrency = errors.New("invalid concurrency: host concurrency must be positive and prefetch workers non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidRateDelay is returned when a delay or backoff is negative.
	ErrInvalidRateDelay = errors.New("invalid delay: rate delays and backoffs must be non-negative")

	// ErrInvalidParentWalk is returned when the parent walk depth is negative.
	ErrInvalidParentWalk = errors.New("invalid parent walk depth: must be non-negative")

	// ErrInvalidProxyAddress is returned when the proxy is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")
)
