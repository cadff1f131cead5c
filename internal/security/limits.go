package security

import "time"

// Limits are the resource ceilings enforced on every operation.
type Limits struct {
	// MaxManifestBytes caps the size of a manifest document.
	MaxManifestBytes int64

	// MaxEntryBytes caps the size of fetched entry content.
	MaxEntryBytes int64

	// MaxEntries stops a traversal after this many entry events.
	MaxEntries int

	// MaxDepth is the deepest nesting level a traversal expands.
	// The root manifest's entries are at depth 0.
	MaxDepth int

	// MaxRedirects is the longest redirect chain a fetch follows.
	MaxRedirects int

	// Timeout bounds a single operation, including retries and rate
	// limiter waits.
	Timeout time.Duration
}

// Default limit values.
const (
	DefaultMaxManifestBytes = 10 << 20
	DefaultMaxEntryBytes    = 100 << 20
	DefaultMaxEntries       = 1000
	DefaultMaxDepth         = 5
	DefaultMaxRedirects     = 5
	DefaultTimeout          = 30 * time.Second
)

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxManifestBytes: DefaultMaxManifestBytes,
		MaxEntryBytes:    DefaultMaxEntryBytes,
		MaxEntries:       DefaultMaxEntries,
		MaxDepth:         DefaultMaxDepth,
		MaxRedirects:     DefaultMaxRedirects,
		Timeout:          DefaultTimeout,
	}
}
