package report

// Category classifies a failure. Category implements error so a category
// can be matched with errors.Is against any error the client returns.
type Category string

// Failure categories.
const (
	// CategoryManifestInvalid: the document was fetched but rejected.
	CategoryManifestInvalid Category = "manifest-invalid"

	// CategoryManifestNotFound: discovery exhausted every candidate.
	CategoryManifestNotFound Category = "manifest-not-found"

	// CategoryEntryNotFound: an entry's location or id does not exist.
	CategoryEntryNotFound Category = "entry-not-found"

	// CategoryTransportError: the transport failed or the location was
	// refused by the security policy.
	CategoryTransportError Category = "transport-error"

	// CategoryHashMismatch: fetched bytes do not match the declared hash.
	CategoryHashMismatch Category = "hash-mismatch"

	// CategoryTimeout: the operation ran out of time.
	CategoryTimeout Category = "timeout"

	// CategoryRateLimited: the remote kept throttling after all retries.
	CategoryRateLimited Category = "rate-limited"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryManifestInvalid,
	CategoryManifestNotFound,
	CategoryEntryNotFound,
	CategoryTransportError,
	CategoryHashMismatch,
	CategoryTimeout,
	CategoryRateLimited,
}

// Error implements error.
func (c Category) Error() string {
	return string(c)
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// Recoverable reports whether failures of this category are retried.
func (c Category) Recoverable() bool {
	switch c {
	case CategoryTransportError, CategoryTimeout, CategoryRateLimited:
		return true
	default:
		return false
	}
}
