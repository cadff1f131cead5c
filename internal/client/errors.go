package client

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/nao1215/burrow/internal/integrity"
	"github.com/nao1215/burrow/internal/manifest"
	"github.com/nao1215/burrow/internal/ratelimit"
	"github.com/nao1215/burrow/internal/report"
	"github.com/nao1215/burrow/internal/security"
	"github.com/nao1215/burrow/internal/transport"
)

// Sentinel errors of the engine. They appear as Error.Err.
var (
	// ErrNoManifest is returned when discovery exhausted every candidate.
	ErrNoManifest = errors.New("no manifest found")

	// ErrUnknownEntry is returned when a burrow has no entry with the id.
	ErrUnknownEntry = errors.New("no entry with that id")

	// ErrNotFetchable is returned for link entries, which are never fetched.
	ErrNotFetchable = errors.New("entry is not fetchable")

	// ErrUnknownKind is recorded for entries whose kind this client does
	// not understand.
	ErrUnknownKind = errors.New("unknown entry kind")

	// ErrUnexpectedKind is returned when a document is a warren where a
	// burrow was required, or the other way round.
	ErrUnexpectedKind = errors.New("unexpected document kind")
)

// Error is a categorized failure of one engine operation.
type Error struct {
	Category report.Category

	// Op is the operation that failed: "discover", "manifest" or "fetch".
	Op string

	Location string
	EntryID  string

	// Attempts lists every try, including those that later succeeded for
	// other candidates in the same discovery.
	Attempts []report.Attempt

	Err error
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Location, e.Category)
	if e.EntryID != "" {
		msg = fmt.Sprintf("%s %s (entry %q): %s", e.Op, e.Location, e.EntryID, e.Category)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the category and the cause to errors.Is and
// errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Category}
	}
	return []error{e.Category, e.Err}
}

// Record converts the error into a report record.
func (e *Error) Record() report.Record {
	msg := e.Category.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return report.Record{
		Category: e.Category,
		Message:  msg,
		EntryID:  e.EntryID,
		Location: e.Location,
		Attempts: e.Attempts,
	}
}

// AsError returns err as an *Error, wrapping foreign errors as transport
// errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Category: categorize(err, report.CategoryEntryNotFound), Err: err}
}

// categorize maps a low-level failure to a report category. notFound is
// the category a missing location maps to, which depends on what was
// being fetched.
func categorize(err error, notFound report.Category) report.Category {
	var se *transport.StatusError
	switch {
	case errors.Is(err, integrity.ErrMismatch):
		return report.CategoryHashMismatch
	case errors.Is(err, manifest.ErrInvalid):
		return report.CategoryManifestInvalid
	case errors.Is(err, transport.ErrNotFound):
		return notFound
	case errors.Is(err, ratelimit.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return report.CategoryTimeout
	case errors.As(err, &se) && se.Throttled():
		return report.CategoryRateLimited
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return report.CategoryTimeout
	}
	return report.CategoryTransportError
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch {
	case errors.Is(err, security.ErrBlocked),
		errors.Is(err, transport.ErrNotFound),
		errors.Is(err, transport.ErrTooLarge),
		errors.Is(err, transport.ErrUnsupportedScheme),
		errors.Is(err, transport.ErrTooManyRedirects),
		errors.Is(err, transport.ErrOutsideRoot),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ratelimit.ErrTimeout):
		return false
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return categorize(err, report.CategoryEntryNotFound).Recoverable()
}

func statusCode(err error) int {
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
