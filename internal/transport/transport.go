package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when the location does not exist.
	ErrNotFound = errors.New("location not found")

	// ErrTooLarge is returned when a payload exceeds the byte ceiling.
	ErrTooLarge = errors.New("payload exceeds size limit")

	// ErrUnsupportedScheme is returned when no transport serves a scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrTooManyRedirects is returned when a redirect chain is too long.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrNoSchemes is returned when registering a transport without schemes.
	ErrNoSchemes = errors.New("transport declares no schemes")
)

// Transport retrieves bytes for locations of the schemes it serves.
type Transport interface {
	// Schemes returns the lowercase URI schemes this transport serves.
	Schemes() []string

	// Fetch returns the bytes at location. It fails with ErrTooLarge when
	// the payload is larger than limit bytes; limit <= 0 means no ceiling.
	Fetch(ctx context.Context, location string, limit int64) ([]byte, error)

	// Exists reports whether location can be fetched.
	Exists(ctx context.Context, location string) (bool, error)
}

// Registry maps URI schemes to transports. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRegistry returns a registry holding the given transports.
func NewRegistry(transports ...Transport) *Registry {
	r := &Registry{transports: make(map[string]Transport)}
	for _, t := range transports {
		_ = r.Register(t) //nolint:errcheck // built-in transports always declare schemes
	}
	return r
}

// Register adds t for each of its schemes, replacing any transport
// previously registered for the same scheme.
func (r *Registry) Register(t Transport) error {
	schemes := t.Schemes()
	if len(schemes) == 0 {
		return ErrNoSchemes
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.transports[strings.ToLower(s)] = t
	}
	return nil
}

// Lookup returns the transport for scheme.
func (r *Registry) Lookup(scheme string) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transports[strings.ToLower(scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return t, nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.transports))
	for s := range r.transports {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// For returns the transport serving location's scheme.
func (r *Registry) For(location string) (Transport, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: location %q has no scheme", ErrUnsupportedScheme, location)
	}
	return r.Lookup(u.Scheme)
}

// Fetch dispatches to the transport for location.
func (r *Registry) Fetch(ctx context.Context, location string, limit int64) ([]byte, error) {
	t, err := r.For(location)
	if err != nil {
		return nil, err
	}
	return t.Fetch(ctx, location, limit)
}

// Exists dispatches to the transport for location.
func (r *Registry) Exists(ctx context.Context, location string) (bool, error) {
	t, err := r.For(location)
	if err != nil {
		return false, err
	}
	return t.Exists(ctx, location)
}

// StatusError is a non-success response from a remote transport.
type StatusError struct {
	Location   string
	StatusCode int

	// RetryAfter is the interval the server asked for, valid when
	// HasRetryAfter is set.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %d %s", e.Location, e.StatusCode, http.StatusText(e.StatusCode))
	if e.HasRetryAfter {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

// Is makes 404 and 410 responses match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound &&
		(e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// Throttled reports whether the server asked the client to slow down:
// 429, or 503 carrying a Retry-After header.
func (e *StatusError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		(e.StatusCode == http.StatusServiceUnavailable && e.HasRetryAfter)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// ParseRetryAfter reads a Retry-After header value, either delta-seconds or
// an HTTP date relative to now. Dates in the past yield zero.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := t.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

// readLimited reads r until EOF, failing with ErrTooLarge once more than
// limit bytes arrive.
func readLimited(r io.Reader, limit int64, location string) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, location, limit)
	}
	return data, nil
}
