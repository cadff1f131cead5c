package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/burrow/internal/integrity"
	"github.com/nao1215/burrow/internal/transport"
)

// DefaultTTL is how long an entry is served without revalidation.
const DefaultTTL = 5 * time.Minute

// Key returns the cache key for a normalized location.
func Key(location string) string {
	return digest.FromString(location).Encoded()
}

// FetchFunc retrieves the bytes for a location on a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is the outcome of Load.
type Result struct {
	Data []byte

	// FromCache is set when no fetch was needed.
	FromCache bool

	// Stale is set when the entry was past its TTL and served because it
	// matched the declared content hash.
	Stale bool
}

// Stats counts cache activity since the Manager was created.
type Stats struct {
	Hits         int64
	StaleHits    int64
	NegativeHits int64
	Misses       int64
	Fills        int64
}

// Manager applies TTL, revalidation and at-most-once fill rules on top of
// a Store.
type Manager struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	group  singleflight.Group

	hits, staleHits, negativeHits, misses, fills atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore replaces the default MemoryStore.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager builds a Manager backed by a MemoryStore unless WithStore is
// given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	return m
}

// Load returns the payload for location, calling fetch on a miss. When
// want is set the payload must hash to it: a mismatch from the network
// fails with integrity.ErrMismatch and is not cached.
//
// location must already be normalized. The fetch runs with the context of
// the first caller for a key; later callers wait for that result or for
// their own context to end.
func (m *Manager) Load(ctx context.Context, location string, want integrity.Digest, fetch FetchFunc) (Result, error) {
	key := Key(location)

	if res, ok, err := m.lookup(ctx, key, location, want); ok {
		return res, err
	}
	m.misses.Add(1)

	ch := m.group.DoChan(key, func() (any, error) {
		return m.fill(ctx, key, location, want, fetch)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		data, _ := r.Val.([]byte) //nolint:errcheck // fill always returns []byte
		if !want.IsZero() {
			if err := want.Verify(data); err != nil {
				return Result{}, err
			}
		}
		return Result{Data: data}, nil
	}
}

// lookup serves key from the store when the rules allow it. ok is false on
// a miss.
func (m *Manager) lookup(ctx context.Context, key, location string, want integrity.Digest) (Result, bool, error) {
	e, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache read failed", "location", location, "error", err)
		return Result{}, false, nil
	}
	if e == nil {
		return Result{}, false, nil
	}

	fresh := m.now().Sub(e.FetchedAt) < m.ttl

	if e.Missing {
		if !fresh {
			return Result{}, false, nil
		}
		m.negativeHits.Add(1)
		return Result{}, true, fmt.Errorf("%w: %s (cached)", transport.ErrNotFound, location)
	}

	if want.IsZero() {
		if !fresh {
			return Result{}, false, nil
		}
		m.hits.Add(1)
		return Result{Data: e.Payload, FromCache: true}, true, nil
	}

	if !want.Matches(e.Payload) {
		// The publisher changed the declared hash; the cached bytes are
		// no longer what the manifest describes.
		return Result{}, false, nil
	}
	if fresh {
		m.hits.Add(1)
		return Result{Data: e.Payload, FromCache: true}, true, nil
	}
	m.staleHits.Add(1)
	return Result{Data: e.Payload, FromCache: true, Stale: true}, true, nil
}

func (m *Manager) fill(ctx context.Context, key, location string, want integrity.Digest, fetch FetchFunc) ([]byte, error) {
	data, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			m.put(ctx, &Entry{Key: key, Location: location, FetchedAt: m.now(), Missing: true})
		}
		return nil, err
	}

	hash := integrity.Sum(data).String()
	if !want.IsZero() {
		if !want.Matches(data) {
			return data, nil
		}
		hash = want.String()
	}

	m.fills.Add(1)
	m.put(ctx, &Entry{Key: key, Location: location, Payload: data, FetchedAt: m.now(), ContentHash: hash})
	return data, nil
}

func (m *Manager) put(ctx context.Context, e *Entry) {
	if err := m.store.Put(ctx, e); err != nil {
		m.logger.Warn("cache write failed", "location", e.Location, "error", err)
	}
}

// Invalidate drops the entry for location.
func (m *Manager) Invalidate(ctx context.Context, location string) error {
	return m.store.Delete(ctx, Key(location))
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Hits:         m.hits.Load(),
		StaleHits:    m.staleHits.Load(),
		NegativeHits: m.negativeHits.Load(),
		Misses:       m.misses.Load(),
		Fills:        m.fills.Load(),
	}
}

// TTL returns the freshness window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
