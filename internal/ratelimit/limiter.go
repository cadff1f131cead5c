package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Defaults applied to hosts without an override.
const (
	DefaultConcurrency     = 4
	DefaultMinDelay        = 100 * time.Millisecond
	DefaultThrottleBackoff = 5 * time.Second
)

// ErrTimeout is returned when the caller's context ends while waiting.
var ErrTimeout = errors.New("timed out waiting for rate limiter")

// HostLimit overrides the pacing for one host. Zero fields fall back to the
// limiter defaults.
type HostLimit struct {
	Concurrency int
	MinDelay    time.Duration
}

// hostState is the shared mutable state for one host.
type hostState struct {
	sem     *semaphore.Weighted
	pace    *rate.Limiter
	mu      sync.Mutex
	backoff time.Time
}

func (h *hostState) backoffUntil() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backoff
}

// Limiter paces requests per host. It is safe for concurrent use.
type Limiter struct {
	concurrency     int
	minDelay        time.Duration
	throttleBackoff time.Duration
	overrides       map[string]HostLimit
	now             func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithConcurrency sets the default number of in-flight requests per host.
func WithConcurrency(n int) Option {
	return func(l *Limiter) {
		l.concurrency = n
	}
}

// WithMinDelay sets the default minimum interval between request starts.
// Zero disables pacing.
func WithMinDelay(d time.Duration) Option {
	return func(l *Limiter) {
		l.minDelay = d
	}
}

// WithThrottleBackoff sets the pause used when a throttling response does
// not say how long to wait.
func WithThrottleBackoff(d time.Duration) Option {
	return func(l *Limiter) {
		l.throttleBackoff = d
	}
}

// WithHostLimits sets per-host overrides keyed by lowercase host name.
func WithHostLimits(limits map[string]HostLimit) Option {
	return func(l *Limiter) {
		for host, hl := range limits {
			l.overrides[strings.ToLower(host)] = hl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New returns a limiter with the default pacing.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		concurrency:     DefaultConcurrency,
		minDelay:        DefaultMinDelay,
		throttleBackoff: DefaultThrottleBackoff,
		overrides:       make(map[string]HostLimit),
		now:             time.Now,
		hosts:           make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) state(host string) *hostState {
	host = strings.ToLower(host)

	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.hosts[host]; ok {
		return h
	}

	conc, delay := l.concurrency, l.minDelay
	if o, ok := l.overrides[host]; ok {
		if o.Concurrency > 0 {
			conc = o.Concurrency
		}
		if o.MinDelay > 0 {
			delay = o.MinDelay
		}
	}
	if conc < 1 {
		conc = 1
	}

	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	h := &hostState{
		sem:  semaphore.NewWeighted(int64(conc)),
		pace: rate.NewLimiter(limit, 1),
	}
	l.hosts[host] = h
	return h
}

// Acquire waits until a request to host may start and returns a function
// that must be called when the request finishes. An empty host (local
// files) is not limited.
func (l *Limiter) Acquire(ctx context.Context, host string) (func(), error) {
	if host == "" {
		return func() {}, nil
	}
	h := l.state(host)

	if err := l.waitBackoff(ctx, h); err != nil {
		return nil, err
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, host, err)
	}
	var once sync.Once
	release := func() { once.Do(func() { h.sem.Release(1) }) }

	// A throttle may have arrived while this caller queued for a slot.
	if err := l.waitBackoff(ctx, h); err != nil {
		release()
		return nil, err
	}
	if err := h.pace.Wait(ctx); err != nil {
		release()
		return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, host, err)
	}
	return release, nil
}

func (l *Limiter) waitBackoff(ctx context.Context, h *hostState) error {
	for {
		wait := h.backoffUntil().Sub(l.now())
		if wait <= 0 {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && l.now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: backoff of %s exceeds the deadline", ErrTimeout, wait.Round(time.Millisecond))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case <-timer.C:
		}
	}
}

// Throttle records a throttling response from host. Requests to host pause
// for retryAfter, or for the default backoff when retryAfter is zero. An
// earlier, longer backoff is kept.
func (l *Limiter) Throttle(host string, retryAfter time.Duration) time.Duration {
	if host == "" {
		return 0
	}
	if retryAfter <= 0 {
		retryAfter = l.throttleBackoff
	}
	h := l.state(host)
	until := l.now().Add(retryAfter)

	h.mu.Lock()
	defer h.mu.Unlock()
	if until.After(h.backoff) {
		h.backoff = until
	}
	return retryAfter
}

// BackoffRemaining returns how long requests to host are still paused.
func (l *Limiter) BackoffRemaining(host string) time.Duration {
	l.mu.Lock()
	h, ok := l.hosts[strings.ToLower(host)]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	if d := h.backoffUntil().Sub(l.now()); d > 0 {
		return d
	}
	return 0
}
