package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/burrow/internal/integrity"
	"github.com/nao1215/burrow/internal/report"
	"github.com/nao1215/burrow/internal/security"
	"github.com/nao1215/burrow/internal/transport"
)

// request describes one read of a location.
type request struct {
	op       string
	location string

	// parent is the document that referenced location; empty for
	// caller-supplied locations.
	parent  string
	entryID string

	want     integrity.Digest
	limit    int64
	notFound report.Category
}

// fetched is the outcome of a successful read.
type fetched struct {
	location  string
	data      []byte
	fromCache bool
	stale     bool
	attempts  []report.Attempt
}

// attemptLog collects attempts; a singleflight fill may run on another
// caller's goroutine.
type attemptLog struct {
	mu       sync.Mutex
	attempts []report.Attempt
}

func (l *attemptLog) add(a report.Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, a)
}

func (l *attemptLog) list() []report.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]report.Attempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// read normalizes, validates and fetches r.location through the cache,
// retrying recoverable failures. The whole read, including retries and
// rate limiter waits, is bounded by the configured timeout.
func (c *Client) read(ctx context.Context, r request) (*fetched, error) {
	fail := func(loc string, err error, attempts []report.Attempt) *Error {
		return &Error{
			Category: categorize(err, r.notFound),
			Op:       r.op,
			Location: loc,
			EntryID:  r.entryID,
			Attempts: attempts,
			Err:      err,
		}
	}

	loc, err := security.NormalizeLocation(r.location)
	if err != nil {
		return nil, fail(r.location, err, nil)
	}
	if err := c.validator.CheckReference(ctx, r.parent, loc); err != nil {
		c.logger.Warn("location refused", "location", loc, "error", err)
		return nil, fail(loc, err, []report.Attempt{c.attempt(loc, err)})
	}
	t, err := c.registry.For(loc)
	if err != nil {
		return nil, fail(loc, err, []report.Attempt{c.attempt(loc, err)})
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Limits.Timeout)
	defer cancel()

	log := &attemptLog{}
	res, err := c.cache.Load(ctx, loc, r.want, func(ctx context.Context) ([]byte, error) {
		return c.fetchWithRetry(ctx, t, loc, r.limit, log)
	})
	attempts := log.list()
	if err != nil {
		if len(attempts) == 0 {
			attempts = []report.Attempt{c.attempt(loc, err)}
		}
		return nil, fail(loc, err, attempts)
	}
	if res.Stale {
		c.logger.Debug("serving stale content with matching hash", "location", loc)
	}
	return &fetched{
		location:  loc,
		data:      res.Data,
		fromCache: res.FromCache,
		stale:     res.Stale,
		attempts:  attempts,
	}, nil
}

// fetchWithRetry runs the transport under the rate limiter until it
// succeeds, fails permanently or runs out of attempts.
func (c *Client) fetchWithRetry(ctx context.Context, t transport.Transport, loc string, limit int64, log *attemptLog) ([]byte, error) {
	host := hostOf(loc)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, fmt.Errorf("%w after %d attempts: %w", err, attempt-1, lastErr)
			}
		}

		release, err := c.limiter.Acquire(ctx, host)
		if err != nil {
			log.add(c.attempt(loc, err))
			return nil, err
		}
		data, err := t.Fetch(ctx, loc, limit)
		release()
		if err == nil {
			return data, nil
		}

		log.add(c.attempt(loc, err))
		lastErr = err

		var se *transport.StatusError
		if errors.As(err, &se) && se.Throttled() {
			var retryAfter time.Duration
			if se.HasRetryAfter {
				retryAfter = se.RetryAfter
			}
			wait := c.limiter.Throttle(host, retryAfter)
			c.logger.Info("host throttled", "host", host, "backoff", wait)
		}
		if !retryable(err) {
			return nil, err
		}
		c.logger.Debug("fetch failed, retrying", "location", loc, "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

// backoff returns the wait before retry n (1-based): base * 2^(n-1),
// capped at maxRetryBackoff.
func (c *Client) backoff(n int) time.Duration {
	d := c.cfg.RetryBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return min(d, maxRetryBackoff)
}

func (c *Client) attempt(loc string, err error) report.Attempt {
	return report.Attempt{
		Root:       loc,
		Error:      err.Error(),
		StatusCode: statusCode(err),
		At:         c.now(),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
