package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/burrow/internal/cache"
)

var _ cache.Store = (*DB)(nil)

// Get implements cache.Store.
func (d *DB) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if key == "" {
		return nil, cache.ErrEmptyKey
	}

	query := `
	SELECT location, payload, content_hash, missing, fetched_at
	FROM cache_entries
	WHERE key = ?
	`

	var (
		e           = cache.Entry{Key: key}
		contentHash sql.NullString
		missing     int
		fetchedAt   string
	)
	err := d.db.QueryRowContext(ctx, query, key).Scan(&e.Location, &e.Payload, &contentHash, &missing, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	e.ContentHash = contentHash.String
	e.Missing = missing != 0
	e.FetchedAt = parseTimestamp(fetchedAt)
	return &e, nil
}

// Put implements cache.Store. An existing entry with the same key is
// replaced.
func (d *DB) Put(ctx context.Context, e *cache.Entry) error {
	if e == nil || e.Key == "" {
		return cache.ErrEmptyKey
	}

	query := `
	INSERT INTO cache_entries (key, location, payload, content_hash, missing, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		location = excluded.location,
		payload = excluded.payload,
		content_hash = excluded.content_hash,
		missing = excluded.missing,
		fetched_at = excluded.fetched_at
	`

	missing := 0
	if e.Missing {
		missing = 1
	}
	_, err := d.db.ExecContext(ctx, query,
		e.Key,
		e.Location,
		e.Payload,
		e.ContentHash,
		missing,
		formatTimestamp(e.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Delete implements cache.Store.
func (d *DB) Delete(ctx context.Context, key string) error {
	if key == "" {
		return cache.ErrEmptyKey
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// PurgeCache removes entries fetched before the cutoff and returns how
// many were removed. A zero cutoff removes everything.
func (d *DB) PurgeCache(ctx context.Context, before time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if before.IsZero() {
		res, err = d.db.ExecContext(ctx, "DELETE FROM cache_entries")
	} else {
		res, err = d.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE fetched_at < ?", formatTimestamp(before))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheSize returns the number of cached entries and the total payload size.
func (d *DB) CacheSize(ctx context.Context) (int, int64, error) {
	var (
		count int
		size  sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*), SUM(LENGTH(payload)) FROM cache_entries").Scan(&count, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to measure cache: %w", err)
	}
	return count, size.Int64, nil
}
