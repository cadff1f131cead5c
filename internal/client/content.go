package client

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/burrow/internal/integrity"
	"github.com/nao1215/burrow/internal/manifest"
	"github.com/nao1215/burrow/internal/report"
)

// Content is the fetched body of an entry.
type Content struct {
	Entry manifest.Entry

	// Location is the resolved, normalized location the bytes came from.
	Location string

	Data []byte

	// Digest is the declared hash when the entry has one, otherwise the
	// SHA-256 of Data.
	Digest integrity.Digest

	// Verified is set when Data was checked against a declared hash.
	Verified bool

	FromCache bool
}

// FetchEntry resolves e against b, fetches its content and verifies it
// against the declared hash. A mismatch fails with
// report.CategoryHashMismatch and no content is returned.
func (c *Client) FetchEntry(ctx context.Context, b *manifest.Burrow, e manifest.Entry) (*Content, error) {
	return c.fetchContent(ctx, b.ResolvedBase, b.Source, e)
}

// FetchEntryByID fetches the entry of b with the given id.
func (c *Client) FetchEntryByID(ctx context.Context, b *manifest.Burrow, id string) (*Content, error) {
	e, ok := b.Entry(id)
	if !ok {
		return nil, &Error{
			Category: report.CategoryEntryNotFound,
			Op:       "fetch",
			Location: b.Source,
			EntryID:  id,
			Err:      ErrUnknownEntry,
		}
	}
	return c.FetchEntry(ctx, b, e)
}

// FetchEntries fetches entries concurrently, bounded by the prefetch pool
// size. The result has one slot per entry, nil where the fetch failed;
// the error aggregates every failure.
func (c *Client) FetchEntries(ctx context.Context, b *manifest.Burrow, entries []manifest.Entry) ([]*Content, error) {
	results := make([]*Content, len(entries))
	errs := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.cfg.PrefetchWorkers, 1))

	for i, e := range entries {
		g.Go(func() error {
			content, err := c.FetchEntry(gctx, b, e)
			if err != nil {
				// One failed entry must not cancel its siblings.
				errs[i] = err
				return nil
			}
			results[i] = content
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return results, merr.ErrorOrNil()
}

func (c *Client) fetchContent(ctx context.Context, base, parent string, e manifest.Entry) (*Content, error) {
	fail := func(cat report.Category, loc string, err error) *Error {
		return &Error{Category: cat, Op: "fetch", Location: loc, EntryID: e.ID, Err: err}
	}

	if e.Kind == manifest.KindLink {
		return nil, fail(report.CategoryEntryNotFound, e.Location, fmt.Errorf("%w: %s is a link", ErrNotFetchable, e.ID))
	}
	if e.Location == "" {
		return nil, fail(report.CategoryManifestInvalid, parent, fmt.Errorf("%w: entry has no uri", manifest.ErrMissingField))
	}
	loc, err := manifest.Resolve(base, e.Location)
	if err != nil {
		return nil, fail(report.CategoryEntryNotFound, e.Location, err)
	}

	var want integrity.Digest
	if h := e.ContentHash(); h != "" {
		want, err = integrity.Parse(h)
		if err != nil {
			return nil, fail(report.CategoryManifestInvalid, loc, err)
		}
	}

	f, err := c.read(ctx, request{
		op:       "fetch",
		location: loc,
		parent:   parent,
		entryID:  e.ID,
		want:     want,
		limit:    c.cfg.Limits.MaxEntryBytes,
		notFound: report.CategoryEntryNotFound,
	})
	if err != nil {
		return nil, err
	}

	content := &Content{
		Entry:     e,
		Location:  f.location,
		Data:      f.data,
		Digest:    want,
		Verified:  !want.IsZero(),
		FromCache: f.fromCache,
	}
	if want.IsZero() {
		content.Digest = integrity.Sum(f.data)
	}
	return content, nil
}
