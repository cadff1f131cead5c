package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/burrow/internal/manifest"
	"github.com/nao1215/burrow/internal/report"
	"github.com/nao1215/burrow/internal/security"
	"github.com/nao1215/burrow/internal/transport"
)

// File names tried at every directory level, in order.
var (
	WarrenNames = []string{".warren.json", "warren.json", ".well-known/warren.json"}
	BurrowNames = []string{".burrow.json", "burrow.json", ".well-known/burrow.json"}
)

// Discovery is the result of Discover. At least one of Warren and Burrow
// is set; both are when a directory publishes both.
type Discovery struct {
	Warren *manifest.Warren
	Burrow *manifest.Burrow

	// BaseLocation is the directory the manifests were found in.
	BaseLocation string

	// Depth is how many parent levels were climbed; 0 is the location
	// itself.
	Depth int

	// Attempts lists the candidates that failed before the match.
	Attempts []report.Attempt
}

// Sources returns the locations of the discovered documents.
func (d *Discovery) Sources() []string {
	var out []string
	if d.Warren != nil {
		out = append(out, d.Warren.Source)
	}
	if d.Burrow != nil {
		out = append(out, d.Burrow.Source)
	}
	return out
}

// Discover finds the warren and/or burrow published at location, walking
// up to the configured number of parent directories. A location ending in
// ".json" is fetched directly. When nothing is found the error carries
// report.CategoryManifestNotFound and every attempt.
func (c *Client) Discover(ctx context.Context, location string) (*Discovery, error) {
	return c.discover(ctx, location, "", c.cfg.ParentWalkDepth)
}

// FetchManifest fetches and validates the manifest at location without
// trying other names.
func (c *Client) FetchManifest(ctx context.Context, location string) (*manifest.Document, error) {
	doc, _, err := c.loadDocument(ctx, location, "", "")
	return doc, err
}

// FetchBurrow fetches the manifest at location and requires a burrow.
func (c *Client) FetchBurrow(ctx context.Context, location string) (*manifest.Burrow, error) {
	doc, err := c.FetchManifest(ctx, location)
	if err != nil {
		return nil, err
	}
	if doc.Burrow == nil {
		return nil, &Error{
			Category: report.CategoryManifestInvalid,
			Op:       "manifest",
			Location: doc.Source(),
			Err:      fmt.Errorf("%w: got a %s", ErrUnexpectedKind, doc.Kind()),
		}
	}
	return doc.Burrow, nil
}

func (c *Client) discover(ctx context.Context, location, parent string, walk int) (*Discovery, error) {
	loc, err := security.NormalizeLocation(location)
	if err != nil {
		return nil, &Error{Category: report.CategoryManifestNotFound, Op: "discover", Location: location, Err: err}
	}

	if isManifestFile(loc) {
		doc, f, err := c.loadDocument(ctx, loc, parent, "")
		if err != nil {
			return nil, err
		}
		base, err := manifest.Dir(f.location)
		if err != nil {
			return nil, err
		}
		return &Discovery{Warren: doc.Warren, Burrow: doc.Burrow, BaseLocation: base}, nil
	}

	dir, err := manifest.AsDir(loc)
	if err != nil {
		return nil, &Error{Category: report.CategoryManifestNotFound, Op: "discover", Location: loc, Err: err}
	}

	if err := c.validator.CheckReference(ctx, parent, dir); err != nil {
		return nil, &Error{
			Category: report.CategoryTransportError,
			Op:       "discover",
			Location: loc,
			Attempts: []report.Attempt{c.attempt(loc, err)},
			Err:      err,
		}
	}

	var attempts []report.Attempt
	for depth := 0; depth <= walk; depth++ {
		d := &Discovery{BaseLocation: dir, Depth: depth}

		for _, name := range WarrenNames {
			doc, tried, err := c.tryCandidate(ctx, dir+name, parent)
			attempts = append(attempts, tried...)
			if err != nil {
				return nil, c.abortDiscovery(loc, err, attempts)
			}
			if doc != nil && doc.Warren != nil {
				d.Warren = doc.Warren
				break
			}
		}
		for _, name := range BurrowNames {
			doc, tried, err := c.tryCandidate(ctx, dir+name, parent)
			attempts = append(attempts, tried...)
			if err != nil {
				return nil, c.abortDiscovery(loc, err, attempts)
			}
			if doc != nil && doc.Burrow != nil {
				d.Burrow = doc.Burrow
				break
			}
		}

		if d.Warren != nil || d.Burrow != nil {
			// A manifest found under .well-known describes the directory
			// above it.
			if d.Burrow != nil && d.Burrow.BaseLocation == "" {
				d.Burrow.ResolvedBase = dir
			}
			if d.Warren != nil {
				d.Warren.ResolvedBase = dir
			}
			d.Attempts = attempts
			c.logger.Debug("manifest discovered", "location", loc, "base", dir, "depth", depth)
			return d, nil
		}

		up, ok := manifest.Parent(dir)
		if !ok {
			break
		}
		dir = up
	}

	return nil, &Error{
		Category: report.CategoryManifestNotFound,
		Op:       "discover",
		Location: loc,
		Attempts: attempts,
		Err:      ErrNoManifest,
	}
}

// tryCandidate loads one discovery candidate. A candidate that is missing,
// invalid or unreachable yields its attempts and no document; only the end
// of the context aborts discovery.
func (c *Client) tryCandidate(ctx context.Context, location, parent string) (*manifest.Document, []report.Attempt, error) {
	doc, _, err := c.loadDocument(ctx, location, parent, "")
	if err == nil {
		return doc, nil, nil
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	var e *Error
	if !errors.As(err, &e) {
		return nil, []report.Attempt{c.attempt(location, err)}, nil
	}
	if e.Category != report.CategoryManifestNotFound {
		c.logger.Debug("discovery candidate failed", "location", e.Location, "category", e.Category, "error", e.Err)
	}
	if len(e.Attempts) == 0 {
		return nil, []report.Attempt{c.attempt(e.Location, e.Err)}, nil
	}
	return nil, e.Attempts, nil
}

func (c *Client) abortDiscovery(loc string, err error, attempts []report.Attempt) *Error {
	return &Error{
		Category: categorize(err, report.CategoryManifestNotFound),
		Op:       "discover",
		Location: loc,
		Attempts: attempts,
		Err:      err,
	}
}

// loadDocument reads and parses the manifest at location.
func (c *Client) loadDocument(ctx context.Context, location, parent, entryID string) (*manifest.Document, *fetched, error) {
	limit := c.cfg.Limits.MaxManifestBytes
	f, err := c.read(ctx, request{
		op:       "manifest",
		location: location,
		parent:   parent,
		entryID:  entryID,
		limit:    limit,
		notFound: report.CategoryManifestNotFound,
	})
	if err != nil {
		var e *Error
		if errors.As(err, &e) && errors.Is(e.Err, transport.ErrTooLarge) {
			e.Category = report.CategoryManifestInvalid
		}
		return nil, nil, err
	}

	doc, err := manifest.ParseWithOptions(f.data, f.location, manifest.Options{MaxBytes: limit})
	if err != nil {
		return nil, nil, &Error{
			Category: report.CategoryManifestInvalid,
			Op:       "manifest",
			Location: f.location,
			EntryID:  entryID,
			Attempts: f.attempts,
			Err:      err,
		}
	}
	return doc, f, nil
}

// isManifestFile reports whether location names a JSON document rather
// than a directory to search.
func isManifestFile(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".json")
}
