package client

import (
	"errors"
	"testing"

	"github.com/nao1215/burrow/internal/config"
	"github.com/nao1215/burrow/internal/report"
)

func TestDiscoverWellKnown(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/docs/.well-known/burrow.json": burrowDoc(entry("a", "file", "a.md")),
	})
	c := newTestClient(t)

	d, err := c.Discover(t.Context(), s.url("/docs"))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if d.Burrow == nil || d.Warren != nil {
		t.Fatalf("expected a burrow only, got %+v", d)
	}
	if d.Depth != 0 {
		t.Errorf("Depth = %d, want 0", d.Depth)
	}
	if d.BaseLocation != s.url("/docs/") {
		t.Errorf("BaseLocation = %q", d.BaseLocation)
	}

	for _, p := range []string{"/docs/.burrow.json", "/docs/burrow.json", "/docs/.well-known/burrow.json"} {
		if got := s.hitsFor(p); got != 1 {
			t.Errorf("%s requested %d times, want 1", p, got)
		}
	}

	loc, err := d.Burrow.Resolve("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if loc != s.url("/docs/a.md") {
		t.Errorf("entries resolve against %q, want the searched directory", loc)
	}
}

func TestDiscoverIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/docs/burrow.json": burrowDoc(entry("a", "file", "a.md")),
	})
	c := newTestClient(t)

	if _, err := c.Discover(t.Context(), s.url("/docs/")); err != nil {
		t.Fatal(err)
	}
	before := s.total()
	if before == 0 {
		t.Fatal("expected network requests on first discovery")
	}
	if _, err := c.Discover(t.Context(), s.url("/docs/")); err != nil {
		t.Fatal(err)
	}
	if after := s.total(); after != before {
		t.Errorf("second discovery issued %d requests", after-before)
	}
}

func TestDiscoverParentWalk(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/burrow.json": burrowDoc(),
	})
	c := newTestClient(t)

	t.Run("found two levels up", func(t *testing.T) {
		t.Parallel()
		d, err := c.Discover(t.Context(), s.url("/a/b"))
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if d.Depth != 2 || d.BaseLocation != s.url("/") {
			t.Errorf("Depth = %d, BaseLocation = %q", d.Depth, d.BaseLocation)
		}
	})

	t.Run("not found beyond the walk depth", func(t *testing.T) {
		t.Parallel()
		_, err := c.Discover(t.Context(), s.url("/x/y/z"))
		if !errors.Is(err, report.CategoryManifestNotFound) || !errors.Is(err, ErrNoManifest) {
			t.Fatalf("expected manifest-not-found, got %v", err)
		}
		var e *Error
		if !errors.As(err, &e) {
			t.Fatal("expected *Error")
		}
		// Three levels, six candidates each.
		if len(e.Attempts) != 18 {
			t.Errorf("expected 18 attempts, got %d", len(e.Attempts))
		}
	})
}

func TestDiscoverWithoutParentWalk(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{"/burrow.json": burrowDoc()})
	c := newTestClient(t, func(cfg *config.Config) { cfg.ParentWalkDepth = 0 })
	if _, err := c.Discover(t.Context(), s.url("/a/")); !errors.Is(err, report.CategoryManifestNotFound) {
		t.Errorf("expected manifest-not-found, got %v", err)
	}
}

func TestDiscoverWarrenAndBurrow(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/warren.json":  warrenDoc(entry("docs", "burrow", "docs/")),
		"/.burrow.json": burrowDoc(),
	})
	c := newTestClient(t)

	d, err := c.Discover(t.Context(), s.url("/"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Warren == nil || d.Burrow == nil {
		t.Fatalf("expected both documents, got %+v", d)
	}
	if got := s.hitsFor("/.well-known/warren.json"); got != 0 {
		t.Errorf("candidates after the first match were tried %d times", got)
	}
	if len(d.Sources()) != 2 {
		t.Errorf("Sources() = %v", d.Sources())
	}
}

func TestDiscoverSkipsInvalidCandidates(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/.burrow.json": `{"kind":"burrow"`,
		"/burrow.json":  burrowDoc(entry("a", "file", "a")),
	})
	c := newTestClient(t)

	d, err := c.Discover(t.Context(), s.url("/"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Burrow.Source != s.url("/burrow.json") {
		t.Errorf("Source = %q", d.Burrow.Source)
	}
	if len(d.Attempts) == 0 {
		t.Error("expected the failed candidates in Attempts")
	}
}

func TestDiscoverManifestFile(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/maps/site.json": burrowDoc(entry("a", "file", "a.txt")),
	})
	c := newTestClient(t)

	d, err := c.Discover(t.Context(), s.url("/maps/site.json"))
	if err != nil {
		t.Fatal(err)
	}
	if d.BaseLocation != s.url("/maps/") || d.Burrow == nil {
		t.Errorf("unexpected discovery %+v", d)
	}
	if s.total() != 1 {
		t.Errorf("expected a single request, got %d", s.total())
	}
}

func TestFetchManifest(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]string{
		"/bad-version.json": `{"formatVersion":"burrow/9.0.0/burrow","kind":"burrow","entries":[]}`,
		"/bad-kind.json":    `{"formatVersion":"burrow/0.2.0/burrow","kind":"rabbit"}`,
		"/warren.json":      warrenDoc(),
	})
	c := newTestClient(t)

	for _, p := range []string{"/bad-version.json", "/bad-kind.json"} {
		if _, err := c.FetchManifest(t.Context(), s.url(p)); !errors.Is(err, report.CategoryManifestInvalid) {
			t.Errorf("%s: expected manifest-invalid, got %v", p, err)
		}
	}

	doc, err := c.FetchManifest(t.Context(), s.url("/warren.json"))
	if err != nil || doc.Warren == nil {
		t.Fatalf("FetchManifest(warren) = %+v, %v", doc, err)
	}
	if _, err := c.FetchBurrow(t.Context(), s.url("/warren.json")); !errors.Is(err, ErrUnexpectedKind) {
		t.Errorf("expected ErrUnexpectedKind, got %v", err)
	}
}
