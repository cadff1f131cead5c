package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/burrow/internal/integrity"
	"github.com/nao1215/burrow/internal/manifest"
	"github.com/nao1215/burrow/internal/report"
	"github.com/nao1215/burrow/internal/security"
)

// defaultBuffer is the event channel capacity.
const defaultBuffer = 16

// TraverseOption configures one traversal.
type TraverseOption func(*traverseOptions)

type traverseOptions struct {
	maxDepth     int
	maxEntries   int
	predicate    Predicate
	skipOnError  bool
	fetchContent bool
	prefetch     int
	buffer       int
}

// WithMaxDepth overrides the configured maximum depth. Entries of the
// root manifest are at depth 0.
func WithMaxDepth(depth int) TraverseOption {
	return func(o *traverseOptions) {
		o.maxDepth = depth
	}
}

// WithMaxEntries overrides the configured entry ceiling. Zero or less
// means no ceiling.
func WithMaxEntries(n int) TraverseOption {
	return func(o *traverseOptions) {
		o.maxEntries = n
	}
}

// WithPredicate filters entries before they are emitted.
func WithPredicate(p Predicate) TraverseOption {
	return func(o *traverseOptions) {
		o.predicate = p
	}
}

// WithSkipOnError controls whether a failed entry stops the traversal.
func WithSkipOnError(skip bool) TraverseOption {
	return func(o *traverseOptions) {
		o.skipOnError = skip
	}
}

// WithFetchContent fetches and verifies file entries as they are
// dequeued, emitting EventContent after their EventEntry.
func WithFetchContent(fetch bool) TraverseOption {
	return func(o *traverseOptions) {
		o.fetchContent = fetch
	}
}

// WithPrefetch sets how many nested manifests may be discovered ahead of
// the queue. Zero disables prefetching.
func WithPrefetch(workers int) TraverseOption {
	return func(o *traverseOptions) {
		o.prefetch = workers
	}
}

// WithBuffer sets the event channel capacity.
func WithBuffer(n int) TraverseOption {
	return func(o *traverseOptions) {
		o.buffer = n
	}
}

// Traversal is a running breadth-first walk. Events are produced on a
// bounded channel; the walk pauses when nobody reads.
type Traversal struct {
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	result   *report.Report
}

// Events returns the event channel. It is closed when the walk ends.
func (t *Traversal) Events() <-chan Event {
	return t.events
}

// All returns the events as an iterator. Breaking out of the loop stops
// the traversal.
func (t *Traversal) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for ev := range t.events {
			if !yield(ev) {
				t.Stop()
				return
			}
		}
	}
}

// Stop ends the walk. No new entries are dequeued; fetches already in
// flight complete and their results are discarded.
func (t *Traversal) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Wait discards unread events, waits for the walk to end and returns the
// final report.
func (t *Traversal) Wait() *report.Report {
	for range t.events {
		// discard
	}
	<-t.done
	return t.result
}

// Traverse walks the manifest tree found at location. The root is found
// with Discover; nested burrow and dir entries are discovered without
// walking up, map entries are fetched directly.
func (c *Client) Traverse(ctx context.Context, location string, opts ...TraverseOption) *Traversal {
	o := traverseOptions{
		maxDepth:    c.cfg.Limits.MaxDepth,
		maxEntries:  c.cfg.Limits.MaxEntries,
		skipOnError: c.cfg.SkipOnError,
		prefetch:    c.cfg.PrefetchWorkers,
		buffer:      defaultBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Traversal{
		events: make(chan Event, max(o.buffer, 0)),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w := &walker{
		c:        c,
		t:        t,
		o:        o,
		reporter: report.NewReporter(location, report.WithClock(c.now)),
		visited:  make(map[string]bool),
		prefetch: newPrefetcher(ctx, o.prefetch),
	}
	go w.run(ctx, location)
	return t
}

// frame is one queued entry.
type frame struct {
	entry manifest.Entry
	depth int

	// location is the resolved, normalized entry location.
	location   string
	resolveErr error

	// parent and base describe the manifest that listed the entry.
	parent string
	base   string

	identity string
}

func (f frame) candidate() Candidate {
	return Candidate{Entry: f.entry, Location: f.location, Depth: f.depth}
}

// walker owns all traversal state; only its goroutine touches it.
type walker struct {
	c        *Client
	t        *Traversal
	o        traverseOptions
	reporter *report.Reporter
	visited  map[string]bool
	queue    []frame
	prefetch *prefetcher

	// processed mirrors the reporter's entry count.
	processed int
}

func (w *walker) run(ctx context.Context, location string) {
	defer func() {
		w.prefetch.wait()
		w.t.result = w.reporter.Finish()
		close(w.t.events)
		close(w.t.done)
	}()

	root, err := w.c.discover(ctx, location, "", w.c.cfg.ParentWalkDepth)
	if err != nil {
		e := AsError(err)
		w.reporter.Record(e.Record())
		w.reporter.Stop(report.StopError)
		w.emit(ctx, Event{Kind: EventError, Location: location, Err: e})
		return
	}
	if srcs := root.Sources(); len(srcs) > 0 {
		w.reporter.SetManifestLocation(srcs[len(srcs)-1])
	}
	w.visited[locationKey(root.BaseLocation)] = true
	w.markSources(root)

	w.queue = w.children(root, 0)
	w.schedule(w.queue, 0)

	for len(w.queue) > 0 {
		if w.halted(ctx) {
			w.reporter.Stop(report.StopCancelled)
			return
		}
		f := w.queue[0]
		w.queue = w.queue[1:]
		if !w.step(ctx, f) {
			return
		}
	}
}

// step processes one frame and reports whether the walk continues.
func (w *walker) step(ctx context.Context, f frame) bool {
	if w.visited[f.identity] {
		w.reporter.CycleDetected()
		w.c.logger.Debug("cycle detected", "entry", f.entry.ID, "location", f.location, "depth", f.depth)
		return w.emit(ctx, w.event(EventCycle, f))
	}
	w.visited[f.identity] = true

	if f.depth > w.o.maxDepth {
		w.reporter.DepthLimited()
		return w.emit(ctx, w.event(EventDepthLimit, f))
	}

	if w.o.predicate != nil && !w.o.predicate(f.candidate()) {
		w.reporter.EntrySkipped()
		return true
	}

	n := w.reporter.EntryProcessed()
	w.processed = n
	if !w.emit(ctx, w.event(EventEntry, f)) {
		return false
	}
	if w.o.maxEntries > 0 && n >= w.o.maxEntries {
		w.reporter.Stop(report.StopMaxEntries)
		return false
	}

	switch {
	case f.entry.Kind.IsContainer():
		d, err := w.expand(ctx, f)
		if err != nil {
			return w.fail(ctx, f, err)
		}
		w.markSources(d)
		children := w.children(d, f.depth+1)
		ahead := len(w.queue)
		w.queue = append(w.queue, children...)
		w.schedule(children, ahead)
	case f.entry.Kind == manifest.KindFile:
		if w.o.fetchContent {
			return w.fetch(ctx, f)
		}
	case f.entry.Kind == manifest.KindLink:
	default:
		e := &Error{
			Category: report.CategoryManifestInvalid,
			Op:       "traverse",
			Location: f.location,
			EntryID:  f.entry.ID,
			Err:      fmt.Errorf("%w: %q", ErrUnknownKind, f.entry.RawKind),
		}
		w.reporter.Record(e.Record())
		ev := w.event(EventError, f)
		ev.Err = e
		return w.emit(ctx, ev)
	}
	return true
}

func (w *walker) expand(ctx context.Context, f frame) (*Discovery, error) {
	if f.resolveErr != nil {
		return nil, &Error{
			Category: report.CategoryManifestInvalid,
			Op:       "traverse",
			Location: f.entry.Location,
			EntryID:  f.entry.ID,
			Err:      f.resolveErr,
		}
	}
	if p, ok := w.prefetch.take(f.identity); ok {
		return p.result(ctx)
	}
	return w.c.expandEntry(ctx, f.entry, f.location, f.parent)
}

func (w *walker) fetch(ctx context.Context, f frame) bool {
	content, err := w.c.fetchContent(ctx, f.base, f.parent, f.entry)
	if err != nil {
		return w.fail(ctx, f, err)
	}
	w.reporter.ContentFetched(len(content.Data))
	ev := w.event(EventContent, f)
	ev.Content = content
	return w.emit(ctx, ev)
}

// fail records a failed entry and reports whether the walk continues.
func (w *walker) fail(ctx context.Context, f frame, err error) bool {
	if w.halted(ctx) {
		w.reporter.Stop(report.StopCancelled)
		return false
	}

	e := AsError(err)
	if e.EntryID == "" {
		e.EntryID = f.entry.ID
	}
	w.reporter.Record(e.Record())
	w.c.logger.Warn("entry failed",
		"entry", f.entry.ID, "location", e.Location, "depth", f.depth,
		"category", e.Category, "error", e.Err)

	ev := w.event(EventError, f)
	ev.Err = e
	if !w.emit(ctx, ev) {
		return false
	}
	if !w.o.skipOnError {
		w.reporter.Stop(report.StopError)
		return false
	}
	return true
}

// emit delivers ev unless the walk was stopped or cancelled first.
func (w *walker) emit(ctx context.Context, ev Event) bool {
	if w.halted(ctx) {
		w.reporter.Stop(report.StopCancelled)
		return false
	}
	select {
	case w.t.events <- ev:
		return true
	case <-w.t.stop:
	case <-ctx.Done():
	}
	w.reporter.Stop(report.StopCancelled)
	return false
}

func (w *walker) halted(ctx context.Context) bool {
	select {
	case <-w.t.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (w *walker) event(kind EventKind, f frame) Event {
	return Event{Kind: kind, Depth: f.depth, Entry: f.entry, Location: f.location, Parent: f.parent}
}

// children builds the frames for everything d lists, sorted by descending
// priority. Equal priorities keep manifest order.
func (w *walker) children(d *Discovery, depth int) []frame {
	var out []frame
	if b := d.Burrow; b != nil {
		for _, e := range b.Entries {
			out = append(out, newFrame(e, depth, b.Source, b.ResolvedBase))
		}
	}
	if wr := d.Warren; wr != nil {
		for _, r := range wr.Burrows {
			out = append(out, newFrame(refEntry(r, manifest.KindNameBurrow), depth, wr.Source, wr.ResolvedBase))
		}
		for _, r := range wr.Warrens {
			out = append(out, newFrame(refEntry(r, manifest.KindNameWarren), depth, wr.Source, wr.ResolvedBase))
		}
	}
	slices.SortStableFunc(out, func(a, b frame) int {
		return cmp.Compare(b.entry.Priority, a.entry.Priority)
	})
	return out
}

func (w *walker) markSources(d *Discovery) {
	for _, src := range d.Sources() {
		w.visited[locationKey(src)] = true
	}
}

// schedule starts prefetching the containers among frames that the walk
// will expand if nothing stops it first. ahead is the number of queued
// frames dequeued before frames[0]. Under an entry ceiling only frames
// that can still be expanded are prefetched: every frame ahead may use
// one entry, and the entry that reaches the ceiling is never expanded.
func (w *walker) schedule(frames []frame, ahead int) {
	if w.o.maxEntries > 0 {
		budget := w.o.maxEntries - w.processed - ahead - 1
		if budget <= 0 {
			return
		}
		if budget < len(frames) {
			frames = frames[:budget]
		}
	}
	for _, f := range frames {
		if !f.entry.Kind.IsContainer() || f.resolveErr != nil || f.depth > w.o.maxDepth || w.visited[f.identity] {
			continue
		}
		if w.o.predicate != nil && !w.o.predicate(f.candidate()) {
			continue
		}
		w.prefetch.start(f.identity, func(ctx context.Context) (*Discovery, error) {
			return w.c.expandEntry(ctx, f.entry, f.location, f.parent)
		})
	}
}

// expandEntry loads the manifests a container entry points at.
func (c *Client) expandEntry(ctx context.Context, e manifest.Entry, location, parent string) (*Discovery, error) {
	var (
		d   *Discovery
		err error
	)
	if e.Kind == manifest.KindMap {
		var doc *manifest.Document
		var f *fetched
		doc, f, err = c.loadDocument(ctx, location, parent, e.ID)
		if err == nil {
			var base string
			base, err = manifest.Dir(f.location)
			d = &Discovery{Warren: doc.Warren, Burrow: doc.Burrow, BaseLocation: base}
		}
	} else {
		d, err = c.discover(ctx, location, parent, 0)
	}
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.EntryID == "" {
			ce.EntryID = e.ID
		}
		return nil, err
	}
	return d, nil
}

func newFrame(e manifest.Entry, depth int, parent, base string) frame {
	f := frame{entry: e, depth: depth, parent: parent, base: base}
	f.location, f.resolveErr = resolveEntry(e, base)
	f.identity = identity(e, f.location, parent)
	return f
}

func resolveEntry(e manifest.Entry, base string) (string, error) {
	if e.Location == "" {
		return "", fmt.Errorf("%w: entry %q has no uri", manifest.ErrMissingField, e.ID)
	}
	loc, err := manifest.Resolve(base, e.Location)
	if err != nil {
		return "", err
	}
	if e.Kind.NeedsDiscovery() && !isManifestFile(loc) {
		if loc, err = manifest.AsDir(loc); err != nil {
			return "", err
		}
	}
	return security.NormalizeLocation(loc)
}

// identity is the visited-set key of an entry: its content hash when one
// is declared, else its resolved location, else its id scoped to the
// listing manifest.
func identity(e manifest.Entry, location, parent string) string {
	if h := e.ContentHash(); h != "" {
		if d, err := integrity.Parse(h); err == nil {
			return "hash:" + d.String()
		}
		return "hash:" + h
	}
	if location != "" {
		return locationKey(location)
	}
	return "id:" + parent + "#" + e.ID
}

func locationKey(location string) string {
	if loc, err := security.NormalizeLocation(location); err == nil {
		location = loc
	}
	return "loc:" + location
}

func refEntry(r manifest.Ref, rawKind string) manifest.Entry {
	return manifest.Entry{
		ID:       r.ID,
		Kind:     manifest.KindBurrow,
		RawKind:  rawKind,
		Location: r.Location,
		Title:    r.Title,
		Tags:     r.Tags,
		Priority: r.Priority,
		Extra:    r.Extra,
	}
}

// prefetcher discovers nested manifests ahead of the queue on a bounded
// pool. Results are claimed by the walker when it dequeues the frame;
// unclaimed results are dropped.
type prefetcher struct {
	ctx     context.Context //nolint:containedctx // pool outlives a single call
	g       *errgroup.Group
	mu      sync.Mutex
	pending map[string]*pendingExpansion
}

type pendingExpansion struct {
	done chan struct{}
	disc *Discovery
	err  error
}

func (p *pendingExpansion) result(ctx context.Context) (*Discovery, error) {
	select {
	case <-p.done:
		return p.disc, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newPrefetcher(ctx context.Context, workers int) *prefetcher {
	p := &prefetcher{ctx: ctx, pending: make(map[string]*pendingExpansion)}
	if workers > 0 {
		p.g = &errgroup.Group{}
		p.g.SetLimit(workers)
	}
	return p
}

// start runs fn in the pool unless key is already pending or the pool is
// full; a frame that was not prefetched is expanded when dequeued.
func (p *prefetcher) start(key string, fn func(context.Context) (*Discovery, error)) {
	if p.g == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[key]; ok {
		return
	}
	pe := &pendingExpansion{done: make(chan struct{})}
	if p.g.TryGo(func() error {
		defer close(pe.done)
		pe.disc, pe.err = fn(p.ctx)
		return nil
	}) {
		p.pending[key] = pe
	}
}

func (p *prefetcher) take(key string) (*pendingExpansion, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pe, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	return pe, ok
}

func (p *prefetcher) wait() {
	if p.g != nil {
		_ = p.g.Wait() //nolint:errcheck // tasks never return errors
	}
}
