package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Attempt is one try at fetching a location.
type Attempt struct {
	// Root is the location that was tried.
	Root string `json:"root"`

	Error      string    `json:"error"`
	StatusCode int       `json:"statusCode,omitempty"`
	At         time.Time `json:"at"`
}

// Record is one final failure.
type Record struct {
	Category Category  `json:"category"`
	Message  string    `json:"message"`
	EntryID  string    `json:"entryId,omitempty"`
	Location string    `json:"location,omitempty"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Error implements error.
func (r Record) Error() string {
	switch {
	case r.EntryID != "" && r.Location != "":
		return fmt.Sprintf("%s: entry %q at %s: %s", r.Category, r.EntryID, r.Location, r.Message)
	case r.Location != "":
		return fmt.Sprintf("%s: %s: %s", r.Category, r.Location, r.Message)
	default:
		return fmt.Sprintf("%s: %s", r.Category, r.Message)
	}
}

// Unwrap returns the category so errors.Is matches it.
func (r Record) Unwrap() error {
	return r.Category
}

// Stop reasons.
const (
	StopMaxEntries = "max-entries"
	StopCancelled  = "cancelled"
	StopError      = "error"
)

// Report summarizes one traversal.
type Report struct {
	// ID uniquely identifies the traversal run.
	ID string `json:"id"`

	ManifestLocation string    `json:"manifestLocation"`
	StartedAt        time.Time `json:"startedAt"`
	CompletedAt      time.Time `json:"completedAt"`

	// EntriesProcessed counts entry events.
	EntriesProcessed int `json:"entriesProcessed"`

	// EntriesSkipped counts entries rejected by the caller's predicate.
	EntriesSkipped int `json:"entriesSkipped"`

	CyclesDetected int   `json:"cyclesDetected"`
	DepthLimited   int   `json:"depthLimited"`
	ContentFetched int   `json:"contentFetched"`
	BytesFetched   int64 `json:"bytesFetched"`

	// StopReason is set when the traversal ended before the queue emptied.
	StopReason string `json:"stopReason,omitempty"`

	Errors []Record `json:"errors"`
}

// Duration returns how long the traversal ran.
func (r *Report) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// HasErrors reports whether any failure was recorded.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// CountByCategory returns the number of records per category.
func (r *Report) CountByCategory() map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, rec := range r.Errors {
		counts[rec.Category]++
	}
	return counts
}

// ErrorsIn returns the records of one category in recording order.
func (r *Report) ErrorsIn(c Category) []Record {
	var out []Record
	for _, rec := range r.Errors {
		if rec.Category == c {
			out = append(out, rec)
		}
	}
	return out
}

// Err returns every record folded into one error, or nil.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, rec := range r.Errors {
		result = multierror.Append(result, rec)
	}
	return result.ErrorOrNil()
}

// Reporter accumulates failures and counters for one traversal. It is safe
// for concurrent use.
type Reporter struct {
	mu       sync.Mutex
	report   Report
	now      func() time.Time
	finished bool
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		r.now = now
	}
}

// NewReporter starts a report for a traversal rooted at location.
func NewReporter(location string, opts ...ReporterOption) *Reporter {
	r := &Reporter{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.report = Report{
		ID:               uuid.NewString(),
		ManifestLocation: location,
		StartedAt:        r.now(),
		Errors:           []Record{},
	}
	return r
}

// SetManifestLocation records the manifest discovery resolved to.
func (r *Reporter) SetManifestLocation(location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.ManifestLocation = location
}

// Record adds a failure.
func (r *Reporter) Record(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Errors = append(r.report.Errors, rec)
}

// EntryProcessed counts an emitted entry and returns the new total.
func (r *Reporter) EntryProcessed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.EntriesProcessed++
	return r.report.EntriesProcessed
}

// EntrySkipped counts an entry rejected by a predicate.
func (r *Reporter) EntrySkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.EntriesSkipped++
}

// CycleDetected counts a repeated identity.
func (r *Reporter) CycleDetected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.CyclesDetected++
}

// DepthLimited counts an entry beyond the maximum depth.
func (r *Reporter) DepthLimited() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.DepthLimited++
}

// ContentFetched counts fetched entry content.
func (r *Reporter) ContentFetched(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.ContentFetched++
	r.report.BytesFetched += int64(n)
}

// Stop records why the traversal ended early. The first reason wins.
func (r *Reporter) Stop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.report.StopReason == "" {
		r.report.StopReason = reason
	}
}

// Finish stamps the completion time on the first call and returns a copy
// of the report.
func (r *Reporter) Finish() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.report.CompletedAt = r.now()
		r.finished = true
	}
	return r.copyLocked()
}

// Snapshot returns a copy of the report so far.
func (r *Reporter) Snapshot() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

func (r *Reporter) copyLocked() *Report {
	cp := r.report
	cp.Errors = make([]Record, len(r.report.Errors))
	copy(cp.Errors, r.report.Errors)
	return &cp
}
