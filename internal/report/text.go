package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TextWriter outputs a plain-text report for the terminal.
type TextWriter struct {
	baseWriter

	showEmpty bool
	verbose   bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithShowEmpty lists categories that have no records.
func WithShowEmpty(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.showEmpty = show
	}
}

// WithVerbose prints each record's attempt history.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var titleCaser = cases.Title(language.English)

// heading turns "hash-mismatch" into "Hash Mismatch".
func heading(c Category) string {
	return titleCaser.String(strings.ReplaceAll(string(c), "-", " "))
}

// Write implements Writer.
func (w *TextWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	rule := strings.Repeat("=", 70)
	sb.WriteString(rule + "\n")
	sb.WriteString("                     BURROW TRAVERSAL REPORT\n")
	sb.WriteString(rule + "\n\n")

	fmt.Fprintf(&sb, "Manifest:   %s\n", report.ManifestLocation)
	fmt.Fprintf(&sb, "Run:        %s\n", report.ID)
	fmt.Fprintf(&sb, "Started:    %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "Duration:   %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "Status:     %s\n\n", statusText(report))

	fmt.Fprintf(&sb, "  Processed: %s\n", humanize.Comma(int64(report.EntriesProcessed)))
	fmt.Fprintf(&sb, "  Skipped:   %s\n", humanize.Comma(int64(report.EntriesSkipped)))
	fmt.Fprintf(&sb, "  Cycles:    %s\n", humanize.Comma(int64(report.CyclesDetected)))
	fmt.Fprintf(&sb, "  Too deep:  %s\n", humanize.Comma(int64(report.DepthLimited)))
	fmt.Fprintf(&sb, "  Content:   %s (%s)\n\n", humanize.Comma(int64(report.ContentFetched)),
		humanize.Bytes(uint64(max(report.BytesFetched, 0))))

	w.writeErrors(&sb, report)

	sb.WriteString(rule + "\n")
	return w.output.Write([]byte(sb.String()))
}

func (w *TextWriter) writeErrors(sb *strings.Builder, report *Report) {
	if !report.HasErrors() && !w.showEmpty {
		sb.WriteString("No errors.\n\n")
		return
	}

	sb.WriteString(strings.Repeat("-", 70) + "\n")
	fmt.Fprintf(sb, "ERRORS (%d)\n", len(report.Errors))
	sb.WriteString(strings.Repeat("-", 70) + "\n\n")

	for _, c := range Categories {
		records := report.ErrorsIn(c)
		if len(records) == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "[%s] %d\n", heading(c), len(records))
		for _, rec := range records {
			label := rec.Location
			if rec.EntryID != "" {
				label = rec.EntryID + " " + label
			}
			fmt.Fprintf(sb, "  * %s\n", strings.TrimSpace(label))
			fmt.Fprintf(sb, "    %s\n", rec.Message)
			if w.verbose {
				for i, a := range rec.Attempts {
					status := ""
					if a.StatusCode != 0 {
						status = fmt.Sprintf(" [%d]", a.StatusCode)
					}
					fmt.Fprintf(sb, "    attempt %d%s %s: %s\n", i+1, status, a.Root, a.Error)
				}
			}
		}
		sb.WriteString("\n")
	}
}
