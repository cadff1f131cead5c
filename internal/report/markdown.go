package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeErrors(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	md.H1("Burrow Traversal Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Manifest", "`" + report.ManifestLocation + "`"},
			{"Run ID", "`" + report.ID + "`"},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Entries Processed", strconv.Itoa(report.EntriesProcessed)},
			{"Entries Skipped", strconv.Itoa(report.EntriesSkipped)},
			{"Cycles Detected", strconv.Itoa(report.CyclesDetected)},
			{"Depth Limited", strconv.Itoa(report.DepthLimited)},
			{"Content Fetched", fmt.Sprintf("%d (%s)", report.ContentFetched, humanize.Bytes(uint64(max(report.BytesFetched, 0))))},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *Report) string {
	switch {
	case report.StopReason == StopMaxEntries:
		return "Stopped at entry limit"
	case report.StopReason == StopCancelled:
		return "Stopped by caller"
	case report.StopReason == StopError:
		return "Aborted on error"
	case report.HasErrors():
		return "Completed with errors"
	default:
		return "Complete"
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *Report) {
	md.H2("Error Summary")
	md.PlainText("")

	counts := report.CountByCategory()
	rows := make([][]string, 0, len(Categories)+1)
	for _, c := range Categories {
		rows = append(rows, []string{"`" + string(c) + "`", strconv.Itoa(counts[c])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(len(report.Errors)) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Category", "Count"}, Rows: rows})
	md.PlainText("")

	if report.HasErrors() {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Errors by Category"),
			piechart.WithShowData(true),
		)
		for _, c := range Categories {
			if n := counts[c]; n > 0 {
				chart.LabelAndIntValue(string(c), uint64(n))
			}
		}
		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case counts[CategoryHashMismatch] > 0:
		md.Cautionf("Content-hash verification failed %d time(s); that content was not trusted.", counts[CategoryHashMismatch])
	case report.StopReason == StopError:
		md.Warningf("Traversal aborted after an error; %d entries were processed.", report.EntriesProcessed)
	case report.HasErrors():
		md.Importantf("%d failure(s) were recorded; traversal continued past them.", len(report.Errors))
	default:
		md.Tip("No failures recorded.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, report *Report) {
	md.H2("Errors")
	md.PlainText("")

	if !report.HasErrors() {
		md.PlainText("None.")
		md.PlainText("")
		return
	}

	for _, c := range Categories {
		records := report.ErrorsIn(c)
		if len(records) == 0 {
			continue
		}
		md.PlainText("### " + string(c))
		md.PlainText("")

		rows := make([][]string, len(records))
		for i, rec := range records {
			rows[i] = []string{
				orDash(rec.EntryID),
				truncateString(orDash(rec.Location), 60),
				truncateString(rec.Message, 80),
				strconv.Itoa(len(rec.Attempts)),
			}
		}
		md.Table(markdown.TableSet{Header: []string{"Entry", "Location", "Message", "Attempts"}, Rows: rows})
		md.PlainText("")

		for _, rec := range records {
			if len(rec.Attempts) > 1 {
				md.Details(detailsTitle(rec), attemptsText(rec.Attempts))
			}
		}
		md.PlainText("")
	}
}

func detailsTitle(rec Record) string {
	if rec.EntryID != "" {
		return "Attempts for " + rec.EntryID
	}
	return "Attempts for " + rec.Location
}

func attemptsText(attempts []Attempt) string {
	var sb strings.Builder
	for i, a := range attempts {
		fmt.Fprintf(&sb, "%d. %s", i+1, a.Root)
		if a.StatusCode != 0 {
			fmt.Fprintf(&sb, " (status %d)", a.StatusCode)
		}
		fmt.Fprintf(&sb, ": %s\n", a.Error)
	}
	return sb.String()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [burrow](https://github.com/nao1215/burrow)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
