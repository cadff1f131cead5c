package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/client"
	"github.com/nao1215/burrow/internal/config"
	"github.com/nao1215/burrow/internal/database"
	"github.com/nao1215/burrow/internal/manifest"
	"github.com/nao1215/burrow/internal/report"
)

// Filter and output flags of the traverse command.
const (
	flagContent = "content"
	flagKind    = "kind"
	flagTag     = "tag"
	flagIgnore  = "ignore"
	flagFollow  = "follow"
	flagQuiet   = "quiet"
)

var (
	errTraversalFailed    = errors.New("traversal finished with errors")
	errTraversalCancelled = errors.New("traversal cancelled")
)

// NewTraverseCmd creates the traverse command.
func NewTraverseCmd() *cobra.Command {
	defaults := config.NewConfig()

	cmd := &cobra.Command{
		Use:   "traverse <location>",
		Short: "Walk a manifest tree breadth-first",
		Long: `Traverse discovers the manifest at the location and walks every entry
breadth-first. Siblings are visited by descending priority; equal priorities
keep manifest order. Nested burrows, directories, map files and the burrows
and warrens of a warren are expanded; an entry already visited is reported as
a cycle and not expanded again.

Failures are collected into a report printed at the end. The command exits
with status 1 when the report contains any error. Reports are saved to the
history database unless --no-history is given.

Ignore and follow patterns from the configuration file apply to the root
location's host, in addition to --ignore and --follow.

Examples:
  # Walk a site and fetch every file entry
  burrow traverse --content https://example.com/

  # Only guides, at most three levels deep
  burrow traverse --tag guide --max-depth 3 https://example.com/

  # Skip drafts and write a JSON report
  burrow traverse --ignore '/drafts/*' --json -o report.json https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runTraverseCmd,
	}

	f := cmd.Flags()
	f.IntP(flagMaxDepth, "d", defaults.Limits.MaxDepth, "Maximum nesting depth expanded")
	f.IntP(flagMaxEntries, "n", defaults.Limits.MaxEntries, "Stop after this many entries")
	f.Bool(flagSkipOnError, defaults.SkipOnError, "Continue past failed entries")
	f.Int(flagPrefetch, defaults.PrefetchWorkers, "Nested manifests discovered ahead of the queue (0 disables)")
	f.Bool(flagContent, false, "Fetch and verify the content of file entries")

	f.StringSlice(flagKind, nil, "Only visit entries of these kinds (file, dir, burrow, map, link)")
	f.StringSlice(flagTag, nil, "Only visit entries carrying one of these tags")
	f.StringSlice(flagIgnore, nil, "Skip entries whose path matches a pattern (e.g. '/drafts/*', '*.pdf')")
	f.StringSlice(flagFollow, nil, "Only visit entries whose path matches a pattern")

	f.BoolP(flagJSON, "j", false, "Output JSON report (mutually exclusive with --markdown)")
	f.BoolP(flagMarkdown, "m", false, "Output Markdown report (mutually exclusive with --json)")
	f.StringP(flagOutput, "o", "", "Write the report to a file (creates directories if needed)")
	f.Bool(flagNoHistory, false, "Do not save the report to the history database")
	f.BoolP(flagQuiet, "q", false, "Do not print entries as they are visited")

	return cmd
}

func runTraverseCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	loc, err := resolveLocation(args[0])
	if err != nil {
		return err
	}

	opts := []client.TraverseOption{client.WithFetchContent(s.v.GetBool(flagContent))}
	pred, err := buildPredicate(s, loc)
	if err != nil {
		return err
	}
	if pred != nil {
		opts = append(opts, client.WithPredicate(pred))
	}

	s.logger.Info("starting traversal",
		"location", loc,
		"maxDepth", s.cfg.Limits.MaxDepth,
		"maxEntries", s.cfg.Limits.MaxEntries,
		"prefetch", s.cfg.PrefetchWorkers,
	)

	// Structured reports on stdout must not be interleaved with progress.
	progress := cmd.OutOrStdout()
	if s.v.GetBool(flagQuiet) || ((s.cfg.JSONReport || s.cfg.MarkdownReport) && s.cfg.ReportFile == "") {
		progress = io.Discard
	}

	t := s.client.Traverse(ctx, loc, opts...)
	for ev := range t.All() {
		printEvent(progress, ev)
	}
	rep := t.Wait()

	if err := writeReport(cmd, s.cfg, rep, s.v.GetBool(flagQuiet)); err != nil {
		return err
	}

	if s.cfg.SaveHistory {
		if err := saveHistory(context.WithoutCancel(ctx), s.cfg.DBDir, rep); err != nil {
			s.logger.Error("failed to save traversal report", "error", err)
		} else {
			s.logger.Info("traversal report saved", "id", rep.ID)
		}
	}

	switch {
	case rep.StopReason == report.StopCancelled && ctx.Err() != nil:
		return errTraversalCancelled
	case rep.HasErrors():
		return fmt.Errorf("%w: %d error(s)", errTraversalFailed, len(rep.Errors))
	}
	return nil
}

// buildPredicate combines the filter flags with the ignore and follow
// patterns configured for the root host. It returns nil when nothing
// filters.
func buildPredicate(s *session, loc string) (client.Predicate, error) {
	ignore := s.v.GetStringSlice(flagIgnore)
	follow := s.v.GetStringSlice(flagFollow)
	if s.cfg.SiteConfigs != nil {
		if u, err := url.Parse(loc); err == nil && u.Hostname() != "" {
			sc := s.cfg.SiteConfigs.GetSiteConfig(u.Hostname())
			ignore = append(ignore, sc.IgnorePatterns...)
			if len(follow) == 0 {
				follow = sc.FollowPatterns
			}
		}
	}

	var preds []client.Predicate
	if len(ignore) > 0 || len(follow) > 0 {
		preds = append(preds, client.MatchPatterns(ignore, follow))
	}

	if names := s.v.GetStringSlice(flagKind); len(names) > 0 {
		kinds := make([]manifest.Kind, 0, len(names))
		for _, name := range names {
			k := manifest.ParseKind(name)
			if k == manifest.KindUnknown {
				return nil, fmt.Errorf("unknown entry kind %q", name)
			}
			kinds = append(kinds, k)
		}
		preds = append(preds, client.MatchKinds(kinds...))
	}

	if tags := s.v.GetStringSlice(flagTag); len(tags) > 0 {
		preds = append(preds, client.MatchTags(tags...))
	}

	if len(preds) == 0 {
		return nil, nil
	}
	return client.And(preds...), nil
}

// printEvent writes one progress line, indented by depth.
func printEvent(w io.Writer, ev client.Event) {
	indent := strings.Repeat("  ", ev.Depth)
	switch ev.Kind {
	case client.EventEntry:
		fmt.Fprintf(w, "%s%s [%s] %s\n", indent, ev.Entry.ID, ev.Entry.RawKind, orDash(ev.Location))
	case client.EventContent:
		if ev.Content == nil {
			return
		}
		state := "unverified"
		if ev.Content.Verified {
			state = "verified"
		}
		fmt.Fprintf(w, "%s  fetched %s, %s\n", indent, humanize.IBytes(uint64(len(ev.Content.Data))), state)
	case client.EventCycle:
		fmt.Fprintf(w, "%s%s: already visited, not expanded\n", indent, ev.Entry.ID)
	case client.EventDepthLimit:
		fmt.Fprintf(w, "%s%s: depth limit reached, not expanded\n", indent, ev.Entry.ID)
	case client.EventError:
		msg := "failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		fmt.Fprintf(w, "%s%s: %s\n", indent, orDash(ev.Entry.ID), msg)
	}
}

// writeReport renders rep in the configured format. A report written to
// a file is also summarized on stdout unless quiet.
func writeReport(cmd *cobra.Command, cfg *config.Config, rep *report.Report, quiet bool) error {
	var buf bytes.Buffer
	var primary report.Writer
	switch {
	case cfg.JSONReport:
		primary = report.NewJSONWriter(&buf, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		primary = report.NewMarkdownWriter(&buf)
	default:
		primary = report.NewTextWriter(&buf, report.WithVerbose(cfg.Verbose))
	}

	if cfg.ReportFile == "" {
		if _, err := primary.Write(rep); err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}

	writers := []report.Writer{primary}
	if !quiet {
		writers = append(writers, report.NewTextWriter(cmd.OutOrStdout()))
	}
	if _, err := report.NewMultiWriter(writers...).Write(rep); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := writeFileAtomic(cfg.ReportFile, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", cfg.ReportFile)
	return nil
}

// saveHistory appends rep to the history database in dir.
func saveHistory(ctx context.Context, dir string, rep *report.Report) error {
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveReport(ctx, rep)
}
