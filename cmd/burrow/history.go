package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/database"
	"github.com/nao1215/burrow/internal/report"
)

// Flags of the history command.
const (
	flagLimit = "limit"
	flagShow  = "show"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [location]",
		Short: "List saved traversal reports",
		Long: `History lists the traversal reports saved by traverse, newest first. With a
location, only reports of that manifest are listed. --show prints one saved
report in full.

Examples:
  burrow history
  burrow history --limit 5 https://example.com/.burrow.json
  burrow history --show 3f0c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP(flagLimit, "l", 20, "Maximum number of reports listed (0 for all)")
	cmd.Flags().String(flagShow, "", "Print the report with this id")
	cmd.Flags().BoolP(flagJSON, "j", false, "Print --show output as JSON")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, v, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, err := database.Open(cfg.DBDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("no traversal history yet: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()

	if id := v.GetString(flagShow); id != "" {
		rep, err := db.Report(ctx, id)
		if err != nil {
			return err
		}
		if rep == nil {
			return fmt.Errorf("no report with id %s", id)
		}
		var w report.Writer = report.NewTextWriter(out, report.WithVerbose(cfg.Verbose))
		if cfg.JSONReport {
			w = report.NewJSONWriter(out, report.WithPrettyPrint())
		}
		_, err = w.Write(rep)
		return err
	}

	var location string
	if len(args) == 1 {
		if location, err = resolveLocation(args[0]); err != nil {
			return err
		}
	}

	rows, err := db.History(ctx, location, v.GetInt(flagLimit))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No traversal reports saved.")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("ID", "Location", "Started", "Duration", "Entries", "Errors", "Stopped")
	for _, r := range rows {
		if err := table.Append(
			r.ID,
			r.ManifestLocation,
			humanize.Time(r.StartedAt),
			r.Duration().Round(time.Millisecond).String(),
			humanize.Comma(int64(r.EntriesProcessed)),
			humanize.Comma(int64(r.ErrorCount)),
			orDash(r.StopReason),
		); err != nil {
			return err
		}
	}
	return table.Render()
}
