package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/client"
	"github.com/nao1215/burrow/internal/manifest"
)

// NewDiscoverCmd creates the discover command.
func NewDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <location>",
		Short: "Find the burrow or warren published at a location",
		Long: `Discover looks for a warren (.warren.json, warren.json,
.well-known/warren.json) and a burrow (.burrow.json, burrow.json,
.well-known/burrow.json) at the location, then in up to --parent-walk parent
directories. A location ending in .json is read directly.

Examples:
  burrow discover https://example.com/docs/
  burrow discover --parent-walk 0 ./site
  burrow discover https://example.com/docs/.burrow.json`,
		Args: cobra.ExactArgs(1),
		RunE: runDiscoverCmd,
	}
}

func runDiscoverCmd(cmd *cobra.Command, args []string) error {
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

	d, err := s.client.Discover(ctx, loc)
	if err != nil {
		printAttempts(cmd.ErrOrStderr(), err, s.cfg.Verbose)
		return err
	}

	out := cmd.OutOrStdout()
	if d.Depth > 0 {
		fmt.Fprintf(out, "Found %d level(s) above the location, in %s\n\n", d.Depth, d.BaseLocation)
	}
	if d.Warren != nil {
		printWarrenSummary(out, d.Warren)
	}
	if d.Burrow != nil {
		if d.Warren != nil {
			fmt.Fprintln(out)
		}
		printBurrowSummary(out, d.Burrow)
	}
	return nil
}

func printBurrowSummary(w io.Writer, b *manifest.Burrow) {
	fmt.Fprintf(w, "burrow  %s\n", b.Source)
	fmt.Fprintf(w, "  Title:    %s\n", orDash(b.Title))
	fmt.Fprintf(w, "  Format:   %s\n", b.FormatVersion)
	fmt.Fprintf(w, "  Base:     %s\n", b.ResolvedBase)
	if b.Updated != "" {
		fmt.Fprintf(w, "  Updated:  %s\n", b.Updated)
	}
	fmt.Fprintf(w, "  Entries:  %d\n", len(b.Entries))
}

func printWarrenSummary(w io.Writer, wr *manifest.Warren) {
	fmt.Fprintf(w, "warren  %s\n", wr.Source)
	fmt.Fprintf(w, "  Title:    %s\n", orDash(wr.Title))
	fmt.Fprintf(w, "  Format:   %s\n", wr.FormatVersion)
	if wr.Updated != "" {
		fmt.Fprintf(w, "  Updated:  %s\n", wr.Updated)
	}
	fmt.Fprintf(w, "  Burrows:  %d\n", len(wr.Burrows))
	fmt.Fprintf(w, "  Warrens:  %d\n", len(wr.Warrens))
}

// printAttempts lists the locations tried by a failed operation.
func printAttempts(w io.Writer, err error, verbose bool) {
	e := client.AsError(err)
	if e == nil || len(e.Attempts) == 0 {
		return
	}
	if !verbose {
		fmt.Fprintf(w, "%d location(s) tried; use --verbose to list them\n", len(e.Attempts))
		return
	}
	fmt.Fprintln(w, "Tried:")
	for _, a := range e.Attempts {
		fmt.Fprintf(w, "  %s: %s\n", a.Root, a.Error)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
