package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/manifest"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <location>",
		Short: "List the entries of a burrow or the burrows of a warren",
		Long: `List discovers the manifest at the location and prints its contents as a
table: entries for a burrow, referenced burrows and warrens for a warren.

Examples:
  burrow list https://example.com/docs/
  burrow list ./site/.burrow.json`,
		Args: cobra.ExactArgs(1),
		RunE: runListCmd,
	}
}

func runListCmd(cmd *cobra.Command, args []string) error {
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
	if d.Warren != nil {
		fmt.Fprintf(out, "warren %s\n", d.Warren.Source)
		if err := writeRefTable(out, d.Warren); err != nil {
			return err
		}
	}
	if d.Burrow != nil {
		if d.Warren != nil {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "burrow %s\n", d.Burrow.Source)
		if err := writeEntryTable(out, d.Burrow.Entries); err != nil {
			return err
		}
	}
	return nil
}

func writeEntryTable(w io.Writer, entries []manifest.Entry) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Kind", "Title", "Size", "Hash", "URI")
	for _, e := range entries {
		size := "-"
		if e.SizeBytes > 0 {
			size = humanize.IBytes(uint64(e.SizeBytes)) //nolint:gosec // checked positive
		}
		if err := table.Append(e.ID, e.RawKind, orDash(e.Title), size, shortHash(e.ContentHash()), e.Location); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeRefTable(w io.Writer, wr *manifest.Warren) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Kind", "Title", "Priority", "URI")
	add := func(kind string, refs []manifest.Ref) error {
		for _, r := range refs {
			if err := table.Append(r.ID, kind, orDash(r.Title), strconv.Itoa(r.Priority), r.Location); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(manifest.KindNameBurrow, wr.Burrows); err != nil {
		return err
	}
	if err := add(manifest.KindNameWarren, wr.Warrens); err != nil {
		return err
	}
	return table.Render()
}

// shortHash abbreviates "sha256:0123..." to the algorithm and twelve hex
// digits.
func shortHash(h string) string {
	const keep = 12
	if h == "" {
		return "-"
	}
	alg, hex, found := strings.Cut(h, ":")
	if !found {
		alg, hex = "", h
	}
	if len(hex) > keep {
		hex = hex[:keep]
	}
	if alg == "" {
		return hex
	}
	return alg + ":" + hex
}
