package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/client"
	"github.com/nao1215/burrow/internal/report"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <location> <entry-id>",
		Short: "Fetch and verify one entry of a burrow",
		Long: `Fetch discovers the burrow at the location, looks up the entry by id,
downloads its content and checks it against the declared hash. Content that
does not match is never written.

Examples:
  # Print an entry to stdout
  burrow fetch https://example.com/docs/ getting-started

  # Save it to a file
  burrow fetch -o guide.md https://example.com/docs/ getting-started`,
		Args: cobra.ExactArgs(2),
		RunE: runFetchCmd,
	}

	cmd.Flags().StringP(flagOutput, "o", "", "Write the content to a file instead of stdout")

	return cmd
}

func runFetchCmd(cmd *cobra.Command, args []string) error {
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
	if d.Burrow == nil {
		return &client.Error{
			Category: report.CategoryManifestInvalid,
			Op:       "fetch",
			Location: d.BaseLocation,
			EntryID:  args[1],
			Err:      fmt.Errorf("%w: only a warren was found; fetch from one of its burrows", client.ErrUnexpectedKind),
		}
	}

	content, err := s.client.FetchEntryByID(ctx, d.Burrow, args[1])
	if err != nil {
		printAttempts(cmd.ErrOrStderr(), err, s.cfg.Verbose)
		return err
	}

	status := "unverified"
	if content.Verified {
		status = "verified"
	}
	s.logger.Info("entry fetched",
		"id", content.Entry.ID,
		"location", content.Location,
		"size", len(content.Data),
		"fromCache", content.FromCache,
	)

	if path := s.v.GetString(flagOutput); path != "" {
		if err := writeFileAtomic(path, content.Data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s, %s %s)\n",
			path, humanize.IBytes(uint64(len(content.Data))), status, content.Digest)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(content.Data)
	return err
}
