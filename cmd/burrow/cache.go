package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/database"
)

const flagOlderThan = "older-than"

// NewCacheCmd creates the cache command and its subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persistent cache",
		Long: `Cache manages the SQLite cache written by commands run with --persist-cache.

Examples:
  burrow cache info
  burrow cache purge
  burrow cache purge --older-than 24h`,
		Args: cobra.NoArgs,
	}

	cmd.AddCommand(newCacheInfoCmd())
	cmd.AddCommand(newCachePurgeCmd())

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the size of the persistent cache",
		Args:  cobra.NoArgs,
		RunE:  runCacheInfoCmd,
	}
}

func newCachePurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached documents",
		Args:  cobra.NoArgs,
		RunE:  runCachePurgeCmd,
	}
	cmd.Flags().Duration(flagOlderThan, 0, "Only delete documents fetched longer ago than this (0 deletes everything)")
	return cmd
}

// openCache opens the cache database without creating it.
func openCache(cmd *cobra.Command) (*database.DB, error) {
	cfg, _, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.CacheDir, database.Options{EnableWAL: true})
	if err != nil {
		return nil, fmt.Errorf("no persistent cache in %s: %w", cfg.CacheDir, err)
	}
	return db, nil
}

func runCacheInfoCmd(cmd *cobra.Command, _ []string) error {
	db, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	n, size, err := db.CacheSize(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Path:       %s\n", db.Path())
	fmt.Fprintf(out, "Documents:  %s\n", humanize.Comma(int64(n)))
	fmt.Fprintf(out, "Payload:    %s\n", humanize.IBytes(uint64(size))) //nolint:gosec // sizes are never negative
	return nil
}

func runCachePurgeCmd(cmd *cobra.Command, _ []string) error {
	olderThan, err := cmd.Flags().GetDuration(flagOlderThan)
	if err != nil {
		return err
	}
	if olderThan < 0 {
		return fmt.Errorf("--%s must not be negative", flagOlderThan)
	}

	db, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	var before time.Time
	if olderThan > 0 {
		before = time.Now().Add(-olderThan)
	}
	n, err := db.PurgeCache(ctx, before)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s cached document(s)\n", humanize.Comma(n))
	return nil
}
