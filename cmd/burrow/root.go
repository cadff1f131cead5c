package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for burrow.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "burrow",
		Short: "Discover, traverse and verify burrow manifests",
		Long: `burrow is a client for burrow and warren manifests.

A burrow is a JSON manifest that describes the content published under a
location: files, nested burrows, directories and links, optionally with
content hashes. A warren is a registry of burrows. burrow finds manifests at
well-known names, walks them breadth-first with cycle detection, and fetches
content through a retrying, rate-limited and SSRF-guarded transport.

Every flag can also be set through an environment variable: --max-depth is
BURROW_MAX_DEPTH, --allow-private is BURROW_ALLOW_PRIVATE, and so on.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(cmd)

	cmd.AddCommand(NewDiscoverCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewTraverseCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCacheCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
