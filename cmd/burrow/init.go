package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/config"
)

//go:embed templates/burrow.yaml
var configTemplate embed.FS

const flagForce = "force"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a burrow configuration file",
		Long: `Init writes a commented .burrow.yaml to the current directory.

The generated file includes:
- The default limits, cache, retry and traversal settings
- Per-host pacing defaults
- Commented examples for per-site cookies, headers and path patterns

Examples:
  # Create .burrow.yaml in the current directory
  burrow init

  # Create the file at a specific path
  burrow init -o ~/.config/burrow/config.yaml

  # Overwrite an existing file
  burrow init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP(flagOutput, "o", config.DefaultConfigFile, "Output file path for the configuration")
	cmd.Flags().BoolP(flagForce, "f", false, "Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString(flagOutput)
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool(flagForce)
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/burrow.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}
	if err := writeFileAtomic(outputPath, content); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - Limits, cache and retry behavior")
	fmt.Fprintln(out, "  - Authentication cookies and headers per site")
	fmt.Fprintln(out, "  - Entry path patterns to ignore or follow")
	return nil
}
