package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/burrow/internal/manifest"
	"github.com/nao1215/burrow/internal/transport"
)

const flagStrict = "strict"

var errValidationFailed = errors.New("manifest is invalid")

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a local manifest file for problems",
		Long: `Validate reads a burrow or warren manifest from disk and reports every
problem found instead of stopping at the first one: unsupported format
version, missing required fields, duplicate entry ids, malformed content
hashes and unknown entry kinds.

Errors make the command fail. Warnings are printed but tolerated unless
--strict is given.

Examples:
  burrow validate .burrow.json
  burrow validate --strict public/.well-known/warren.json`,
		Args: cobra.ExactArgs(1),
		RunE: runValidateCmd,
	}

	cmd.Flags().Bool(flagStrict, false, "Treat warnings as errors")

	return cmd
}

func runValidateCmd(cmd *cobra.Command, args []string) error {
	cfg, v, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path) //nolint:gosec // reading the user-named file is the point
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	source, err := transport.FileLocation(path)
	if err != nil {
		return err
	}

	doc, issues := manifest.CheckWithOptions(data, source, manifest.Options{MaxBytes: cfg.Limits.MaxManifestBytes})

	out := cmd.OutOrStdout()
	var errs, warnings int
	for _, issue := range issues {
		if issue.Severity == manifest.SeverityError {
			errs++
		} else {
			warnings++
		}
		fmt.Fprintf(out, "%s: %s\n", path, issue)
	}

	if doc != nil && errs == 0 {
		switch {
		case doc.Burrow != nil:
			fmt.Fprintf(out, "%s: valid burrow, %d entries, %d warning(s)\n", path, len(doc.Burrow.Entries), warnings)
		case doc.Warren != nil:
			fmt.Fprintf(out, "%s: valid warren, %d burrows, %d warrens, %d warning(s)\n",
				path, len(doc.Warren.Burrows), len(doc.Warren.Warrens), warnings)
		}
	}

	if errs > 0 || (v.GetBool(flagStrict) && warnings > 0) {
		return fmt.Errorf("%w: %d error(s), %d warning(s)", errValidationFailed, errs, warnings)
	}
	return nil
}
