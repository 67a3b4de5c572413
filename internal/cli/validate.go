package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/manifest"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	Format    string `json:"format"`
	Digest    string `json:"digest"`
	Resources int    `json:"resources"`
	Core      int    `json:"core"`
}

func (r ValidationResult) String() string {
	return fmt.Sprintf("✓ Manifest valid (%s): %d resources, %d core, digest %s",
		r.Format, r.Resources, r.Core, manifest.ShortDigest(r.Digest))
}

// ValidationFailure is the error payload of a failed validation.
type ValidationFailure struct {
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate a manifest without touching the cache",
		Long: `Load a manifest and check its invariants: every core entry is a resource,
keys are origin-relative paths, fingerprints are non-empty.

CUE manifests are unified with the manifest schema first, so constraint
violations are reported with their position.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Manifest
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return NewExitError(ExitCommandError, "manifest path is required")
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	format, err := manifest.FormatFromPath(path)
	if err != nil {
		return outputValidateError(formatter, err)
	}
	formatter.VerboseLog("Loading %s manifest %s", format, path)

	b, err := manifest.Load(path)
	if err != nil {
		return outputValidateError(formatter, err)
	}
	digest, err := b.Resources.Digest()
	if err != nil {
		return outputValidateError(formatter, err)
	}

	return formatter.Success(ValidationResult{
		Valid:     true,
		Format:    string(format),
		Digest:    digest,
		Resources: len(b.Resources),
		Core:      len(b.CoreKeys()),
	})
}

// outputValidateError reports a load failure. Missing files and unsupported
// formats are command errors (exit 2); invalid content is a validation
// failure (exit 1).
func outputValidateError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var details any

	var loadErr *manifest.LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
		if loadErr.Pos.IsValid() {
			details = ValidationFailure{Line: loadErr.Pos.Line(), Column: loadErr.Pos.Column()}
		}
	}
	_ = formatter.Error(code, message, details)

	switch code {
	case manifest.ErrCodeNotFound, manifest.ErrCodeUnsupported:
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))
}
