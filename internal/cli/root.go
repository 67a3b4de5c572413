package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
//
// Database, Origin and Manifest override the config file and environment
// when set.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Database   string
	Origin     string
	Manifest   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the assetsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "assetsync",
		Short: "assetsync - versioned static-asset cache",
		Long: `Keep a durable, incrementally updated cache of an app's static assets.

A build emits a manifest mapping each asset path to a content fingerprint.
assetsync installs the core shell, reconciles the cache against the previous
manifest on activation, and serves cached assets when the origin is down.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "path to YAML config file")
	pf.StringVar(&opts.Database, "db", "", "path to SQLite cache database")
	pf.StringVar(&opts.Origin, "origin", "", "origin the manifest paths are relative to")
	pf.StringVarP(&opts.Manifest, "manifest", "m", "", "path to the manifest (json, yaml or cue)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInstallCommand(opts))
	cmd.AddCommand(NewActivateCommand(opts))
	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewDownloadCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewMessageCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
