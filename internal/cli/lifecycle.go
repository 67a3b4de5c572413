package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/worker"
)

// InstallResult is the output of the install command.
type InstallResult struct {
	Worker string `json:"worker"`
	Digest string `json:"digest"`
	Staged int    `json:"staged"`
}

func (r InstallResult) String() string {
	return fmt.Sprintf("✓ Installed %s: staged %d core resource(s)", manifest.ShortDigest(r.Digest), r.Staged)
}

// ActivateResult is the output of the activate and deploy commands.
type ActivateResult struct {
	worker.ActivationReport
}

func (r ActivateResult) String() string {
	return fmt.Sprintf("✓ Activated %s (%s): %d retained, %d evicted, %d staged; %d changed, %d added, %d removed",
		manifest.ShortDigest(r.Digest), r.Mode, r.Retained, r.Evicted, r.Staged,
		len(r.Plan.Changed), len(r.Plan.Added), len(r.Plan.Removed))
}

// DownloadResult is the output of the download command.
type DownloadResult struct {
	Worker     string `json:"worker"`
	Downloaded int    `json:"downloaded"`
}

func (r DownloadResult) String() string {
	if r.Downloaded == 0 {
		return "✓ Everything is already cached"
	}
	return fmt.Sprintf("✓ Downloaded %d resource(s)", r.Downloaded)
}

// NewInstallCommand creates the install command.
func NewInstallCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Fetch the core shell into the staging cache",
		Long: `Fetch every core shell resource of the manifest into the staging cache.

All fetches bypass HTTP caches and must succeed; nothing is staged otherwise.
Run activate afterwards to promote the staged resources.

Example:
  assetsync install --db ./cache.db --origin https://app.example -m build/manifest.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			s, err := openSession(rootOpts, f.GetErrWriter())
			if err != nil {
				return err
			}
			defer s.Close()

			w, err := s.loadWorker()
			if err != nil {
				return err
			}
			if err := w.Install(cmd.Context()); err != nil {
				return f.Fail("install failed", err)
			}
			return f.Success(InstallResult{
				Worker: w.ID(),
				Digest: w.Digest(),
				Staged: len(w.Build().CoreKeys()),
			})
		},
	}
}

// NewActivateCommand creates the activate command.
func NewActivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Reconcile the staging cache into the content cache",
		Long: `Promote staged resources and evict cached resources whose fingerprint
changed since the last activation, then record the manifest.

On failure every cache partition is deleted so the next activation starts
fresh.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			s, err := openSession(rootOpts, f.GetErrWriter())
			if err != nil {
				return err
			}
			defer s.Close()

			w, err := s.loadWorker()
			if err != nil {
				return err
			}
			report, err := w.Activate(cmd.Context())
			if err != nil {
				return f.Fail("activation failed", err)
			}
			return f.Success(ActivateResult{*report})
		},
	}
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "deploy",
		Short:         "Install and activate in one step",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			s, err := openSession(rootOpts, f.GetErrWriter())
			if err != nil {
				return err
			}
			defer s.Close()

			w, err := s.loadWorker()
			if err != nil {
				return err
			}
			if err := w.Install(cmd.Context()); err != nil {
				return f.Fail("install failed", err)
			}
			report, err := w.Activate(cmd.Context())
			if err != nil {
				return f.Fail("activation failed", err)
			}
			return f.Success(ActivateResult{*report})
		},
	}
}

// NewDownloadCommand creates the download command.
func NewDownloadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download every uncached manifest resource for offline use",
		Long: `Fetch every manifest resource that is not in the content cache yet.

Downloads honor fetch.rate and fetch.burst. All fetches must succeed;
nothing is stored otherwise.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatterFor(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			s, err := openSession(rootOpts, f.GetErrWriter())
			if err != nil {
				return err
			}
			defer s.Close()

			w, err := s.loadWorker()
			if err != nil {
				return err
			}
			if missing, err := w.Missing(cmd.Context()); err == nil && len(missing) > 0 {
				f.VerboseLog("Missing: %s", strings.Join(missing, ", "))
			}
			n, err := w.DownloadOffline(cmd.Context())
			if err != nil {
				return f.Fail("offline download failed", err)
			}
			return f.Success(DownloadResult{Worker: w.ID(), Downloaded: n})
		},
	}
}
