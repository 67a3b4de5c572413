package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/manifest"
)

// StatusResult is the output of the status command.
type StatusResult struct {
	Origin       string   `json:"origin"`
	Digest       string   `json:"digest"`
	StoredDigest string   `json:"stored_digest,omitempty"`
	Current      bool     `json:"current"`
	Resources    int      `json:"resources"`
	Cached       int      `json:"cached"`
	Staged       int      `json:"staged"`
	Missing      []string `json:"missing"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Origin:     %s\n", r.Origin)
	fmt.Fprintf(&b, "Manifest:   %s (%d resources)\n", manifest.ShortDigest(r.Digest), r.Resources)
	switch {
	case r.StoredDigest == "":
		fmt.Fprintf(&b, "Activated:  never\n")
	case r.Current:
		fmt.Fprintf(&b, "Activated:  %s (current)\n", manifest.ShortDigest(r.StoredDigest))
	default:
		fmt.Fprintf(&b, "Activated:  %s (outdated)\n", manifest.ShortDigest(r.StoredDigest))
	}
	fmt.Fprintf(&b, "Cached:     %d\n", r.Cached)
	fmt.Fprintf(&b, "Staged:     %d\n", r.Staged)
	fmt.Fprintf(&b, "Missing:    %d", len(r.Missing))
	for _, key := range r.Missing {
		fmt.Fprintf(&b, "\n  %s", key)
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cache state for the manifest",
		Long: `Compare the cache database against the manifest: which manifest was last
activated, how many resources are cached or staged, and which are missing.

Status never modifies the database.`,
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
			state, err := w.Inspect(cmd.Context())
			if err != nil {
				return f.Fail("inspect failed", err)
			}

			missing := state.Missing
			if missing == nil {
				missing = []string{}
			}
			return f.Success(StatusResult{
				Origin:       w.Origin().String(),
				Digest:       w.Digest(),
				StoredDigest: state.StoredDigest,
				Current:      state.StoredDigest == w.Digest(),
				Resources:    len(w.Build().Resources),
				Cached:       len(state.Content),
				Staged:       len(state.Staging),
				Missing:      missing,
			})
		},
	}
}
