package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/server"
)

// MessageOptions holds flags for the message command.
type MessageOptions struct {
	*RootOptions
	Server string
}

// MessageResult is the output of the message command.
type MessageResult struct {
	Message string `json:"message"`
	Worker  string `json:"worker"`
}

func (r MessageResult) String() string {
	return fmt.Sprintf("✓ Delivered %q to worker %s", r.Message, r.Worker)
}

// NewMessageCommand creates the message command.
func NewMessageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MessageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "message <skipWaiting|downloadOffline>",
		Short: "Send a control message to a running server",
		Long: `Deliver a control message to the waiting worker of a running server, or
to its active worker if none is waiting.

  skipWaiting       activate a waiting worker now
  downloadOffline   fetch every uncached manifest resource`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessage(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "server base URL (default http://<listen>)")

	return cmd
}

func runMessage(opts *MessageOptions, msg string, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	base := opts.Server
	if base == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		base = "http://" + cfg.Listen
	}
	endpoint := strings.TrimRight(base, "/") + server.ControlPrefix + "/message"
	formatter.VerboseLog("POST %s", endpoint)

	client := &http.Client{Timeout: 10 * time.Minute}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, strings.NewReader(msg))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid server URL", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := client.Do(req)
	if err != nil {
		return WrapExitError(ExitCommandError, "server unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return WrapExitError(ExitFailure, "reading response", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		var httpErr struct {
			Message string `json:"message"`
		}
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &httpErr) == nil && httpErr.Message != "" {
			message = httpErr.Message
		}
		_ = formatter.Error(fmt.Sprintf("HTTP_%d", resp.StatusCode), message, nil)
		return NewExitError(ExitFailure, fmt.Sprintf("message rejected: %s", message))
	}

	var result MessageResult
	if err := json.Unmarshal(body, &result); err != nil {
		return WrapExitError(ExitFailure, "decoding response", err)
	}
	return formatter.Success(result)
}
