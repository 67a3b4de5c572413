package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/fetch"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/metrics"
	"github.com/roach88/assetsync/internal/server"
	"github.com/roach88/assetsync/internal/watch"
	"github.com/roach88/assetsync/internal/worker"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	Watch  bool

	// IDs allows overriding the worker id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs worker.IDGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the app through the asset cache",
		Long: `Start an HTTP server in front of the origin.

Cataloged GET requests are answered from the cache (the root document is
fetched from the network first); everything else is proxied to the origin.
On start the manifest is resumed from the cache if it was already activated,
and deployed otherwise. With --watch, changes to the manifest file are
deployed automatically.

Control endpoints:
  POST /__assetsync/message   skipWaiting | downloadOffline
  GET  /__assetsync/status
  GET  /__assetsync/metrics

Example:
  assetsync serve --db ./cache.db --origin https://app.example -m build/manifest.json --watch`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "redeploy when the manifest file changes")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.Close()
	s.metrics = metrics.New()

	listen := s.cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	reg, err := server.NewRegistration(server.Config{
		Origin:          s.origin,
		Storage:         s.store,
		Network:         s.network,
		Partitions:      s.cfg.Partitions,
		OfflineLimiter:  fetch.NewLimiter(s.cfg.Fetch.Rate, s.cfg.Fetch.Burst),
		ParallelFetches: s.cfg.Fetch.Parallel,
		IDs:             opts.IDs,
		Logger:          s.log,
		Metrics:         s.metrics,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create registration", err)
	}
	srv, err := server.New(reg, server.Options{Addr: listen, Logger: s.log, Metrics: s.metrics})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create server", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			s.log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.cfg.Manifest != "" {
		startup(ctx, s, reg)
	} else {
		s.log.Warn("no manifest configured, proxying everything to the origin")
	}

	var wg sync.WaitGroup
	if (opts.Watch || s.cfg.Watch) && s.cfg.Manifest != "" {
		watcher, err := watch.New(s.cfg.Manifest, watch.DefaultDebounce, s.log)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch manifest", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = watcher.Run(ctx, func(ctx context.Context) { redeploy(ctx, s, reg) })
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s. Press Ctrl-C to stop.\n", s.origin, listen)
	err = srv.Run(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	s.log.Info("server stopped gracefully")
	return nil
}

// startup resumes the configured build if it is already activated and
// deploys it otherwise. A failed deploy is logged; the server still starts
// and proxies to the origin.
func startup(ctx context.Context, s *session, reg *server.Registration) {
	b, err := manifest.Load(s.cfg.Manifest)
	if err != nil {
		s.log.Error("failed to load manifest", "path", s.cfg.Manifest, "error", err)
		return
	}
	result, err := reg.Resume(ctx, b)
	if err == nil {
		s.log.Info("resumed activated build", "worker", result.Worker)
		return
	}
	if !errors.Is(err, server.ErrNotActivated) {
		s.log.Warn("resume failed, deploying", "error", err)
	}
	deploy(ctx, s, reg, b)
}

func redeploy(ctx context.Context, s *session, reg *server.Registration) {
	b, err := manifest.Load(s.cfg.Manifest)
	if err != nil {
		s.log.Error("ignoring invalid manifest", "path", s.cfg.Manifest, "error", err)
		return
	}
	deploy(ctx, s, reg, b)
}

func deploy(ctx context.Context, s *session, reg *server.Registration, b *manifest.Build) {
	result, err := reg.Deploy(ctx, b)
	if err != nil {
		s.log.Error("deploy failed", "code", worker.CodeOf(err), "error", err)
		return
	}
	s.log.Info("deployed", "worker", result.Worker, "state", result.State)
}
