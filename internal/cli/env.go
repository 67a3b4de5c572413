package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/assetsync/internal/conf"
	"github.com/roach88/assetsync/internal/fetch"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/metrics"
	"github.com/roach88/assetsync/internal/store"
	"github.com/roach88/assetsync/internal/worker"
)

// loadConfig resolves configuration from defaults, the config file, the
// environment and the global flags, in that order of precedence.
func loadConfig(opts *RootOptions) (*conf.Config, error) {
	v := conf.New()
	for key, val := range map[string]string{
		"database": opts.Database,
		"origin":   opts.Origin,
		"manifest": opts.Manifest,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	cfg, err := conf.Load(v, opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg conf.Log, verbose bool, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// session is the state shared by commands that drive a worker.
type session struct {
	cfg     *conf.Config
	log     *slog.Logger
	store   *store.Store
	origin  manifest.Origin
	network fetch.Fetcher

	// metrics is nil unless a command exposes it.
	metrics *metrics.Metrics
}

// openSession loads config, opens the cache database, and builds the
// network client. The caller must Close the session.
func openSession(opts *RootOptions, errOut io.Writer) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.Origin == "" {
		return nil, NewExitError(ExitCommandError, "origin is required (--origin, config origin, or ASSETSYNC_ORIGIN)")
	}
	origin, err := manifest.ParseOrigin(cfg.Origin)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid origin", err)
	}

	logger := newLogger(cfg.Log, opts.Verbose, errOut)
	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &session{
		cfg:    cfg,
		log:    logger,
		store:  st,
		origin: origin,
		network: fetch.New(fetch.Options{
			Timeout:      cfg.Fetch.Timeout.Std(),
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}),
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Error("error closing database", "error", err)
	}
}

// loadBuild loads the configured manifest.
func (s *session) loadBuild() (*manifest.Build, error) {
	if s.cfg.Manifest == "" {
		return nil, NewExitError(ExitCommandError, "manifest is required (--manifest, config manifest, or ASSETSYNC_MANIFEST)")
	}
	b, err := manifest.Load(s.cfg.Manifest)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load manifest", err)
	}
	return b, nil
}

// newWorker creates a worker for b with no host. One-shot commands drive
// the lifecycle themselves.
func (s *session) newWorker(b *manifest.Build) (*worker.Worker, error) {
	w, err := worker.New(worker.Options{
		Origin:          s.origin,
		Build:           b,
		Storage:         s.store,
		Network:         s.network,
		Partitions:      s.cfg.Partitions,
		OfflineLimiter:  fetch.NewLimiter(s.cfg.Fetch.Rate, s.cfg.Fetch.Burst),
		ParallelFetches: s.cfg.Fetch.Parallel,
		Logger:          s.log,
		Metrics:         s.metrics,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create worker", err)
	}
	return w, nil
}

// loadWorker loads the manifest and creates a worker for it.
func (s *session) loadWorker() (*worker.Worker, error) {
	b, err := s.loadBuild()
	if err != nil {
		return nil, err
	}
	return s.newWorker(b)
}

func formatterFor(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
	}
}
