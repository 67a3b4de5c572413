package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/fetch"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/metrics"
	"github.com/roach88/assetsync/internal/worker"
)

// Worker states, as reported by Status.
const (
	StateInstalling = "installing"
	StateInstalled  = "installed"
	StateActivating = "activating"
	StateActivated  = "activated"
	StateRedundant  = "redundant"
)

// ErrNoWorker is returned by Message when no worker is registered.
var ErrNoWorker = errors.New("no worker registered")

// ErrNotActivated is returned by Resume when the build is not the one
// recorded by the last successful activation.
var ErrNotActivated = errors.New("build is not the activated manifest")

// Config configures a Registration.
type Config struct {
	Origin          manifest.Origin
	Storage         cache.Storage
	Network         fetch.Fetcher
	Partitions      worker.Partitions
	OfflineLimiter  *rate.Limiter
	ParallelFetches int
	IDs             worker.IDGenerator
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Registration is the in-process platform for workers.
//
// At most one worker is waiting and one is active at a time. The controller
// is the worker that serves intercepted requests; a worker becomes the
// controller only when it claims clients, so a failed activation leaves the
// previous controller in place.
//
// Thread-safety: all methods are safe for concurrent use. Deployments and
// activations are serialized.
type Registration struct {
	cfg Config
	log *slog.Logger

	// lifecycle serializes Deploy and activation.
	lifecycle sync.Mutex

	mu         sync.RWMutex
	waiting    *registered
	active     *registered
	controller *registered
}

type registered struct {
	w    *worker.Worker
	host *workerHost

	mu    sync.Mutex
	state string
}

func (r *registered) setState(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *registered) getState() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// workerHost is the Host handed to a single worker.
type workerHost struct {
	reg *Registration

	mu          sync.Mutex
	entry       *registered
	skipWaiting bool
}

func (h *workerHost) SkipWaiting() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.skipWaiting = true
}

func (h *workerHost) ClaimClients() {
	h.mu.Lock()
	entry := h.entry
	h.mu.Unlock()
	if entry != nil {
		h.reg.claim(entry)
	}
}

// takeSkipWaiting reports and clears a pending skip-waiting request.
func (h *workerHost) takeSkipWaiting() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	skip := h.skipWaiting
	h.skipWaiting = false
	return skip
}

// NewRegistration creates a Registration with no workers.
func NewRegistration(cfg Config) (*Registration, error) {
	if cfg.Origin == "" {
		return nil, fmt.Errorf("registration: origin is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("registration: storage is required")
	}
	if cfg.Network == nil {
		return nil, fmt.Errorf("registration: network is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger
	return &Registration{
		cfg: cfg,
		log: logger.With("component", "registration"),
	}, nil
}

// DeployResult describes the outcome of Deploy.
type DeployResult struct {
	Worker string `json:"worker"`
	Digest string `json:"digest"`
	State  string `json:"state"`

	// Activation is set when the worker was activated during Deploy.
	Activation *worker.ActivationReport `json:"activation,omitempty"`
}

// Deploy installs a new worker for build. Once installed the worker is
// waiting; if it asked to skip waiting, it is activated right away.
//
// An install failure discards the new worker and leaves the registration
// unchanged.
func (reg *Registration) Deploy(ctx context.Context, build *manifest.Build) (*DeployResult, error) {
	reg.lifecycle.Lock()
	defer reg.lifecycle.Unlock()

	entry, err := reg.newEntry(build)
	if err != nil {
		return nil, fmt.Errorf("deploy: %w", err)
	}
	w := entry.w

	log := reg.log.With("worker", w.ID(), "version", manifest.ShortDigest(w.Digest()))
	log.Info("deploying", "resources", len(build.Resources), "core", len(build.Core))

	if err := w.Install(ctx); err != nil {
		entry.setState(StateRedundant)
		return nil, fmt.Errorf("deploy: %w", err)
	}

	entry.setState(StateInstalled)
	reg.mu.Lock()
	if reg.waiting != nil {
		reg.waiting.setState(StateRedundant)
	}
	reg.waiting = entry
	reg.mu.Unlock()

	result := &DeployResult{Worker: w.ID(), Digest: w.Digest()}
	if entry.host.takeSkipWaiting() {
		report, err := reg.activate(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("deploy: %w", err)
		}
		result.Activation = report
	}
	result.State = entry.getState()
	return result, nil
}

// newEntry creates a worker for build, bound to its own host.
func (reg *Registration) newEntry(build *manifest.Build) (*registered, error) {
	host := &workerHost{reg: reg}
	w, err := worker.New(worker.Options{
		Origin:          reg.cfg.Origin,
		Build:           build,
		Storage:         reg.cfg.Storage,
		Network:         reg.cfg.Network,
		Host:            host,
		Partitions:      reg.cfg.Partitions,
		OfflineLimiter:  reg.cfg.OfflineLimiter,
		ParallelFetches: reg.cfg.ParallelFetches,
		IDs:             reg.cfg.IDs,
		Logger:          reg.cfg.Logger,
		Metrics:         reg.cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	entry := &registered{w: w, host: host, state: StateInstalling}
	host.mu.Lock()
	host.entry = entry
	host.mu.Unlock()
	return entry, nil
}

// Resume registers a worker for build as active and controlling without
// installing or activating it. It succeeds only if build's manifest is the
// one persisted by the last successful activation, which is how a restarted
// process picks up its cache without touching the network.
func (reg *Registration) Resume(ctx context.Context, build *manifest.Build) (*DeployResult, error) {
	reg.lifecycle.Lock()
	defer reg.lifecycle.Unlock()

	entry, err := reg.newEntry(build)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	w := entry.w
	stored, err := w.StoredManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if stored == nil || !stored.Equal(build.Resources) {
		return nil, ErrNotActivated
	}

	entry.setState(StateActivated)
	reg.mu.Lock()
	if reg.active != nil {
		reg.active.setState(StateRedundant)
	}
	reg.active = entry
	reg.controller = entry
	reg.mu.Unlock()

	reg.log.Info("resumed", "worker", w.ID(), "version", manifest.ShortDigest(w.Digest()))
	return &DeployResult{Worker: w.ID(), Digest: w.Digest(), State: StateActivated}, nil
}

// activate promotes a waiting worker. The caller holds reg.lifecycle.
func (reg *Registration) activate(ctx context.Context, entry *registered) (*worker.ActivationReport, error) {
	reg.mu.Lock()
	if reg.waiting != entry {
		reg.mu.Unlock()
		return nil, fmt.Errorf("worker %s is not waiting", entry.w.ID())
	}
	reg.waiting = nil
	reg.mu.Unlock()

	entry.setState(StateActivating)
	report, err := entry.w.Activate(ctx)
	if err != nil {
		entry.setState(StateRedundant)
		return nil, err
	}

	entry.setState(StateActivated)
	reg.mu.Lock()
	if reg.active != nil && reg.active != entry {
		reg.active.setState(StateRedundant)
	}
	reg.active = entry
	reg.mu.Unlock()
	return report, nil
}

// claim makes entry the controller.
func (reg *Registration) claim(entry *registered) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.controller = entry
	reg.log.Info("clients claimed", "worker", entry.w.ID())
}

// Controller returns the worker serving intercepted requests, or nil.
func (reg *Registration) Controller() *worker.Worker {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if reg.controller == nil {
		return nil
	}
	return reg.controller.w
}

// Message delivers a control message to the waiting worker if there is one,
// otherwise to the active worker. Returns the id of the worker that received
// it.
//
// A skip-waiting request from a waiting worker activates it before Message
// returns.
func (reg *Registration) Message(ctx context.Context, msg string) (string, error) {
	reg.mu.RLock()
	target := reg.waiting
	if target == nil {
		target = reg.active
	}
	reg.mu.RUnlock()
	if target == nil {
		return "", ErrNoWorker
	}

	if err := target.w.Message(ctx, msg); err != nil {
		return target.w.ID(), err
	}

	if target.host.takeSkipWaiting() && target.getState() == StateInstalled {
		reg.lifecycle.Lock()
		defer reg.lifecycle.Unlock()
		if _, err := reg.activate(ctx, target); err != nil {
			return target.w.ID(), err
		}
	}
	return target.w.ID(), nil
}

// WorkerStatus describes one registered worker.
type WorkerStatus struct {
	ID        string `json:"id"`
	Digest    string `json:"digest"`
	State     string `json:"state"`
	Resources int    `json:"resources"`
	Core      int    `json:"core"`
}

// Status is a snapshot of the registration.
type Status struct {
	Origin     string        `json:"origin"`
	Controller *WorkerStatus `json:"controller"`
	Active     *WorkerStatus `json:"active"`
	Waiting    *WorkerStatus `json:"waiting"`
}

// Status reports the current controller, active and waiting workers.
func (reg *Registration) Status() Status {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return Status{
		Origin:     reg.cfg.Origin.String(),
		Controller: describe(reg.controller),
		Active:     describe(reg.active),
		Waiting:    describe(reg.waiting),
	}
}

func describe(r *registered) *WorkerStatus {
	if r == nil {
		return nil
	}
	b := r.w.Build()
	return &WorkerStatus{
		ID:        r.w.ID(),
		Digest:    r.w.Digest(),
		State:     r.getState(),
		Resources: len(b.Resources),
		Core:      len(b.CoreKeys()),
	}
}
