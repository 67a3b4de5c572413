package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/fetch"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/metrics"
)

// ManifestEntryKey is the single entry of the manifest-memory partition.
const ManifestEntryKey = "manifest"

// DefaultParallelFetches bounds concurrent fetches during install and
// offline download.
const DefaultParallelFetches = 6

// Control messages.
const (
	MessageSkipWaiting     = "skipWaiting"
	MessageDownloadOffline = "downloadOffline"

	// Aliases accepted for the same two signals.
	MessageForceActivate      = "force-activate"
	MessageDownloadForOffline = "download-for-offline"
)

// Lifecycle is the set of signals a host delivers to a worker.
type Lifecycle interface {
	Install(ctx context.Context) error
	Activate(ctx context.Context) (*ActivationReport, error)
	Fetch(ctx context.Context, req *http.Request) (resp *cache.Response, handled bool, err error)
	Message(ctx context.Context, msg string) error
}

var _ Lifecycle = (*Worker)(nil)

// Host is the platform side of the lifecycle.
type Host interface {
	// SkipWaiting asks the host to activate this worker as soon as it is
	// installed, without waiting for the previous one to be released.
	SkipWaiting()

	// ClaimClients makes this worker the controller for all clients.
	ClaimClients()
}

// NopHost ignores lifecycle requests. Used by one-shot CLI commands that
// drive Install and Activate directly.
type NopHost struct{}

func (NopHost) SkipWaiting()  {}
func (NopHost) ClaimClients() {}

// Partitions names the three cache partitions a worker owns.
type Partitions struct {
	Content  string `mapstructure:"content" json:"content"`
	Staging  string `mapstructure:"staging" json:"staging"`
	Manifest string `mapstructure:"manifest" json:"manifest"`
}

// DefaultPartitions returns the standard partition names.
func DefaultPartitions() Partitions {
	return Partitions{
		Content:  "assetsync-app-cache",
		Staging:  "assetsync-temp-cache",
		Manifest: "assetsync-app-manifest",
	}
}

func (p Partitions) withDefaults() Partitions {
	d := DefaultPartitions()
	if p.Content == "" {
		p.Content = d.Content
	}
	if p.Staging == "" {
		p.Staging = d.Staging
	}
	if p.Manifest == "" {
		p.Manifest = d.Manifest
	}
	return p
}

// IDGenerator produces worker instance ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids, so that worker ids
// sort by creation time in logs and status output.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids, for deterministic tests.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
// Panics if all ids have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Options configures a Worker.
type Options struct {
	Origin  manifest.Origin
	Build   *manifest.Build
	Storage cache.Storage
	Network fetch.Fetcher

	// Host receives SkipWaiting/ClaimClients. Defaults to NopHost.
	Host Host

	// Partitions defaults to DefaultPartitions.
	Partitions Partitions

	// OfflineLimiter throttles offline downloads. Nil means unlimited.
	OfflineLimiter *rate.Limiter

	// ParallelFetches defaults to DefaultParallelFetches.
	ParallelFetches int

	// IDs defaults to UUIDv7Generator.
	IDs IDGenerator

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Worker is the synchronizer for one Build.
type Worker struct {
	id         string
	digest     string
	origin     manifest.Origin
	build      *manifest.Build
	storage    cache.Storage
	net        fetch.Fetcher
	offlineNet fetch.Fetcher
	host       Host
	partitions Partitions
	parallel   int
	log        *slog.Logger
	metrics    *metrics.Metrics

	flight singleflight.Group
}

// New validates opts and creates a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Origin == "" {
		return nil, fmt.Errorf("worker: origin is required")
	}
	if opts.Build == nil {
		return nil, fmt.Errorf("worker: build is required")
	}
	if err := opts.Build.Validate(); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("worker: storage is required")
	}
	if opts.Network == nil {
		return nil, fmt.Errorf("worker: network is required")
	}

	digest, err := opts.Build.Resources.Digest()
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}

	host := opts.Host
	if host == nil {
		host = NopHost{}
	}
	ids := opts.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	parallel := opts.ParallelFetches
	if parallel <= 0 {
		parallel = DefaultParallelFetches
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := ids.Generate()
	return &Worker{
		id:         id,
		digest:     digest,
		origin:     opts.Origin,
		build:      opts.Build,
		storage:    opts.Storage,
		net:        opts.Network,
		offlineNet: fetch.RateLimited(opts.Network, opts.OfflineLimiter),
		host:       host,
		partitions: opts.Partitions.withDefaults(),
		parallel:   parallel,
		log:        logger.With("component", "worker", "worker", id, "version", digest[:12]),
		metrics:    opts.Metrics,
	}, nil
}

// ID returns the worker instance id.
func (w *Worker) ID() string {
	return w.id
}

// Digest returns the manifest digest this worker serves.
func (w *Worker) Digest() string {
	return w.digest
}

// Build returns the worker's build.
func (w *Worker) Build() *manifest.Build {
	return w.build
}

// Origin returns the origin keys are relative to.
func (w *Worker) Origin() manifest.Origin {
	return w.origin
}

// Partitions returns the partition names the worker owns.
func (w *Worker) Partitions() Partitions {
	return w.partitions
}
