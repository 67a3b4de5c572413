// Package metrics exposes Prometheus collectors for the asset cache.
//
// All methods are safe to call on a nil *Metrics, so components can run
// without instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetsync"

// Request strategies.
const (
	StrategyCacheFirst   = "cache_first"
	StrategyNetworkFirst = "network_first"
	StrategyNone         = "none"
)

// Request outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeNetwork  = "network"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
	OutcomeDeclined = "declined"
)

// Fetch phases.
const (
	PhaseInstall   = "install"
	PhaseIntercept = "intercept"
	PhaseOffline   = "offline"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	activations *prometheus.CounterVec
	evictions   prometheus.Counter
	resources   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Intercepted GET requests by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_fetches_total",
			Help:      "Network fetches by lifecycle phase and result.",
		}, []string{"phase", "result"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Activations by mode (fresh, incremental, failed).",
		}, []string{"mode"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Content cache entries evicted during activation.",
		}),
		resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manifest_resources",
			Help:      "Resources in the most recently activated manifest.",
		}),
	}
	m.registry.MustRegister(m.requests, m.fetches, m.activations, m.evictions, m.resources)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest counts an intercepted (or declined) request.
func (m *Metrics) ObserveRequest(strategy, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strategy, outcome).Inc()
}

// ObserveFetch counts a network fetch. result is "ok", "not_ok" or "error".
func (m *Metrics) ObserveFetch(phase, result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(phase, result).Inc()
}

// ObserveActivation records an activation outcome.
func (m *Metrics) ObserveActivation(mode string, evicted, resources int) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(mode).Inc()
	m.evictions.Add(float64(evicted))
	if mode != "failed" {
		m.resources.Set(float64(resources))
	}
}
