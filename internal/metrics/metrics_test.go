package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest(StrategyCacheFirst, OutcomeHit)
		m.ObserveFetch(PhaseInstall, "ok")
		m.ObserveActivation("fresh", 0, 3)
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest(StrategyCacheFirst, OutcomeHit)
	m.ObserveRequest(StrategyCacheFirst, OutcomeHit)
	m.ObserveRequest(StrategyNetworkFirst, OutcomeFallback)
	m.ObserveFetch(PhaseOffline, "ok")
	m.ObserveActivation("incremental", 2, 10)
	m.ObserveActivation("failed", 0, 99)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues(StrategyCacheFirst, OutcomeHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(StrategyNetworkFirst, OutcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues(PhaseOffline, "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.resources), "failed activation leaves the gauge alone")
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(StrategyCacheFirst, OutcomeHit)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `assetsync_requests_total{outcome="hit",strategy="cache_first"} 1`)
}
