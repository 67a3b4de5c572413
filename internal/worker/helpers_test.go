package worker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/store"
	"github.com/roach88/assetsync/internal/testutil"
)

const testOrigin = manifest.Origin("https://app.test")

// storages lists the Storage implementations lifecycle tests run against.
var storages = map[string]func(t *testing.T) cache.Storage{
	"memory": func(t *testing.T) cache.Storage {
		return cache.NewMemoryStorage()
	},
	"sqlite": func(t *testing.T) cache.Storage {
		t.Helper()
		s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	},
}

// forEachStorage runs fn once per Storage implementation.
func forEachStorage(t *testing.T, fn func(t *testing.T, open func(t *testing.T) cache.Storage)) {
	for name, open := range storages {
		t.Run(name, func(t *testing.T) {
			fn(t, open)
		})
	}
}

func keyURL(key string) string {
	return testOrigin.URL(key)
}

// testBuild is a small app: root document, main bundle, two assets.
func testBuild() *manifest.Build {
	return &manifest.Build{
		Resources: manifest.Resources{
			"/":            "r1",
			"index.html":   "i1",
			"main.js":      "m1",
			"assets/a.png": "a1",
			"app":          "p1",
		},
		Core: []string{"/", "main.js", "index.html"},
	}
}

// serveAll routes every resource of b on n, with the key and tag as body.
func serveAll(n *testutil.FakeNetwork, b *manifest.Build, tag string) {
	for key := range b.Resources {
		n.Serve(keyURL(key), key+"@"+tag)
	}
}

type fixture struct {
	storage cache.Storage
	net     *testutil.FakeNetwork
}

func newFixture(storage cache.Storage) *fixture {
	return &fixture{storage: storage, net: testutil.NewFakeNetwork()}
}

func (f *fixture) worker(t *testing.T, b *manifest.Build) (*Worker, *testutil.RecordingHost) {
	t.Helper()
	host := &testutil.RecordingHost{}
	w, err := New(Options{
		Origin:  testOrigin,
		Build:   b,
		Storage: f.storage,
		Network: f.net,
		Host:    host,
		IDs:     NewFixedGenerator("worker-1"),
	})
	require.NoError(t, err)
	return w, host
}

// deploy installs and activates b.
func (f *fixture) deploy(t *testing.T, b *manifest.Build) (*Worker, *ActivationReport) {
	t.Helper()
	ctx := context.Background()
	w, _ := f.worker(t, b)
	require.NoError(t, w.Install(ctx))
	report, err := w.Activate(ctx)
	require.NoError(t, err)
	return w, report
}

func (f *fixture) body(t *testing.T, partition, u string) (string, bool) {
	t.Helper()
	c, err := f.storage.Open(context.Background(), partition)
	require.NoError(t, err)
	resp, ok, err := c.Match(context.Background(), u)
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	return string(resp.Body), true
}

func (f *fixture) urls(t *testing.T, partition string) []string {
	t.Helper()
	c, err := f.storage.Open(context.Background(), partition)
	require.NoError(t, err)
	snap, err := cache.Snapshot(context.Background(), c)
	require.NoError(t, err)
	return cache.SortedURLs(snap)
}

func (f *fixture) has(t *testing.T, partition string) bool {
	t.Helper()
	ok, err := f.storage.Has(context.Background(), partition)
	require.NoError(t, err)
	return ok
}
