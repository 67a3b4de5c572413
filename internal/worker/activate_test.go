package worker

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
)

func TestActivate_Fresh(t *testing.T) {
	forEachStorage(t, func(t *testing.T, open func(*testing.T) cache.Storage) {
		ctx := context.Background()
		f := newFixture(open(t))
		b := testBuild()
		serveAll(f.net, b, "v1")

		// Leftovers from an unknown earlier deployment.
		p := DefaultPartitions()
		content, err := f.storage.Open(ctx, p.Content)
		require.NoError(t, err)
		require.NoError(t, content.Put(ctx, keyURL("old.js"), cache.NewResponse(http.StatusOK, nil, []byte("old"))))

		w, host := f.worker(t, b)
		require.NoError(t, w.Install(ctx))
		report, err := w.Activate(ctx)
		require.NoError(t, err)

		assert.Equal(t, &ActivationReport{
			Worker: "worker-1",
			Mode:   ModeFresh,
			Digest: w.Digest(),
			Staged: 3,
			Plan: manifest.Plan{
				Added: []string{"/", "app", "assets/a.png", "index.html", "main.js"},
			},
		}, report)

		assert.Equal(t, []string{keyURL("/"), keyURL("index.html"), keyURL("main.js")}, f.urls(t, p.Content))
		assert.False(t, f.has(t, p.Staging), "staging is deleted after activation")
		assert.Equal(t, []string{"skipWaiting", "claimClients"}, host.Events())

		stored, err := w.StoredManifest(ctx)
		require.NoError(t, err)
		assert.True(t, b.Resources.Equal(stored))
	})
}

func TestActivate_Incremental(t *testing.T) {
	forEachStorage(t, func(t *testing.T, open func(*testing.T) cache.Storage) {
		f := newFixture(open(t))
		p := DefaultPartitions()

		v1 := &manifest.Build{
			Resources: manifest.Resources{"a.js": "h1", "b.js": "h2"},
			Core:      []string{"a.js", "b.js"},
		}
		serveAll(f.net, v1, "v1")
		f.deploy(t, v1)

		v2 := &manifest.Build{
			Resources: manifest.Resources{"a.js": "h1", "b.js": "h3"},
			Core:      []string{"b.js"},
		}
		serveAll(f.net, v2, "v2")
		_, report := f.deploy(t, v2)

		assert.Equal(t, ModeIncremental, report.Mode)
		assert.Equal(t, 1, report.Retained)
		assert.Equal(t, 1, report.Evicted)
		assert.Equal(t, 1, report.Staged)
		assert.Equal(t, manifest.Plan{Unchanged: []string{"a.js"}, Changed: []string{"b.js"}}, report.Plan)

		a, ok := f.body(t, p.Content, keyURL("a.js"))
		require.True(t, ok)
		assert.Equal(t, "a.js@v1", a, "unchanged entry is retained untouched")

		b, ok := f.body(t, p.Content, keyURL("b.js"))
		require.True(t, ok)
		assert.Equal(t, "b.js@v2", b, "changed entry is replaced from staging")
	})
}

func TestActivate_EvictsRemovedAndChangedEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(storages["memory"](t))
	p := DefaultPartitions()

	v1 := &manifest.Build{
		Resources: manifest.Resources{"/": "r1", "a.js": "a1", "gone.js": "g1", "changed.js": "c1"},
		Core:      []string{"/", "a.js", "gone.js", "changed.js"},
	}
	serveAll(f.net, v1, "v1")
	f.deploy(t, v1)

	v2 := &manifest.Build{
		Resources: manifest.Resources{"/": "r1", "a.js": "a1", "changed.js": "c2"},
	}
	w, report := f.deploy(t, v2)

	assert.Equal(t, 2, report.Retained)
	assert.Equal(t, 2, report.Evicted)
	assert.Equal(t, []string{keyURL("/"), keyURL("a.js")}, f.urls(t, p.Content))

	missing, err := w.Missing(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"changed.js"}, missing)
}

func TestActivate_EvictsEntriesUnknownToOldManifest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(storages["memory"](t))
	p := DefaultPartitions()

	v1 := &manifest.Build{Resources: manifest.Resources{"a.js": "a1"}, Core: []string{"a.js"}}
	serveAll(f.net, v1, "v1")
	f.deploy(t, v1)

	// Entries cached outside any manifest: a key v2 catalogs but v1 did not,
	// and a URL from another origin.
	content, err := f.storage.Open(ctx, p.Content)
	require.NoError(t, err)
	ok := cache.NewResponse(http.StatusOK, nil, []byte("x"))
	require.NoError(t, content.Put(ctx, keyURL("new.js"), ok))
	require.NoError(t, content.Put(ctx, "https://cdn.test/new.js", ok))

	v2 := &manifest.Build{Resources: manifest.Resources{"a.js": "a1", "new.js": "n1"}}
	_, report := f.deploy(t, v2)

	assert.Equal(t, 2, report.Evicted)
	assert.Equal(t, []string{keyURL("a.js")}, f.urls(t, p.Content))
}

func TestActivate_SameManifestRetainsEverything(t *testing.T) {
	f := newFixture(storages["memory"](t))
	b := testBuild()
	serveAll(f.net, b, "v1")
	f.deploy(t, b)

	serveAll(f.net, b, "v2")
	_, report := f.deploy(t, b)

	assert.Equal(t, 0, report.Evicted)
	assert.Equal(t, 3, report.Retained)

	body, ok := f.body(t, DefaultPartitions().Content, keyURL("main.js"))
	require.True(t, ok)
	assert.Equal(t, "main.js@v2", body, "staging overwrites retained entries")
}

func TestActivate_CorruptStoredManifestResetsCaches(t *testing.T) {
	forEachStorage(t, func(t *testing.T, open func(*testing.T) cache.Storage) {
		ctx := context.Background()
		f := newFixture(open(t))
		p := DefaultPartitions()
		b := testBuild()
		serveAll(f.net, b, "v1")
		f.deploy(t, b)

		memory, err := f.storage.Open(ctx, p.Manifest)
		require.NoError(t, err)
		require.NoError(t, memory.Put(ctx, ManifestEntryKey, cache.NewResponse(http.StatusOK, nil, []byte("{not json"))))

		w, host := f.worker(t, b)
		require.NoError(t, w.Install(ctx))
		report, err := w.Activate(ctx)
		require.Error(t, err)
		assert.Nil(t, report)

		var we *Error
		require.True(t, errors.As(err, &we))
		assert.Equal(t, CodeActivationFailed, we.Code)
		assert.Equal(t, RecoveryResetCaches, we.Recovery)

		assert.False(t, f.has(t, p.Content))
		assert.False(t, f.has(t, p.Staging))
		assert.False(t, f.has(t, p.Manifest))
		assert.False(t, host.Claimed(), "a failed activation does not claim clients")

		// The next deployment starts fresh.
		_, report = f.deploy(t, b)
		assert.Equal(t, ModeFresh, report.Mode)
	})
}

func TestActivate_CanceledContextResetsCaches(t *testing.T) {
	f := newFixture(storages["memory"](t))
	b := testBuild()
	serveAll(f.net, b, "v1")
	w, _ := f.worker(t, b)
	require.NoError(t, w.Install(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// MemoryStorage ignores ctx, so force the failure through a stored
	// manifest that cannot be decoded.
	memory, err := f.storage.Open(context.Background(), w.Partitions().Manifest)
	require.NoError(t, err)
	require.NoError(t, memory.Put(context.Background(), ManifestEntryKey, cache.NewResponse(http.StatusOK, nil, []byte("null"))))

	_, err = w.Activate(ctx)
	assert.Equal(t, CodeActivationFailed, CodeOf(err))
	assert.False(t, f.has(t, w.Partitions().Manifest))
}

func TestStoredManifest_RoundTrip(t *testing.T) {
	forEachStorage(t, func(t *testing.T, open func(*testing.T) cache.Storage) {
		f := newFixture(open(t))
		b := &manifest.Build{Resources: manifest.Resources{
			"/":            "r1",
			"caf%C3%A9.js": "caf\u00e9",
			"a%3Cb%3E.js":  "<b>&amp;",
		}}
		w, _ := f.worker(t, b)

		stored, err := w.StoredManifest(context.Background())
		require.NoError(t, err)
		assert.Nil(t, stored, "nothing persisted before the first activation")

		_, err = w.Activate(context.Background())
		require.NoError(t, err)

		stored, err = w.StoredManifest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, b.Resources, stored)
	})
}
