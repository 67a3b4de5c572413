package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/testutil"
)

func TestNew_Validation(t *testing.T) {
	valid := func() Options {
		return Options{
			Origin:  testOrigin,
			Build:   testBuild(),
			Storage: cache.NewMemoryStorage(),
			Network: testutil.NewFakeNetwork(),
		}
	}

	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"missing origin", func(o *Options) { o.Origin = "" }},
		{"missing build", func(o *Options) { o.Build = nil }},
		{"invalid build", func(o *Options) { o.Build = &manifest.Build{} }},
		{"core not in manifest", func(o *Options) { o.Build.Core = []string{"nope.js"} }},
		{"missing storage", func(o *Options) { o.Storage = nil }},
		{"missing network", func(o *Options) { o.Network = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid()
			tt.mutate(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}

	w, err := New(valid())
	require.NoError(t, err)
	assert.Equal(t, DefaultPartitions(), w.Partitions())
	assert.NotEmpty(t, w.ID())
	assert.Equal(t, testOrigin, w.Origin())
}

func TestNew_DigestIsStable(t *testing.T) {
	w1, err := New(Options{Origin: testOrigin, Build: testBuild(), Storage: cache.NewMemoryStorage(), Network: testutil.NewFakeNetwork()})
	require.NoError(t, err)
	w2, err := New(Options{Origin: testOrigin, Build: testBuild(), Storage: cache.NewMemoryStorage(), Network: testutil.NewFakeNetwork()})
	require.NoError(t, err)

	assert.Equal(t, w1.Digest(), w2.Digest())
	assert.NotEqual(t, w1.ID(), w2.ID(), "each worker gets its own id")
}

func TestPartitions_CustomNames(t *testing.T) {
	f := newFixture(storages["memory"](t))
	b := testBuild()
	serveAll(f.net, b, "v1")

	w, err := New(Options{
		Origin:     testOrigin,
		Build:      b,
		Storage:    f.storage,
		Network:    f.net,
		Partitions: Partitions{Content: "shell"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))
	_, err = w.Activate(context.Background())
	require.NoError(t, err)

	names, err := f.storage.Names(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shell", DefaultPartitions().Manifest}, names)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestError(t *testing.T) {
	cause := &FetchError{Key: "main.js", URL: "https://app.test/main.js", Status: 404}
	err := fmt.Errorf("deploy: %w", &Error{
		Code:     CodeInstallFetchFailed,
		Op:       "install",
		Key:      "main.js",
		Recovery: RecoveryNone,
		Err:      cause,
	})

	assert.Equal(t, CodeInstallFetchFailed, CodeOf(err))
	assert.Equal(t, `deploy: INSTALL_FETCH_FAILED: install "main.js": fetch https://app.test/main.js: status 404`, err.Error())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.Status)

	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(storages["memory"](t))
	b := testBuild()
	serveAll(f.net, b, "v1")
	w, _ := f.worker(t, b)

	state, err := w.Inspect(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.StoredDigest)
	assert.Empty(t, state.Content)
	assert.Equal(t, b.Resources.Keys(), state.Missing)

	names, err := f.storage.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "Inspect must not create partitions")

	require.NoError(t, w.Install(ctx))
	state, err = w.Inspect(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Staging, 3)

	_, err = w.Activate(ctx)
	require.NoError(t, err)
	state, err = w.Inspect(ctx)
	require.NoError(t, err)
	assert.Equal(t, w.Digest(), state.StoredDigest)
	assert.Empty(t, state.Staging)
	assert.Equal(t, []string{"app", "assets/a.png"}, state.Missing)
}
