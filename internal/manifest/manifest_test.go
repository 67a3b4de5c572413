package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResources_Stale(t *testing.T) {
	old := Resources{"a.js": "h1", "b.js": "h2", "gone.js": "h9"}
	next := Resources{"a.js": "h1", "b.js": "h3", "new.js": "h4"}

	assert.False(t, next.Stale(old, "a.js"), "unchanged fingerprint is retained")
	assert.True(t, next.Stale(old, "b.js"), "changed fingerprint is evicted")
	assert.True(t, next.Stale(old, "gone.js"), "removed key is evicted")
	assert.True(t, next.Stale(old, "new.js"), "key unknown to old manifest is evicted")
	assert.True(t, next.Stale(old, "random.png"), "uncataloged key is evicted")
}

func TestResources_StaleSchemaChange(t *testing.T) {
	// Same content, different hashing scheme: still treated as changed.
	old := Resources{"a.js": "md5:0cc175b9c0f1b6a831c399e269772661"}
	next := Resources{"a.js": "sha1:86f7e437faa5a7fce15d1ddcb9eaeaea377667b8"}
	assert.True(t, next.Stale(old, "a.js"))
}

func TestResources_Equal(t *testing.T) {
	a := Resources{"a.js": "h1", "/": "h0"}
	assert.True(t, a.Equal(Resources{"/": "h0", "a.js": "h1"}))
	assert.False(t, a.Equal(Resources{"/": "h0"}))
	assert.False(t, a.Equal(Resources{"/": "h0", "a.js": "h2"}))
}

func TestBuild_CoreKeysDeduplicates(t *testing.T) {
	b := Build{
		Resources: Resources{"main.js": "1", "index.html": "2", "AssetManifest.json": "3"},
		Core:      []string{"main.js", "index.html", "AssetManifest.json", "AssetManifest.json"},
	}
	assert.Equal(t, []string{"main.js", "index.html", "AssetManifest.json"}, b.CoreKeys())
}

func TestBuild_Validate(t *testing.T) {
	tests := []struct {
		name    string
		build   Build
		wantErr string
	}{
		{
			name:  "valid",
			build: Build{Resources: Resources{"/": "h0", "main.js": "h1"}, Core: []string{"main.js"}},
		},
		{
			name:    "no resources",
			build:   Build{},
			wantErr: "no resources",
		},
		{
			name:    "absolute key",
			build:   Build{Resources: Resources{"/main.js": "h1"}},
			wantErr: "relative to the origin",
		},
		{
			name:  "percent-encoded keys",
			build: Build{Resources: Resources{"caf%C3%A9.js": "h1", "a%20b.png": "h2", "assets/LOGO%2520CGTECH.JPG": "h3"}},
		},
		{
			name:    "non-ASCII key",
			build:   Build{Resources: Resources{"caf\u00e9.js": "h1"}},
			wantErr: `percent-encoded as "caf%C3%A9.js"`,
		},
		{
			name:    "key with space",
			build:   Build{Resources: Resources{"a b.png": "h1"}},
			wantErr: `percent-encoded as "a%20b.png"`,
		},
		{
			name:    "empty fingerprint",
			build:   Build{Resources: Resources{"main.js": ""}},
			wantErr: "empty fingerprint",
		},
		{
			name:    "core not in resources",
			build:   Build{Resources: Resources{"main.js": "h1"}, Core: []string{"index.html"}},
			wantErr: `core[0] "index.html"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDiff(t *testing.T) {
	old := Resources{"a.js": "h1", "b.js": "h2", "c.js": "h5"}
	next := Resources{"a.js": "h1", "b.js": "h3", "d.js": "h4"}

	p := Diff(old, next)
	assert.Equal(t, []string{"a.js"}, p.Unchanged)
	assert.Equal(t, []string{"b.js"}, p.Changed)
	assert.Equal(t, []string{"d.js"}, p.Added)
	assert.Equal(t, []string{"c.js"}, p.Removed)
	assert.Equal(t, 2, p.Refetch())
}

func TestDiff_FirstActivation(t *testing.T) {
	p := Diff(nil, Resources{"b.js": "h2", "a.js": "h1"})
	assert.Equal(t, []string{"a.js", "b.js"}, p.Added)
	assert.Empty(t, p.Unchanged)
	assert.Empty(t, p.Removed)
}
