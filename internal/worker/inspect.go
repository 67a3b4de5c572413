package worker

import (
	"context"
	"fmt"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
)

// CacheState is a read-only view of the partitions a worker owns.
type CacheState struct {
	// StoredDigest is the digest of the last activated manifest, or "" if
	// none has been persisted.
	StoredDigest string `json:"stored_digest,omitempty"`

	Content []string `json:"content"`
	Staging []string `json:"staging"`

	// Missing lists this worker's manifest keys with no content entry.
	Missing []string `json:"missing"`
}

// Inspect reports the state of the worker's partitions without creating any
// that do not exist yet.
func (w *Worker) Inspect(ctx context.Context) (*CacheState, error) {
	state := &CacheState{}

	var err error
	if state.Content, err = w.urls(ctx, w.partitions.Content); err != nil {
		return nil, err
	}
	if state.Staging, err = w.urls(ctx, w.partitions.Staging); err != nil {
		return nil, err
	}

	stored, err := w.StoredManifest(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		if state.StoredDigest, err = stored.Digest(); err != nil {
			return nil, err
		}
	}

	state.Missing = w.missingKeys(state.Content)
	return state, nil
}

// StoredManifest returns the last activated manifest, or nil if none has
// been persisted.
func (w *Worker) StoredManifest(ctx context.Context) (manifest.Resources, error) {
	memory, ok, err := w.openExisting(ctx, w.partitions.Manifest)
	if err != nil || !ok {
		return nil, err
	}
	resp, ok, err := memory.Match(ctx, ManifestEntryKey)
	if err != nil {
		return nil, fmt.Errorf("read stored manifest: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return manifest.UnmarshalResources(resp.Body)
}

func (w *Worker) urls(ctx context.Context, name string) ([]string, error) {
	c, ok, err := w.openExisting(ctx, name)
	if err != nil || !ok {
		return []string{}, err
	}
	snap, err := cache.Snapshot(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return cache.SortedURLs(snap), nil
}

func (w *Worker) openExisting(ctx context.Context, name string) (cache.Cache, bool, error) {
	ok, err := w.storage.Has(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("check %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	c, err := w.storage.Open(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", name, err)
	}
	return c, true, nil
}
