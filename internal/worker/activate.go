package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
)

// Activation modes.
const (
	ModeFresh       = "fresh"
	ModeIncremental = "incremental"
	modeFailed      = "failed"
)

// ActivationReport summarizes a successful activation.
type ActivationReport struct {
	Worker   string `json:"worker"`
	Mode     string `json:"mode"`
	Digest   string `json:"digest"`
	Retained int    `json:"retained"`
	Evicted  int    `json:"evicted"`
	Staged   int    `json:"staged"`

	// Plan compares the previously activated manifest with this one.
	Plan manifest.Plan `json:"plan"`
}

// Activate reconciles staging and the previously activated manifest into the
// content partition, then persists this worker's manifest and claims clients.
//
// On any failure all three partitions are deleted before returning, so the
// next activation starts fresh. Clients are not claimed in that case.
func (w *Worker) Activate(ctx context.Context) (*ActivationReport, error) {
	report, err := w.activate(ctx)
	if err != nil {
		w.log.Error("activation failed, resetting caches", "error", err)
		// The reset must run even if ctx was what failed the activation.
		if rerr := w.resetCaches(context.WithoutCancel(ctx)); rerr != nil {
			err = errors.Join(err, rerr)
		}
		w.metrics.ObserveActivation(modeFailed, 0, 0)
		return nil, &Error{
			Code:     CodeActivationFailed,
			Op:       "activate",
			Recovery: RecoveryResetCaches,
			Err:      err,
		}
	}

	w.metrics.ObserveActivation(report.Mode, report.Evicted, len(w.build.Resources))
	w.log.Info("activated",
		"mode", report.Mode,
		"retained", report.Retained,
		"evicted", report.Evicted,
		"staged", report.Staged,
		"changed", len(report.Plan.Changed),
		"added", len(report.Plan.Added),
		"removed", len(report.Plan.Removed),
		"refetch", report.Plan.Refetch(),
	)
	w.host.ClaimClients()
	return report, nil
}

func (w *Worker) activate(ctx context.Context) (*ActivationReport, error) {
	content, err := w.storage.Open(ctx, w.partitions.Content)
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	staging, err := w.storage.Open(ctx, w.partitions.Staging)
	if err != nil {
		return nil, fmt.Errorf("open staging: %w", err)
	}
	memory, err := w.storage.Open(ctx, w.partitions.Manifest)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	report := &ActivationReport{Worker: w.id, Digest: w.digest}

	stored, ok, err := memory.Match(ctx, ManifestEntryKey)
	if err != nil {
		return nil, fmt.Errorf("read stored manifest: %w", err)
	}
	if !ok {
		report.Mode = ModeFresh
		report.Plan = manifest.Diff(nil, w.build.Resources)
		if _, err := w.storage.Delete(ctx, w.partitions.Content); err != nil {
			return nil, fmt.Errorf("clear content: %w", err)
		}
		content, err = w.storage.Open(ctx, w.partitions.Content)
		if err != nil {
			return nil, fmt.Errorf("recreate content: %w", err)
		}
	} else {
		report.Mode = ModeIncremental
		old, err := manifest.UnmarshalResources(stored.Body)
		if err != nil {
			return nil, fmt.Errorf("decode stored manifest: %w", err)
		}
		report.Plan = manifest.Diff(old, w.build.Resources)
		report.Retained, report.Evicted, err = w.evictStale(ctx, content, old)
		if err != nil {
			return nil, err
		}
	}

	report.Staged, err = cache.CopyAll(ctx, content, staging)
	if err != nil {
		return nil, fmt.Errorf("promote staging: %w", err)
	}
	if _, err := w.storage.Delete(ctx, w.partitions.Staging); err != nil {
		return nil, fmt.Errorf("delete staging: %w", err)
	}
	if err := w.persistManifest(ctx, memory); err != nil {
		return nil, err
	}
	return report, nil
}

// evictStale deletes every content entry that is stale relative to old.
// Entries from another origin can never be served and are evicted too.
func (w *Worker) evictStale(ctx context.Context, content cache.Cache, old manifest.Resources) (retained, evicted int, err error) {
	urls, err := content.Keys(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list content: %w", err)
	}
	for _, url := range urls {
		key, ok := w.origin.KeyForURL(url)
		if ok && !w.build.Resources.Stale(old, key) {
			retained++
			continue
		}
		if _, err := content.Delete(ctx, url); err != nil {
			return retained, evicted, fmt.Errorf("evict %s: %w", url, err)
		}
		w.log.Debug("evicted", "url", url)
		evicted++
	}
	return retained, evicted, nil
}

func (w *Worker) persistManifest(ctx context.Context, memory cache.Cache) error {
	body, err := manifest.MarshalCanonical(w.build.Resources)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	header := http.Header{"Content-Type": {"application/json"}}
	if err := memory.Put(ctx, ManifestEntryKey, cache.NewResponse(http.StatusOK, header, body)); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return nil
}

// resetCaches deletes content, staging and manifest-memory. Every partition
// is attempted even if an earlier delete fails.
func (w *Worker) resetCaches(ctx context.Context) error {
	var errs []error
	for _, name := range []string{w.partitions.Content, w.partitions.Staging, w.partitions.Manifest} {
		if _, err := w.storage.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
