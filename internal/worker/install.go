package worker

import (
	"context"
	"fmt"

	"github.com/roach88/assetsync/internal/metrics"
)

// Install seeds the staging partition with the Core Shell Set.
//
// The worker asks the host to skip waiting before anything else. Every core
// resource is fetched with a cache-bypassing request; nothing is stored
// unless all of them come back ok.
func (w *Worker) Install(ctx context.Context) error {
	w.host.SkipWaiting()

	keys := w.build.CoreKeys()
	w.log.Info("installing", "core", len(keys))

	staging, err := w.storage.Open(ctx, w.partitions.Staging)
	if err != nil {
		return w.installError(fmt.Errorf("open staging: %w", err))
	}

	responses, err := w.fetchAll(ctx, w.net, metrics.PhaseInstall, keys, true)
	if err != nil {
		return w.installError(err)
	}

	for i, key := range keys {
		if err := staging.Put(ctx, w.origin.URL(key), responses[i]); err != nil {
			return w.installError(fmt.Errorf("stage %q: %w", key, err))
		}
	}

	w.log.Info("installed", "staged", len(keys))
	return nil
}

func (w *Worker) installError(err error) error {
	w.log.Error("install failed", "error", err)
	return &Error{
		Code:     CodeInstallFetchFailed,
		Op:       "install",
		Key:      keyOf(err),
		Recovery: RecoveryNone,
		Err:      err,
	}
}
