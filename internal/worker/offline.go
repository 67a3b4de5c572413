package worker

import (
	"context"
	"fmt"

	"github.com/roach88/assetsync/internal/metrics"
)

// DownloadOffline fetches every manifest resource not yet in the content
// partition and stores it. All fetches must succeed before anything is
// stored. Returns the number of resources downloaded; zero fetches are made
// when everything is already cached.
func (w *Worker) DownloadOffline(ctx context.Context) (int, error) {
	missing, err := w.Missing(ctx)
	if err != nil {
		return 0, w.offlineError(err)
	}
	if len(missing) == 0 {
		w.log.Info("offline download: nothing missing")
		return 0, nil
	}

	w.log.Info("offline download", "missing", len(missing))
	content, err := w.storage.Open(ctx, w.partitions.Content)
	if err != nil {
		return 0, w.offlineError(fmt.Errorf("open content: %w", err))
	}

	responses, err := w.fetchAll(ctx, w.offlineNet, metrics.PhaseOffline, missing, false)
	if err != nil {
		return 0, w.offlineError(err)
	}
	for i, key := range missing {
		if err := content.Put(ctx, w.origin.URL(key), responses[i]); err != nil {
			return 0, w.offlineError(fmt.Errorf("store %q: %w", key, err))
		}
	}

	w.log.Info("offline download complete", "downloaded", len(missing))
	return len(missing), nil
}

// Missing returns the sorted manifest keys with no entry in the content
// partition.
func (w *Worker) Missing(ctx context.Context) ([]string, error) {
	content, err := w.storage.Open(ctx, w.partitions.Content)
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	urls, err := content.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return w.missingKeys(urls), nil
}

// missingKeys returns the sorted manifest keys with no entry among the
// cached urls.
func (w *Worker) missingKeys(urls []string) []string {
	cached := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		if key, ok := w.origin.KeyForURL(url); ok {
			cached[key] = struct{}{}
		}
	}

	var missing []string
	for _, key := range w.build.Resources.Keys() {
		if _, ok := cached[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func (w *Worker) offlineError(err error) error {
	w.log.Error("offline download failed", "error", err)
	return &Error{
		Code:     CodeOfflineDownloadFailed,
		Op:       "download",
		Key:      keyOf(err),
		Recovery: RecoveryNone,
		Err:      err,
	}
}
