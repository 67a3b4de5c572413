package worker

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/fetch"
)

// fetchOne performs a single GET. Transport failures are returned as
// *FetchError; non-ok responses are returned without error.
func (w *Worker) fetchOne(ctx context.Context, f fetch.Fetcher, phase, key, url string, reload bool) (*cache.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Key: key, URL: url, Err: err}
	}
	if reload {
		fetch.Reload(req)
	}

	resp, err := f.Do(req)
	switch {
	case err != nil:
		w.metrics.ObserveFetch(phase, "error")
		return nil, &FetchError{Key: key, URL: url, Err: err}
	case resp.OK():
		w.metrics.ObserveFetch(phase, "ok")
	default:
		w.metrics.ObserveFetch(phase, "not_ok")
	}
	return resp, nil
}

// fetchAll fetches every key and requires every response to be ok.
// Fetches run concurrently; the first failure cancels the rest and nothing
// is returned. Responses are in the same order as keys.
func (w *Worker) fetchAll(ctx context.Context, f fetch.Fetcher, phase string, keys []string, reload bool) ([]*cache.Response, error) {
	responses := make([]*cache.Response, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallel)
	for i, key := range keys {
		g.Go(func() error {
			url := w.origin.URL(key)
			resp, err := w.fetchOne(gctx, f, phase, key, url, reload)
			if err != nil {
				return err
			}
			if !resp.OK() {
				return &FetchError{Key: key, URL: url, Status: resp.Status}
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}
