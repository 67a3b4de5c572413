package worker

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/metrics"
)

// Fetch intercepts a request.
//
// Returns handled=false when the worker declines: the method is not GET, the
// URL belongs to another origin, or its logical key is not cataloged. The
// caller then falls through to default networking. The root document is
// served network-first; every other key is served cache-first.
//
// Cached entries are stored under the canonical URL of their logical key, so
// "?v=" variants share one entry.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (*cache.Response, bool, error) {
	if req.Method != http.MethodGet {
		return nil, false, nil
	}

	target := w.absoluteURL(req)
	key, ok := w.origin.RequestKey(target)
	if !ok || !w.build.Resources.Has(key) {
		w.metrics.ObserveRequest(metrics.StrategyNone, metrics.OutcomeDeclined)
		return nil, false, nil
	}

	if key == manifest.RootKey {
		resp, err := w.networkFirst(ctx, key, target)
		return resp, true, err
	}
	resp, err := w.cacheFirst(ctx, key, target)
	return resp, true, err
}

// absoluteURL returns the request URL resolved against the origin, without
// its fragment.
func (w *Worker) absoluteURL(req *http.Request) string {
	var u url.URL
	if req.URL.IsAbs() {
		u = *req.URL
	} else {
		base, err := url.Parse(w.origin.String())
		if err != nil {
			return ""
		}
		u = *base.ResolveReference(req.URL)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func (w *Worker) cacheFirst(ctx context.Context, key, target string) (*cache.Response, error) {
	cacheURL := w.origin.URL(key)
	content := w.openContent(ctx)

	if content != nil {
		resp, ok, err := content.Match(ctx, cacheURL)
		switch {
		case err != nil:
			w.log.Warn("cache lookup failed, treating as miss", "url", cacheURL, "error", err)
		case ok:
			w.metrics.ObserveRequest(metrics.StrategyCacheFirst, metrics.OutcomeHit)
			return resp, nil
		}
	}

	// Concurrent misses for the same entry share one fetch. The fetch is
	// detached from any single caller's cancellation; each caller stops
	// waiting on its own context.
	detached := context.WithoutCancel(ctx)
	ch := w.flight.DoChan(cacheURL, func() (any, error) {
		resp, err := w.fetchOne(detached, w.net, metrics.PhaseIntercept, key, target, false)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			w.store(detached, content, cacheURL, resp)
		}
		return resp, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res = singleflight.Result{Err: ctx.Err()}
	}
	if res.Err != nil {
		w.metrics.ObserveRequest(metrics.StrategyCacheFirst, metrics.OutcomeError)
		w.log.Warn("fetch failed", "key", key, "error", res.Err)
		return nil, &Error{
			Code:     CodeFetchFailed,
			Op:       "fetch",
			Key:      key,
			Recovery: RecoveryNone,
			Err:      res.Err,
		}
	}

	resp := res.Val.(*cache.Response)
	if res.Shared {
		resp = resp.Clone()
	}
	w.metrics.ObserveRequest(metrics.StrategyCacheFirst, metrics.OutcomeNetwork)
	return resp, nil
}

func (w *Worker) networkFirst(ctx context.Context, key, target string) (*cache.Response, error) {
	cacheURL := w.origin.URL(key)
	content := w.openContent(ctx)

	resp, err := w.fetchOne(ctx, w.net, metrics.PhaseIntercept, key, target, false)
	if err == nil {
		if resp.OK() {
			w.store(ctx, content, cacheURL, resp)
		}
		w.metrics.ObserveRequest(metrics.StrategyNetworkFirst, metrics.OutcomeNetwork)
		return resp, nil
	}

	if content != nil {
		cached, ok, merr := content.Match(ctx, cacheURL)
		if merr != nil {
			w.log.Warn("cache lookup failed", "url", cacheURL, "error", merr)
		}
		if ok {
			w.log.Debug("network failed, serving cached copy", "key", key, "error", err)
			w.metrics.ObserveRequest(metrics.StrategyNetworkFirst, metrics.OutcomeFallback)
			return cached, nil
		}
	}

	w.metrics.ObserveRequest(metrics.StrategyNetworkFirst, metrics.OutcomeError)
	return nil, &Error{
		Code:     CodeNetworkFirstFailed,
		Op:       "fetch",
		Key:      key,
		Recovery: RecoveryCachedFallback,
		Err:      err,
	}
}

// openContent opens the content partition. A storage failure degrades the
// request to network-only.
func (w *Worker) openContent(ctx context.Context) cache.Cache {
	content, err := w.storage.Open(ctx, w.partitions.Content)
	if err != nil {
		w.log.Warn("open content failed", "error", err)
		return nil
	}
	return content
}

// store puts a clone of resp into content. Failures are logged; the response
// is still served.
func (w *Worker) store(ctx context.Context, content cache.Cache, cacheURL string, resp *cache.Response) {
	if content == nil {
		return
	}
	if err := content.Put(ctx, cacheURL, resp.Clone()); err != nil {
		w.log.Warn("cache store failed", "url", cacheURL, "error", err)
	}
}
