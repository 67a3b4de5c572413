package fetch

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/roach88/assetsync/internal/cache"
)

// RateLimited wraps f so that each request waits for a token from l.
// The wait honors the request context.
func RateLimited(f Fetcher, l *rate.Limiter) Fetcher {
	if l == nil {
		return f
	}
	return FetcherFunc(func(req *http.Request) (*cache.Response, error) {
		if err := l.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("fetch %s: rate limit: %w", req.URL, err)
		}
		return f.Do(req)
	})
}

// NewLimiter returns a limiter allowing perSecond requests with the given
// burst. Returns nil (no limit) if perSecond is not positive.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
