// Package fetch is the network boundary of the asset cache.
//
// A Fetcher performs a request and returns the response with its body fully
// read. Like the browser fetch primitive, a non-ok status is not an error;
// only transport failures are. Callers decide what "ok" means.
package fetch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/assetsync/internal/cache"
)

// Defaults for Options.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 64 << 20
	DefaultUserAgent    = "assetsync/1"
)

// ErrBodyTooLarge is returned when a response body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("fetch: response body too large")

// Fetcher performs HTTP requests.
type Fetcher interface {
	Do(req *http.Request) (*cache.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(req *http.Request) (*cache.Response, error)

// Do calls f(req).
func (f FetcherFunc) Do(req *http.Request) (*cache.Response, error) {
	return f(req)
}

// Reload marks req to bypass intermediate HTTP caches, so it always reaches
// the origin.
func Reload(req *http.Request) {
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Client is an HTTP Fetcher.
type Client struct {
	hc   *http.Client
	opts Options
}

// New creates a Client with its own http.Client.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{hc: &http.Client{Timeout: opts.Timeout}, opts: opts}
}

// NewWithClient creates a Client around hc. hc's own timeout is kept.
func NewWithClient(hc *http.Client, opts Options) *Client {
	return &Client{hc: hc, opts: opts.withDefaults()}
}

// Do implements Fetcher.
func (c *Client) Do(req *http.Request) (*cache.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", req.URL, err)
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return nil, fmt.Errorf("fetch %s: %w (limit %d bytes)", req.URL, ErrBodyTooLarge, c.opts.MaxBodyBytes)
	}

	return cache.NewResponse(resp.StatusCode, resp.Header.Clone(), body), nil
}
