package testutil

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/roach88/assetsync/internal/cache"
)

// ErrOffline is returned by FakeNetwork for URLs that are set to fail.
var ErrOffline = errors.New("network unreachable")

// FakeNetwork is an in-memory fetch.Fetcher.
//
// Each URL serves a fixed response. Unknown URLs return 404. Every request is
// recorded in arrival order, with its Cache-Control header, for assertions.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeNetwork struct {
	mu        sync.Mutex
	responses map[string]*cache.Response
	failing   map[string]bool
	offline   bool
	calls     []Call
	gate      chan struct{}
}

// Call is one recorded request.
type Call struct {
	URL          string
	CacheControl string
}

// NewFakeNetwork creates a network with no routes.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{
		responses: make(map[string]*cache.Response),
		failing:   make(map[string]bool),
	}
}

// Serve makes url return 200 with body.
func (n *FakeNetwork) Serve(url, body string) *FakeNetwork {
	return n.ServeStatus(url, http.StatusOK, body)
}

// ServeStatus makes url return status with body.
func (n *FakeNetwork) ServeStatus(url string, status int, body string) *FakeNetwork {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[url] = cache.NewResponse(status, http.Header{"Content-Type": {"text/plain"}}, []byte(body))
	delete(n.failing, url)
	return n
}

// Fail makes requests for url return ErrOffline.
func (n *FakeNetwork) Fail(url string) *FakeNetwork {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failing[url] = true
	return n
}

// SetOffline makes every request fail (or succeed again) regardless of route.
func (n *FakeNetwork) SetOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

// Hold makes every request block until Release is called.
func (n *FakeNetwork) Hold() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gate = make(chan struct{})
}

// Release unblocks requests held by Hold.
func (n *FakeNetwork) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gate != nil {
		close(n.gate)
		n.gate = nil
	}
}

// Do implements fetch.Fetcher.
func (n *FakeNetwork) Do(req *http.Request) (*cache.Response, error) {
	url := req.URL.String()

	n.mu.Lock()
	n.calls = append(n.calls, Call{URL: url, CacheControl: req.Header.Get("Cache-Control")})
	gate := n.gate
	n.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline || n.failing[url] {
		return nil, fmt.Errorf("fetch %s: %w", url, ErrOffline)
	}
	resp, ok := n.responses[url]
	if !ok {
		return cache.NewResponse(http.StatusNotFound, nil, []byte("not found")), nil
	}
	return resp.Clone(), nil
}

// Calls returns every recorded request.
func (n *FakeNetwork) Calls() []Call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.calls)
}

// URLs returns the recorded request URLs in sorted order.
func (n *FakeNetwork) URLs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	urls := make([]string, len(n.calls))
	for i, c := range n.calls {
		urls[i] = c.URL
	}
	slices.Sort(urls)
	return urls
}

// Count returns how many requests were made for url.
func (n *FakeNetwork) Count(url string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if c.URL == url {
			count++
		}
	}
	return count
}

// Reset forgets recorded requests. Routes are kept.
func (n *FakeNetwork) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = nil
}
