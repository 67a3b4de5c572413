// Package cache defines the cache storage abstraction the synchronizer works
// against: named partitions holding request-URL → response entries.
//
// Two implementations exist: MemoryStorage in this package (tests, ephemeral
// runs) and the SQLite-backed store.Store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
)

// ErrCacheDeleted is returned when writing through a handle whose partition
// has been deleted since it was opened.
var ErrCacheDeleted = errors.New("cache: partition was deleted")

// Response is a stored or fetched HTTP response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a Response. A nil header is replaced by an empty one.
func NewResponse(status int, header http.Header, body []byte) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{Status: status, Header: header, Body: body}
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// Clone returns a deep copy, so that a response can be stored and returned
// to a caller independently.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	h := make(http.Header, len(r.Header))
	for k, v := range r.Header {
		h[k] = slices.Clone(v)
	}
	return &Response{Status: r.Status, Header: h, Body: slices.Clone(r.Body)}
}

// String summarizes the response for logs.
func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d (%d bytes)", r.Status, len(r.Body))
}

// Cache is a single named partition.
type Cache interface {
	// Match returns the entry stored for url. Returns false if absent.
	Match(ctx context.Context, url string) (*Response, bool, error)

	// Put stores resp under url, replacing any existing entry.
	Put(ctx context.Context, url string, resp *Response) error

	// Delete removes the entry for url. Returns false if there was none.
	Delete(ctx context.Context, url string) (bool, error)

	// Keys returns entry URLs in insertion order.
	Keys(ctx context.Context) ([]string, error)
}

// Storage manages named partitions.
type Storage interface {
	// Open returns the partition called name, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)

	// Delete drops the partition and all its entries.
	// Returns false if it did not exist.
	Delete(ctx context.Context, name string) (bool, error)

	// Has reports whether the partition exists.
	Has(ctx context.Context, name string) (bool, error)

	// Names lists existing partitions in creation order.
	Names(ctx context.Context) ([]string, error)
}

// CopyAll copies every entry of src into dst, overwriting entries with the
// same URL. Returns the number of entries copied.
func CopyAll(ctx context.Context, dst, src Cache) (int, error) {
	keys, err := src.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("copy: list source: %w", err)
	}
	n := 0
	for _, url := range keys {
		resp, ok, err := src.Match(ctx, url)
		if err != nil {
			return n, fmt.Errorf("copy: match %s: %w", url, err)
		}
		if !ok {
			continue
		}
		if err := dst.Put(ctx, url, resp); err != nil {
			return n, fmt.Errorf("copy: put %s: %w", url, err)
		}
		n++
	}
	return n, nil
}

// Snapshot reads every entry of c into a map, for status output and tests.
func Snapshot(ctx context.Context, c Cache) (map[string]*Response, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Response, len(keys))
	for _, url := range keys {
		resp, ok, err := c.Match(ctx, url)
		if err != nil {
			return nil, err
		}
		if ok {
			out[url] = resp
		}
	}
	return out, nil
}

// SortedURLs returns the keys of a snapshot in lexical order.
func SortedURLs(snap map[string]*Response) []string {
	return slices.Sorted(maps.Keys(snap))
}
