package cache

import (
	"context"
	"slices"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStorage is a process-local Storage. Entries never expire.
// Safe for concurrent use.
type MemoryStorage struct {
	mu         sync.Mutex
	partitions map[string]*memoryCache
	order      []string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{partitions: make(map[string]*memoryCache)}
}

// Open implements Storage.
func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.partitions[name]; ok {
		return c, nil
	}
	c := &memoryCache{items: gocache.New(gocache.NoExpiration, 0)}
	s.partitions[name] = c
	s.order = append(s.order, name)
	return c, nil
}

// Delete implements Storage.
func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.partitions[name]
	if !ok {
		return false, nil
	}
	c.drop()
	delete(s.partitions, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return true, nil
}

// Has implements Storage.
func (s *MemoryStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.partitions[name]
	return ok, nil
}

// Names implements Storage.
func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order), nil
}

type memoryEntry struct {
	seq  int64
	resp *Response
}

type memoryCache struct {
	mu      sync.Mutex
	items   *gocache.Cache
	seq     int64
	deleted bool
}

func (c *memoryCache) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = true
	c.items.Flush()
}

func (c *memoryCache) Match(_ context.Context, url string) (*Response, bool, error) {
	v, ok := c.items.Get(url)
	if !ok {
		return nil, false, nil
	}
	return v.(memoryEntry).resp.Clone(), true, nil
}

func (c *memoryCache) Put(_ context.Context, url string, resp *Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleted {
		return ErrCacheDeleted
	}
	c.seq++
	c.items.Set(url, memoryEntry{seq: c.seq, resp: resp.Clone()}, gocache.NoExpiration)
	return nil
}

func (c *memoryCache) Delete(_ context.Context, url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items.Get(url); !ok {
		return false, nil
	}
	c.items.Delete(url)
	return true, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	items := c.items.Items()
	type keyed struct {
		url string
		seq int64
	}
	list := make([]keyed, 0, len(items))
	for url, item := range items {
		list = append(list, keyed{url: url, seq: item.Object.(memoryEntry).seq})
	}
	slices.SortFunc(list, func(a, b keyed) int { return int(a.seq - b.seq) })
	urls := make([]string, len(list))
	for i, k := range list {
		urls[i] = k.url
	}
	return urls, nil
}
