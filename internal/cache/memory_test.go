package cache_test

import (
	"testing"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/cache/cachetest"
)

func TestMemoryStorage(t *testing.T) {
	cachetest.TestStorage(t, func(t *testing.T) cache.Storage {
		return cache.NewMemoryStorage()
	})
}
