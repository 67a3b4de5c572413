// Package cachetest provides a conformance suite for cache.Storage
// implementations.
package cachetest

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/cache"
)

// TestStorage runs the conformance suite against storages returned by open.
// open is called once per subtest and must return an empty storage.
func TestStorage(t *testing.T, open func(t *testing.T) cache.Storage) {
	ctx := context.Background()

	t.Run("OpenCreatesPartition", func(t *testing.T) {
		s := open(t)
		has, err := s.Has(ctx, "content")
		require.NoError(t, err)
		assert.False(t, has)

		_, err = s.Open(ctx, "content")
		require.NoError(t, err)

		has, err = s.Has(ctx, "content")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("PutMatchRoundTrip", func(t *testing.T) {
		s := open(t)
		c, err := s.Open(ctx, "content")
		require.NoError(t, err)

		header := http.Header{"Content-Type": []string{"text/javascript"}}
		require.NoError(t, c.Put(ctx, "https://app.example/main.js", cache.NewResponse(200, header, []byte("main()"))))

		got, ok, err := c.Match(ctx, "https://app.example/main.js")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 200, got.Status)
		assert.Equal(t, "text/javascript", got.Header.Get("Content-Type"))
		assert.Equal(t, []byte("main()"), got.Body)

		_, ok, err = c.Match(ctx, "https://app.example/other.js")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := open(t)
		c, err := s.Open(ctx, "content")
		require.NoError(t, err)

		require.NoError(t, c.Put(ctx, "u", cache.NewResponse(200, nil, []byte("v1"))))
		require.NoError(t, c.Put(ctx, "u", cache.NewResponse(200, nil, []byte("v2"))))

		got, ok, err := c.Match(ctx, "u")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v2", string(got.Body))

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u"}, keys)
	})

	t.Run("KeysInInsertionOrder", func(t *testing.T) {
		s := open(t)
		c, err := s.Open(ctx, "content")
		require.NoError(t, err)

		for _, u := range []string{"c", "a", "b"} {
			require.NoError(t, c.Put(ctx, u, cache.NewResponse(200, nil, []byte(u))))
		}
		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, keys)
	})

	t.Run("DeleteEntry", func(t *testing.T) {
		s := open(t)
		c, err := s.Open(ctx, "content")
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, "u", cache.NewResponse(200, nil, nil)))

		deleted, err := c.Delete(ctx, "u")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = c.Delete(ctx, "u")
		require.NoError(t, err)
		assert.False(t, deleted)

		keys, err := c.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("PartitionsAreIndependent", func(t *testing.T) {
		s := open(t)
		a, err := s.Open(ctx, "a")
		require.NoError(t, err)
		b, err := s.Open(ctx, "b")
		require.NoError(t, err)

		require.NoError(t, a.Put(ctx, "u", cache.NewResponse(200, nil, []byte("a"))))
		_, ok, err := b.Match(ctx, "u")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeletePartition", func(t *testing.T) {
		s := open(t)
		c, err := s.Open(ctx, "content")
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, "u", cache.NewResponse(200, nil, []byte("x"))))

		deleted, err := s.Delete(ctx, "content")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "content")
		require.NoError(t, err)
		assert.False(t, deleted)

		// Writes through the old handle fail; the reopened partition is empty.
		err = c.Put(ctx, "u2", cache.NewResponse(200, nil, nil))
		assert.True(t, errors.Is(err, cache.ErrCacheDeleted), "got %v", err)

		fresh, err := s.Open(ctx, "content")
		require.NoError(t, err)
		keys, err := fresh.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("Names", func(t *testing.T) {
		s := open(t)
		for _, n := range []string{"temp", "content", "manifest"} {
			_, err := s.Open(ctx, n)
			require.NoError(t, err)
		}
		_, err := s.Delete(ctx, "temp")
		require.NoError(t, err)

		names, err := s.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"content", "manifest"}, names)
	})

	t.Run("MatchReturnsCopy", func(t *testing.T) {
		s := open(t)
		c, err := s.Open(ctx, "content")
		require.NoError(t, err)
		require.NoError(t, c.Put(ctx, "u", cache.NewResponse(200, nil, []byte("abc"))))

		got, _, err := c.Match(ctx, "u")
		require.NoError(t, err)
		got.Body[0] = 'X'

		again, _, err := c.Match(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, "abc", string(again.Body))
	})
}
