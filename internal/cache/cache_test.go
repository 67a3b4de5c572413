package cache

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_OK(t *testing.T) {
	assert.True(t, NewResponse(200, nil, nil).OK())
	assert.True(t, NewResponse(204, nil, nil).OK())
	assert.False(t, NewResponse(304, nil, nil).OK())
	assert.False(t, NewResponse(404, nil, nil).OK())
	assert.False(t, (*Response)(nil).OK())
}

func TestResponse_CloneIsDeep(t *testing.T) {
	orig := NewResponse(200, http.Header{"Etag": []string{"x"}}, []byte("body"))
	c := orig.Clone()

	c.Body[0] = 'B'
	c.Header.Set("Etag", "y")

	assert.Equal(t, "body", string(orig.Body))
	assert.Equal(t, "x", orig.Header.Get("Etag"))
}

func TestCopyAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	src, err := s.Open(ctx, "temp")
	require.NoError(t, err)
	dst, err := s.Open(ctx, "content")
	require.NoError(t, err)

	require.NoError(t, src.Put(ctx, "a", NewResponse(200, nil, []byte("new-a"))))
	require.NoError(t, src.Put(ctx, "b", NewResponse(200, nil, []byte("b"))))
	require.NoError(t, dst.Put(ctx, "a", NewResponse(200, nil, []byte("old-a"))))
	require.NoError(t, dst.Put(ctx, "c", NewResponse(200, nil, []byte("c"))))

	n, err := CopyAll(ctx, dst, src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := Snapshot(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, SortedURLs(snap))
	assert.Equal(t, "new-a", string(snap["a"].Body))
}
