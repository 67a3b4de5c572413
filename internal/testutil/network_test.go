package testutil

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestFakeNetwork_ServesRoutes(t *testing.T) {
	n := NewFakeNetwork().Serve("https://app.test/main.js", "main()")

	resp, err := n.Do(get(t, context.Background(), "https://app.test/main.js"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "main()", string(resp.Body))

	resp, err = n.Do(get(t, context.Background(), "https://app.test/nope"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	assert.Equal(t, []string{"https://app.test/main.js", "https://app.test/nope"}, n.URLs())
}

func TestFakeNetwork_Failures(t *testing.T) {
	n := NewFakeNetwork().Serve("https://app.test/a", "a").Fail("https://app.test/b")

	_, err := n.Do(get(t, context.Background(), "https://app.test/b"))
	assert.ErrorIs(t, err, ErrOffline)

	n.SetOffline(true)
	_, err = n.Do(get(t, context.Background(), "https://app.test/a"))
	assert.ErrorIs(t, err, ErrOffline)

	n.SetOffline(false)
	_, err = n.Do(get(t, context.Background(), "https://app.test/a"))
	assert.NoError(t, err)
}

func TestFakeNetwork_RecordsCacheControl(t *testing.T) {
	n := NewFakeNetwork()
	req := get(t, context.Background(), "https://app.test/a")
	req.Header.Set("Cache-Control", "no-cache")
	_, _ = n.Do(req)

	calls := n.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "no-cache", calls[0].CacheControl)
}

func TestFakeNetwork_HoldAndRelease(t *testing.T) {
	n := NewFakeNetwork().Serve("https://app.test/a", "a")
	n.Hold()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := n.Do(get(t, context.Background(), "https://app.test/a"))
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool { return n.Count("https://app.test/a") == 1 }, time.Second, time.Millisecond)
	n.Release()
	wg.Wait()
}

func TestFakeNetwork_HoldHonorsContext(t *testing.T) {
	n := NewFakeNetwork()
	n.Hold()
	defer n.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Do(get(t, ctx, "https://app.test/a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeNetwork_Reset(t *testing.T) {
	n := NewFakeNetwork()
	_, _ = n.Do(get(t, context.Background(), "https://app.test/a"))
	n.Reset()
	assert.Empty(t, n.Calls())
}

func TestRecordingHost(t *testing.T) {
	h := &RecordingHost{}
	assert.False(t, h.Claimed())

	h.SkipWaiting()
	h.ClaimClients()

	assert.Equal(t, []string{"skipWaiting", "claimClients"}, h.Events())
	assert.True(t, h.Claimed())
}
