package fetch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/cache"
)

func newMockedClient(t *testing.T, opts Options) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewWithClient(hc, opts)
}

func newRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestClient_Do(t *testing.T) {
	c := newMockedClient(t, Options{})
	httpmock.RegisterResponder(http.MethodGet, "https://app.example/main.js",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusOK, "main()")
			resp.Header.Set("Content-Type", "text/javascript")
			return resp, nil
		})

	resp, err := c.Do(newRequest(t, "https://app.example/main.js"))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "main()", string(resp.Body))
	assert.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))
}

func TestClient_NonOKIsNotAnError(t *testing.T) {
	c := newMockedClient(t, Options{})
	httpmock.RegisterResponder(http.MethodGet, "https://app.example/missing.js",
		httpmock.NewStringResponder(http.StatusNotFound, "nope"))

	resp, err := c.Do(newRequest(t, "https://app.example/missing.js"))
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestClient_TransportError(t *testing.T) {
	c := newMockedClient(t, Options{})
	offline := errors.New("network unreachable")
	httpmock.RegisterResponder(http.MethodGet, "https://app.example/main.js",
		httpmock.NewErrorResponder(offline))

	_, err := c.Do(newRequest(t, "https://app.example/main.js"))
	require.Error(t, err)
	assert.ErrorIs(t, err, offline)
}

func TestClient_ReloadHeadersAndUserAgent(t *testing.T) {
	c := newMockedClient(t, Options{UserAgent: "test-agent"})
	var seen http.Header
	httpmock.RegisterResponder(http.MethodGet, "https://app.example/index.html",
		func(req *http.Request) (*http.Response, error) {
			seen = req.Header.Clone()
			return httpmock.NewStringResponse(http.StatusOK, "<html>"), nil
		})

	req := newRequest(t, "https://app.example/index.html")
	Reload(req)
	_, err := c.Do(req)
	require.NoError(t, err)

	assert.Equal(t, "no-cache", seen.Get("Cache-Control"))
	assert.Equal(t, "no-cache", seen.Get("Pragma"))
	assert.Equal(t, "test-agent", seen.Get("User-Agent"))
}

func TestClient_BodyLimit(t *testing.T) {
	c := newMockedClient(t, Options{MaxBodyBytes: 4})
	httpmock.RegisterResponder(http.MethodGet, "https://app.example/big.bin",
		httpmock.NewStringResponder(http.StatusOK, strings.Repeat("x", 5)))
	httpmock.RegisterResponder(http.MethodGet, "https://app.example/small.bin",
		httpmock.NewStringResponder(http.StatusOK, "xxxx"))

	_, err := c.Do(newRequest(t, "https://app.example/big.bin"))
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	resp, err := c.Do(newRequest(t, "https://app.example/small.bin"))
	require.NoError(t, err)
	assert.Len(t, resp.Body, 4)
}

func TestRateLimited_HonorsContext(t *testing.T) {
	calls := 0
	inner := FetcherFunc(func(req *http.Request) (*cache.Response, error) {
		calls++
		return cache.NewResponse(http.StatusOK, nil, nil), nil
	})

	// One token, then an effectively infinite wait.
	f := RateLimited(inner, NewLimiter(0.0001, 1))

	_, err := f.Do(newRequest(t, "https://app.example/a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://app.example/b", nil)
	require.NoError(t, err)
	_, err = f.Do(req)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNewLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 10))
	inner := FetcherFunc(func(*http.Request) (*cache.Response, error) { return nil, nil })
	f := RateLimited(inner, nil)
	_, ok := f.(FetcherFunc)
	assert.True(t, ok)
}
