package cli

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/server"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func getStatus(addr string) (*server.Status, error) {
	resp, err := http.Get("http://" + addr + server.ControlPrefix + "/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var status server.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func TestServe_DeploysAndServesFromCache(t *testing.T) {
	env := newTestEnv(t)
	addr := freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewServeCommand(env.opts("text"))
	cmd.SetArgs([]string{"--listen", addr})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var status *server.Status
	require.Eventually(t, func() bool {
		s, err := getStatus(addr)
		if err != nil || s.Controller == nil {
			return false
		}
		status = s
		return true
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, "activated", status.Controller.State)
	assert.Equal(t, 3, status.Controller.Resources)

	before := env.requests.Load()
	resp, err := http.Get("http://" + addr + "/main.js")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "main()", string(body))
	assert.Equal(t, before, env.requests.Load(), "core asset should be served from the cache")

	resp, err = http.Get("http://" + addr + server.ControlPrefix + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "activations_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_ResumesActivatedBuild(t *testing.T) {
	env := newTestEnv(t)

	out, err := execute(t, NewDeployCommand(env.opts("json")))
	require.NoError(t, err)
	var deployed ActivateResult
	decodeData(t, out, &deployed)

	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewServeCommand(env.opts("text"))
	cmd.SetArgs([]string{"--listen", addr})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	before := env.requests.Load()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var status *server.Status
	require.Eventually(t, func() bool {
		s, err := getStatus(addr)
		if err != nil || s.Controller == nil {
			return false
		}
		status = s
		return true
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, deployed.Digest, status.Controller.Digest)
	assert.Equal(t, before, env.requests.Load(), "resume should not reinstall")

	cancel()
	require.NoError(t, <-done)
}
