package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/server"
	"github.com/roach88/assetsync/internal/store"
	"github.com/roach88/assetsync/internal/testutil"
	"github.com/roach88/assetsync/internal/worker"
)

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	origin   manifest.Origin
	store    *store.Store
	net      *testutil.FakeNetwork
	ids      *sequentialIDs
	reg      *server.Registration
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory SQLite database and a fake
// origin. A failed expect clause or assertion fails the result; an error is
// returned only when the scenario could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	origin, err := manifest.ParseOrigin(scenario.Origin)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: scenario,
		origin:   origin,
		store:    st,
		net:      testutil.NewFakeNetwork(),
		ids:      &sequentialIDs{prefix: "worker-"},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	for path, body := range scenario.Files {
		h.net.Serve(h.url(path), body)
	}
	if err := h.restart(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Flow {
		event, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		if msg := checkExpect(step, event); msg != "" {
			result.AddError(fmt.Sprintf("flow[%d] %s %s: %s", i, event.Step, event.Target, msg))
		}
		result.addEvent(event)
	}

	for _, msg := range h.evaluate(ctx, result) {
		result.AddError(msg)
	}
	return result, nil
}

// restart replaces the registration, keeping storage. It models a process
// restart: no worker controls until one is deployed or resumed.
func (h *Harness) restart() error {
	reg, err := server.NewRegistration(server.Config{
		Origin:  h.origin,
		Storage: h.store,
		Network: h.net,
		IDs:     h.ids,
		Logger:  h.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create registration: %w", err)
	}
	h.reg = reg
	return nil
}

// execute runs one step. Lifecycle failures are recorded in the event;
// only harness failures are returned.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	h.net.Reset()
	event := TraceEvent{Step: step.Kind(), Outcome: OutcomeOK}

	switch event.Step {
	case StepDeploy:
		event.Target = step.Deploy
		res, err := h.reg.Deploy(ctx, h.scenario.Builds[step.Deploy])
		if err != nil {
			failed(&event, err)
			break
		}
		event.Result = deployResult(res)

	case StepResume:
		event.Target = step.Resume
		res, err := h.reg.Resume(ctx, h.scenario.Builds[step.Resume])
		if err != nil {
			failed(&event, err)
			break
		}
		event.Result = map[string]any{"worker": res.Worker, "state": res.State}

	case StepFetch:
		event.Target = step.Fetch
		h.fetch(ctx, &event)

	case StepMessage:
		event.Target = step.Message
		id, err := h.reg.Message(ctx, step.Message)
		if err != nil {
			failed(&event, err)
			break
		}
		event.Result = map[string]any{"worker": id}

	case StepNetwork:
		h.change(step.Network)

	case StepRestart:
		if err := h.restart(); err != nil {
			return event, err
		}

	default:
		return event, fmt.Errorf("step has no action")
	}

	event.Network = h.requested()
	return event, nil
}

func (h *Harness) fetch(ctx context.Context, event *TraceEvent) {
	w := h.reg.Controller()
	if w == nil {
		event.Outcome = OutcomeDeclined
		event.Result = map[string]any{"reason": "no controller"}
		return
	}

	target := event.Target
	if strings.HasPrefix(target, "/") {
		target = h.url(target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		failed(event, err)
		return
	}

	resp, handled, err := w.Fetch(ctx, req)
	switch {
	case !handled:
		event.Outcome = OutcomeDeclined
	case err != nil:
		failed(event, err)
	default:
		event.Result = map[string]any{"status": resp.Status, "body": string(resp.Body)}
	}
}

func (h *Harness) change(c *NetworkChange) {
	for path, body := range c.Serve {
		h.net.Serve(h.url(path), body)
	}
	for _, path := range c.Remove {
		h.net.ServeStatus(h.url(path), http.StatusNotFound, "not found")
	}
	for _, path := range c.Fail {
		h.net.Fail(h.url(path))
	}
	if c.Offline != nil {
		h.net.SetOffline(*c.Offline)
	}
}

// requested returns the origin paths requested since the last Reset.
func (h *Harness) requested() []string {
	calls := h.net.Calls()
	if len(calls) == 0 {
		return nil
	}
	paths := make([]string, len(calls))
	for i, c := range calls {
		path := strings.TrimPrefix(c.URL, h.origin.String())
		if c.CacheControl == "no-cache" {
			path += " (reload)"
		}
		paths[i] = path
	}
	sort.Strings(paths)
	return paths
}

func (h *Harness) url(path string) string {
	return h.origin.String() + path
}

func deployResult(res *server.DeployResult) map[string]any {
	out := map[string]any{"worker": res.Worker, "state": res.State}
	if a := res.Activation; a != nil {
		out["mode"] = a.Mode
		out["retained"] = a.Retained
		out["evicted"] = a.Evicted
		out["staged"] = a.Staged
	}
	return out
}

// failed records err on event. Worker errors contribute their code, key and
// recovery.
func failed(event *TraceEvent, err error) {
	event.Outcome = OutcomeError
	event.Result = map[string]any{}

	var werr *worker.Error
	switch {
	case errors.As(err, &werr):
		event.Result["code"] = string(werr.Code)
		if werr.Key != "" {
			event.Result["key"] = werr.Key
		}
		if werr.Recovery != "" && werr.Recovery != worker.RecoveryNone {
			event.Result["recovery"] = string(werr.Recovery)
		}
	case errors.Is(err, server.ErrNoWorker):
		event.Result["code"] = "NO_WORKER"
	case errors.Is(err, server.ErrNotActivated):
		event.Result["code"] = "NOT_ACTIVATED"
	default:
		event.Result["error"] = err.Error()
	}
}

// checkExpect returns a description of the mismatch, or "" if event meets
// step's expectation.
func checkExpect(step Step, event TraceEvent) string {
	want := OutcomeOK
	var result map[string]any
	if step.Expect != nil {
		if step.Expect.Outcome != "" {
			want = step.Expect.Outcome
		}
		result = step.Expect.Result
	}
	if event.Outcome != want {
		return fmt.Sprintf("outcome %s, want %s (result %v)", event.Outcome, want, event.Result)
	}
	if !matchFields(event.Result, result) {
		return fmt.Sprintf("result %v does not match %v", event.Result, result)
	}
	return ""
}

// sequentialIDs generates worker-1, worker-2, ...
type sequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (g *sequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s%d", g.prefix, g.next)
}
