package testutil

import (
	"slices"
	"sync"
)

// RecordingHost records lifecycle requests from a worker.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingHost struct {
	mu     sync.Mutex
	events []string
}

// SkipWaiting implements worker.Host.
func (h *RecordingHost) SkipWaiting() {
	h.record("skipWaiting")
}

// ClaimClients implements worker.Host.
func (h *RecordingHost) ClaimClients() {
	h.record("claimClients")
}

func (h *RecordingHost) record(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

// Events returns the recorded requests in order.
func (h *RecordingHost) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

// Claimed reports whether ClaimClients was called.
func (h *RecordingHost) Claimed() bool {
	return slices.Contains(h.Events(), "claimClients")
}
