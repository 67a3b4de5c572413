package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Step: StepDeploy, Target: "v1", Outcome: OutcomeOK, Network: []string{"/ (reload)", "/main.js (reload)"}},
		{Seq: 2, Step: StepFetch, Target: "/a.js", Outcome: OutcomeOK, Network: []string{"/a.js"}},
		{Seq: 3, Step: StepFetch, Target: "/b.js", Outcome: OutcomeDeclined},
		{Seq: 4, Step: StepFetch, Target: "/", Outcome: OutcomeOK, Network: []string{"/"}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Step: StepFetch}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Step: StepFetch, Target: "/b.js", Outcome: OutcomeDeclined}))

	err := assertTraceContains(trace, Assertion{Step: StepFetch, Target: "/b.js", Outcome: OutcomeOK})
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, AssertTraceContains, aerr.Type)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[3] fetch /b.js -> declined")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Step: StepFetch, Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Step: StepFetch, Outcome: OutcomeOK, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Step: StepMessage, Count: 0}))

	err := assertTraceCount(trace, Assertion{Step: StepDeploy, Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertNetworkCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertNetworkCount(trace, Assertion{Path: "/", Count: 2}))
	assert.NoError(t, assertNetworkCount(trace, Assertion{Path: "/main.js", Count: 1}))
	assert.NoError(t, assertNetworkCount(trace, Assertion{Path: "/b.js", Count: 0}))

	err := assertNetworkCount(trace, Assertion{Path: "/a.js", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 requests")
}

func TestMatchFields(t *testing.T) {
	actual := map[string]any{"status": 200, "body": "x", "worker": "worker-1"}

	assert.True(t, matchFields(actual, nil))
	assert.True(t, matchFields(actual, map[string]any{"status": 200}))
	assert.True(t, matchFields(actual, map[string]any{"status": "200"}))
	assert.False(t, matchFields(actual, map[string]any{"status": 404}))
	assert.False(t, matchFields(actual, map[string]any{"missing": "x"}))
	assert.False(t, matchFields(nil, map[string]any{"body": "x"}))
}
