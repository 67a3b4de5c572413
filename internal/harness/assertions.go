package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/assetsync/internal/cache"
	"github.com/roach88/assetsync/internal/manifest"
	"github.com/roach88/assetsync/internal/worker"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s %v\n", event.Seq, event.Step, event.Target, event.Outcome, event.Result)
		}
	}

	return buf.String()
}

// matchEvent reports whether event is selected by the assertion's step,
// target and outcome. Empty selectors match anything.
func matchEvent(event TraceEvent, a Assertion) bool {
	if event.Step != a.Step {
		return false
	}
	if a.Target != "" && event.Target != a.Target {
		return false
	}
	if a.Outcome != "" && event.Outcome != a.Outcome {
		return false
	}
	return true
}

// assertTraceContains checks that a step matching the assertion was executed.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchEvent(event, a) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("step %s %s with outcome %q", a.Step, a.Target, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks how many steps match the assertion.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", a.Count, a.Step, a.Target),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertNetworkCount checks how many times a path was requested over the
// whole scenario.
func assertNetworkCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		for _, req := range event.Network {
			if strings.TrimSuffix(req, " (reload)") == a.Path {
				count++
			}
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertNetworkCount,
			Expected: fmt.Sprintf("%d requests for %s", a.Count, a.Path),
			Actual:   fmt.Sprintf("%d requests", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertCached compares a partition's entries, as logical keys, with the
// expected set. A partition that does not exist is empty.
func (h *Harness) assertCached(ctx context.Context, a Assertion) error {
	partitions := worker.DefaultPartitions()
	name := map[string]string{
		"content":  partitions.Content,
		"staging":  partitions.Staging,
		"manifest": partitions.Manifest,
	}[a.Partition]

	keys, err := h.keys(ctx, name)
	if err != nil {
		return err
	}
	want := append([]string{}, a.Keys...)
	sort.Strings(want)

	if !reflect.DeepEqual(keys, want) {
		return &AssertionError{
			Type:     AssertCached,
			Expected: fmt.Sprintf("%s holds %v", a.Partition, want),
			Actual:   fmt.Sprintf("%v", keys),
		}
	}
	return nil
}

func (h *Harness) keys(ctx context.Context, name string) ([]string, error) {
	keys := []string{}
	ok, err := h.store.Has(ctx, name)
	if err != nil || !ok {
		return keys, err
	}
	c, err := h.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	snap, err := cache.Snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	for _, url := range cache.SortedURLs(snap) {
		key, ok := h.origin.KeyForURL(url)
		if !ok {
			key = url
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// assertController checks the controlling worker and, optionally, the
// manifest it controls with.
func (h *Harness) assertController(a Assertion) error {
	w := h.reg.Controller()
	actual := "none"
	if w != nil {
		actual = w.ID()
	}
	if actual != a.Worker {
		return &AssertionError{
			Type:     AssertController,
			Expected: fmt.Sprintf("controller %s", a.Worker),
			Actual:   actual,
		}
	}
	if w == nil || a.Manifest == "" {
		return nil
	}

	want, err := h.scenario.Builds[a.Manifest].Resources.Digest()
	if err != nil {
		return err
	}
	if w.Digest() != want {
		return &AssertionError{
			Type:     AssertController,
			Expected: fmt.Sprintf("controller on manifest %s (%s)", a.Manifest, manifest.ShortDigest(want)),
			Actual:   manifest.ShortDigest(w.Digest()),
		}
	}
	return nil
}

// matchFields checks if actual contains all expected fields (subset match).
// Values are compared by their printed form, so YAML integers match the
// ints recorded in the trace.
func matchFields(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// evaluate runs the scenario's assertions.
// Returns a slice of error messages for failed assertions.
func (h *Harness) evaluate(ctx context.Context, result *Result) []string {
	var errors []string

	for i, a := range h.scenario.Assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertNetworkCount:
			err = assertNetworkCount(result.Trace, a)
		case AssertCached:
			err = h.assertCached(ctx, a)
		case AssertController:
			err = h.assertController(a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
