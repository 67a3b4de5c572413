package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const failingScenario = `name: failing
description: "The core asset is missing from the origin"
manifests:
  v1: {resources: {"/": r1}, core: ["/"]}
flow:
  - deploy: v1
assertions:
  - {type: controller, worker: worker-1}
`

const passingScenario = `name: passing
description: "Deploy once"
manifests:
  v1: {resources: {"/": r1}, core: ["/"]}
files:
  /: index
flow:
  - deploy: v1
assertions:
  - {type: controller, worker: worker-1}
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), "../harness/testdata/scenarios")
	require.NoError(t, err)

	var result TestResult
	decodeData(t, out, &result)
	assert.Equal(t, result.Total, result.Passed)
	assert.Zero(t, result.Failed)
	assert.GreaterOrEqual(t, result.Total, 4)
}

func TestTest_Filter(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}),
		"../harness/testdata/scenarios", "--filter", "restart*")
	require.NoError(t, err)

	var result TestResult
	decodeData(t, out, &result)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "restart_offline", result.Scenarios[0].Name)
}

func TestTest_FailingScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"failing.yaml": failingScenario,
		"passing.yaml": passingScenario,
		"notes.txt":    "ignored",
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "✓ passing")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTest_UpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"passing.yaml": passingScenario})
	golden := filepath.Join(filepath.Dir(dir), "golden", "passing.golden")

	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name": "passing"`)

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTest_MissingDirectory(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
