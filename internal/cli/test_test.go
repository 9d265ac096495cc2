package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

// copyScenario copies a harness scenario into dir/scenarios.
func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, name+".yaml"))
	require.NoError(t, err)

	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, name+".yaml"), data, 0o644))
	return scenarios
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out := mustExecute(t, testDB(t), "test", harnessScenarios)
	assert.Contains(t, out, "✓ heartbeat_closes_session")
	assert.Contains(t, out, "✓ idle_sweep_and_overview")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	var result TestResult
	decodeData(t, mustExecute(t, testDB(t), "test", harnessScenarios, "--filter", "idle_*", "--format", "json"), &result)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "idle_sweep_and_overview", result.Scenarios[0].Name)
	assert.True(t, result.Scenarios[0].Pass)
}

func TestTestCommand_UpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	scenarios := copyScenario(t, dir, "heartbeat_closes_session")
	golden := filepath.Join(dir, "golden", "heartbeat_closes_session.golden")

	out := mustExecute(t, testDB(t), "test", scenarios, "--update")
	assert.Contains(t, out, "✓ heartbeat_closes_session (golden updated)")

	written, err := os.ReadFile(golden)
	require.NoError(t, err)
	expected, err := os.ReadFile("../harness/testdata/golden/heartbeat_closes_session.golden")
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written))

	mustExecute(t, testDB(t), "test", scenarios)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err = execute(t, testDB(t), "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingScenarioJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	scenario := `name: wrong_duration
description: expects the wrong session length
steps:
  - {at: 0, op: create_user, user: ana}
  - {at: 60, op: logout, user: ana}
assertions:
  - type: session_durations
    user: ana
    durations: [30]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_duration.yaml"), []byte(scenario), 0o644))

	out, err := execute(t, testDB(t), "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_MissingDirectory(t *testing.T) {
	_, err := execute(t, testDB(t), "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoldenFilePath(t *testing.T) {
	got := goldenFilePath(filepath.Join("testdata", "scenarios", "a.yaml"), "a")
	assert.Equal(t, filepath.Join("testdata", "golden", "a.golden"), got)
}
