package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smokeScenario = `name: cli_smoke
steps:
  - op: write
    payload: { bodyid: 1, status: Traced }
    expect: { outcome: create }
  - op: get
    id: 1
    expect: { found: true, record: { status: Traced } }
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	out, err = runTestCommand(t, "json", t.TempDir())
	require.NoError(t, err)
	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := runTestCommand(t, "text", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ promote_and_backfill")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "smoke.yaml", smokeScenario)

	out, err := runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err, out)

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "cli_smoke.golden"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(golden, []byte("# cli_smoke\n")))
	assert.Contains(t, string(golden), `"outcome":"create"`)

	// unchanged trace matches
	out, err = runTestCommand(t, "text", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "cli_smoke.golden"), []byte("# cli_smoke\n"), 0644))
	out, err = runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var response struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "error", response.Status)
	require.Len(t, response.Data.Scenarios, 1)
	assert.Contains(t, response.Data.Scenarios[0].Errors[0], "golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bad.yaml", `name: bad
steps:
  - op: get
    id: 404
    expect: { found: true }
`)

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ bad")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: [unclosed\n")

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", smokeScenario)
	writeScenario(t, dir, "nested/b.yml", smokeScenario)
	writeScenario(t, dir, "notes.txt", "ignored")
	writeScenario(t, dir, "golden/c.yaml", smokeScenario)

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "nested", "b.yml")}, files)

	files, err = findScenarioFiles(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "nested", "b.yml")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}

func TestFindScenarioFilesSingleFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "only.yaml", smokeScenario)
	files, err := findScenarioFiles(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "promote.golden"),
		goldenFilePath(filepath.Join("scenarios", "promote-file.yaml"), "promote"))
}
