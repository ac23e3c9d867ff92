package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"promote_and_backfill", "versioned_queries"} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, loadTestScenario(t, name)))
		})
	}
}

func TestRun_SameTraceOnBothBackends(t *testing.T) {
	s := loadTestScenario(t, "promote_and_backfill")

	s.Backend = "badger"
	badger, err := Run(s)
	require.NoError(t, err)

	s.Backend = "sqlite"
	sqlite, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, badger.Trace, sqlite.Trace)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: failing
steps:
  - op: write
    payload: { bodyid: 1, status: Traced }
    expect: { outcome: head }
  - op: get
    id: 1
    expect: { record: { status: Orphan } }
  - op: get
    id: 2
  - op: write
    payload: { bodyid: 1 }
    expect: { error: INVALID_VERSION }
assertions:
  - type: head_version
    id: 1
    version: v3
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "outcome: expected head, got create")
	assert.Contains(t, result.Errors[1], "record.status")
	assert.Contains(t, result.Errors[2], "unexpected error")
	assert.Contains(t, result.Errors[3], "expected error INVALID_VERSION, got success")
	assert.Contains(t, result.Errors[4], "head_version")

	assert.Equal(t, "NOT_FOUND", result.Trace[2].Error)
}

func TestRun_Defaults(t *testing.T) {
	s := &Scenario{
		Name:  "defaults",
		Steps: []Step{{Op: OpWrite, Payload: map[string]any{"bodyid": 5}}},
	}
	assert.Equal(t, "test", scopeOf(s).Dataset)
	assert.Equal(t, "neurons", scopeOf(s).Kind)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "id5", result.Trace[0].Key)
}
