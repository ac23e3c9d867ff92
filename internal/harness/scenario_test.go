package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s := loadTestScenario(t, "promote_and_backfill")
	assert.Equal(t, "promote_and_backfill", s.Name)
	assert.Equal(t, "hemibrain", s.Dataset)
	require.Len(t, s.Steps, 6)
	assert.Equal(t, OpWrite, s.Steps[0].Op)
	assert.Equal(t, "v0.2", s.Steps[0].Version)
	assert.Equal(t, 7, s.Steps[0].Payload["bodyid"])
	require.NotNil(t, s.Steps[4].Expect.Found)
	assert.False(t, *s.Steps[4].Expect.Found)
	require.Len(t, s.Assertions, 3)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: s\nsteps:\n  - op: get\n    id: 1\n"), 0o644))
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Steps[0].ID)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "unknown field", yaml: "name: x\nstep: []\n", want: "failed to parse YAML"},
		{name: "missing name", yaml: "steps:\n  - op: get\n    id: 1\n", want: "name is required"},
		{name: "no steps", yaml: "name: x\n", want: "at least one step"},
		{name: "bad backend", yaml: "name: x\nbackend: mongo\nsteps:\n  - op: get\n    id: 1\n", want: "unknown backend"},
		{name: "unknown op", yaml: "name: x\nsteps:\n  - op: upsert\n", want: "unknown op"},
		{name: "missing op", yaml: "name: x\nsteps:\n  - id: 1\n", want: "op is required"},
		{name: "write without payload", yaml: "name: x\nsteps:\n  - op: write\n", want: "payload is required"},
		{name: "get without id", yaml: "name: x\nsteps:\n  - op: get\n", want: "id is required"},
		{name: "fetch without ids", yaml: "name: x\nsteps:\n  - op: fetch\n", want: "ids are required"},
		{name: "query without where", yaml: "name: x\nsteps:\n  - op: query\n", want: "where is required"},
		{name: "unknown expect field", yaml: "name: x\nsteps:\n  - op: get\n    id: 1\n    expect: { outcom: head }\n", want: "failed to parse YAML"},
		{name: "assertion without id", yaml: "name: x\nsteps:\n  - op: get\n    id: 1\nassertions:\n  - type: chain\n", want: "id is required"},
		{name: "head_version without version", yaml: "name: x\nsteps:\n  - op: get\n    id: 1\nassertions:\n  - type: head_version\n    id: 1\n", want: "version is required"},
		{name: "record without expect", yaml: "name: x\nsteps:\n  - op: get\n    id: 1\nassertions:\n  - type: record\n    id: 1\n", want: "expect is required"},
		{name: "unknown assertion", yaml: "name: x\nsteps:\n  - op: get\n    id: 1\nassertions:\n  - type: final_state\n    id: 1\n", want: "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
