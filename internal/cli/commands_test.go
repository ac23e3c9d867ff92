package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and stdin and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_VersionedLifecycle(t *testing.T) {
	db := filepath.Join(t.TempDir(), "annostore.db")
	base := []string{"--db", db, "--dataset", "hemibrain"}
	run := func(stdin string, args ...string) (string, error) {
		return execute(t, stdin, append(append([]string{}, base...), args...)...)
	}

	out, err := run(`{"bodyid": 7, "status": "Traced"}`, "put", "--version", "v0.2.0", "--user", "alice", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "v0.2.0 (id7)")

	out, err = run(`[{"bodyid": 7, "status": "Orphan"}, {"bodyid": 8, "status": "Orphan"}]`, "put", "--version", "v0.1.0", "-")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "archive"))
	assert.True(t, strings.HasPrefix(lines[1], "create"))

	out, err = run("", "get", "7", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string           `json:"status"`
		Data   []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Traced", resp.Data[0]["status"])
	assert.Equal(t, "alice", resp.Data[0]["_user"])
	assert.NotContains(t, resp.Data[0], "_archived_keys")

	out, err = run("", "get", "7", "--version", "v0.1.0")
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"Orphan"`)

	out, err = run("", "changes", "7")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"_version":2000`)
	assert.Contains(t, lines[1], `"_version":1000`)

	out, err = run(`{"status": "Traced"}`, "query", "--onlyid", "-")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	out, err = run(`[{"status": "Traced"}, {"bodyid": [8, 7]}]`, "query", "--onlyid", "--format", "json", "-")
	require.NoError(t, err)
	var ids struct {
		Data []int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []int64{7, 8}, ids.Data)

	out, err = run("", "delete", "7")
	require.NoError(t, err)
	assert.Equal(t, "deleted 7 (2 documents)\n", out)

	_, err = run("", "get", "7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCommands_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "annostore.db")

	out, err := execute(t, `{"status": "Traced"}`, "--db", db, "--format", "json", "put", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MISSING_ID_FIELD", resp.Error.Code)

	_, err = execute(t, `not json`, "--db", db, "put", "-")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, `{"bodyid": 1}`, "--db", db, "put", "--version", "v1.x", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_VERSION")

	_, err = execute(t, "", "--db", db, "get", "1,,2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "", "--db", db, "delete", "1,2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete takes one id")

	_, err = execute(t, "", "--db", db, "--backend", "postgres", "get", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid config")

	_, err = execute(t, "", "--db", db, "--dataset", "a/b", "get", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scope")
}

func TestCommands_PartialListWrite(t *testing.T) {
	db := filepath.Join(t.TempDir(), "annostore.db")

	out, err := execute(t, `[{"bodyid": 1}, {"bodyid": 2, "_user": "x"}, {"bodyid": 3}]`, "--db", db, "put", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write failed after 1 of 3")
	assert.Contains(t, out, "create")

	out, err = execute(t, `{"bodyid": [1, 2, 3]}`, "--db", db, "query", "--onlyid", "-")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestCommands_BadgerBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	base := []string{"--backend", "badger", "--db", dir, "--kind", "synapses"}

	_, err := execute(t, `{"bodyid": "abc", "weight": 3}`, append(base, "put", "--version", "v1.0.0", "-")...)
	require.NoError(t, err)

	out, err := execute(t, "", append(base, "get", "abc")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"weight":3`)
}

func TestCommands_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeScenario(t, dir, "annostore.cue", `
path: "`+filepath.ToSlash(filepath.Join(dir, "cfg.db"))+`"
id_field: "name"
`)

	_, err := execute(t, `{"name": "ring", "size": 2}`, "--config", cfgPath, "put", "-")
	require.NoError(t, err)

	out, err := execute(t, "", "--config", cfgPath, "get", "ring")
	require.NoError(t, err)
	assert.Contains(t, out, `"size":2`)
}

func TestCommands_MaxQueryValuesRaisesStoreCap(t *testing.T) {
	values := make([]string, 15)
	for i := range values {
		values[i] = `"s` + string(rune('a'+i)) + `"`
	}
	where := `{"status": [` + strings.Join(values, ",") + `]}`

	for _, backend := range []string{"sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			db := filepath.Join(dir, "store")

			_, err := execute(t, `{"bodyid": 1, "status": "sc"}`, "--backend", backend, "--db", db, "put", "-")
			require.NoError(t, err)

			_, err = execute(t, where, "--backend", backend, "--db", db, "query", "--onlyid", "-")
			require.Error(t, err, "the default cap is 10")
			assert.Contains(t, err.Error(), "TOO_MANY_QUERY_VALUES")

			cfgPath := writeScenario(t, dir, "annostore.cue", "max_query_values: 15\n")
			out, err := execute(t, where, "--config", cfgPath, "--backend", backend, "--db", db, "query", "--onlyid", "-")
			require.NoError(t, err)
			assert.Equal(t, "1\n", out)
		})
	}
}
