package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/record"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"result": "success"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "get 7: not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "get 7: not found", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Error("INVALID_VERSION", "tag \"x\"", map[string]string{"id": "7"}))
	assert.Contains(t, buf.String(), "Error [INVALID_VERSION]")
	assert.NotContains(t, buf.String(), "Details:")

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("INVALID_VERSION", "tag \"x\"", map[string]string{"id": "7"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Records(t *testing.T) {
	recs := []record.Record{
		{"bodyid": int64(7), "status": "Traced"},
		{"bodyid": int64(8)},
	}

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Records(recs))
	assert.Equal(t, "{\"bodyid\":7,\"status\":\"Traced\"}\n{\"bodyid\":8}\n", buf.String())

	buf.Reset()
	formatter.Format = "json"
	require.NoError(t, formatter.Records(nil))
	assert.JSONEq(t, `{"status":"ok","data":[]}`, buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("wrote %d annotation(s)", 3)

			assert.Empty(t, buf.String())
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "wrote 3 annotation(s)")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "inner", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: inner: cause", wrapped.Error())
}

func TestEngineExitError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{annotations.ErrInvalidVersion, ExitCommandError},
		{annotations.ErrTooManyQueryValues, ExitCommandError},
		{annotations.ErrNotFound, ExitFailure},
		{annotations.ErrWriteConflict, ExitFailure},
		{errors.New("disk full"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			err := engineExitError("op failed", tt.err)
			assert.Equal(t, tt.want, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
