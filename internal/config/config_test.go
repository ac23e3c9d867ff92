package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, Config{
		Backend:        BackendSQLite,
		Path:           "annostore.db",
		Listen:         ":8080",
		IDField:        "bodyid",
		MaxQueryValues: 10,
		MaxTxAttempts:  5,
		MetadataTTL:    "120s",
		SyncWrites:     false,
	}, cfg)
	assert.Equal(t, 120*time.Second, cfg.TTL())
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annostore.cue")
	src := `
backend:          "badger"
path:             "/var/lib/annostore"
max_query_values: 30
metadata_ttl:     "1m30s"
sync_writes:      true
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, "/var/lib/annostore", cfg.Path)
	assert.Equal(t, 30, cfg.MaxQueryValues)
	assert.Equal(t, 90*time.Second, cfg.TTL())
	assert.True(t, cfg.SyncWrites)
	assert.Equal(t, "bodyid", cfg.IDField, "unset fields keep defaults")
	assert.Equal(t, 5, cfg.MaxTxAttempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unknown backend", src: `backend: "postgres"`},
		{name: "cap too high", src: `max_query_values: 31`},
		{name: "cap zero", src: `max_query_values: 0`},
		{name: "reserved id field", src: `id_field: "_version"`},
		{name: "quoted id field", src: `id_field: "body\"id"`},
		{name: "empty path", src: `path: ""`},
		{name: "bad duration", src: `metadata_ttl: "two minutes"`},
		{name: "zero duration", src: `metadata_ttl: "0s"`},
		{name: "unknown field", src: `listen_addr: ":9090"`},
		{name: "wrong type", src: `sync_writes: "yes"`},
		{name: "syntax", src: `backend: `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "test.cue")
			assert.Error(t, err)
		})
	}
}

func TestValidate_AfterOverride(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cfg.Backend = BackendBadger
	cfg.Path = t.TempDir()
	assert.NoError(t, cfg.Validate())

	cfg.Backend = "mongo"
	assert.Error(t, cfg.Validate())

	cfg.Backend = BackendSQLite
	cfg.MaxQueryValues = 100
	assert.Error(t, cfg.Validate())
}
