// Package config loads annostore configuration from CUE files.
//
// A file is unified with the embedded #Config schema, which supplies
// defaults and rejects unknown fields and out-of-range values.
//
//	backend: "badger"
//	path:    "/var/lib/annostore"
//	max_query_values: 30
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the decoded configuration.
type Config struct {
	Backend        string `json:"backend"`
	Path           string `json:"path"`
	Listen         string `json:"listen"`
	IDField        string `json:"id_field"`
	MaxQueryValues int    `json:"max_query_values"`
	MaxTxAttempts  int    `json:"max_tx_attempts"`
	MetadataTTL    string `json:"metadata_ttl"`
	SyncWrites     bool   `json:"sync_writes"`
}

// Default returns the schema defaults.
func Default() (Config, error) {
	return Parse(nil, "defaults.cue")
}

// Load reads and validates the CUE file at path. An empty path yields
// the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates CUE source against the schema and decodes it.
func Parse(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()
	def, err := schema(ctx)
	if err != nil {
		return Config{}, err
	}

	user := ctx.CompileBytes(data, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %s", filename, errors.Details(err, nil))
	}

	return decode(def.Unify(user), filename)
}

// Validate checks c against the schema. It is used after command-line
// flags have overridden file values.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	def, err := schema(ctx)
	if err != nil {
		return err
	}
	_, err = decode(def.Unify(ctx.Encode(c)), "config")
	return err
}

// TTL returns MetadataTTL as a duration.
func (c Config) TTL() time.Duration {
	d, err := time.ParseDuration(c.MetadataTTL)
	if err != nil {
		return 0
	}
	return d
}

func schema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Config")), nil
}

func decode(v cue.Value, filename string) (Config, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %s", filename, errors.Details(err, nil))
	}
	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", filename, err)
	}
	if cfg.TTL() <= 0 {
		return Config{}, fmt.Errorf("invalid %s: metadata_ttl %q is not a positive duration", filename, cfg.MetadataTTL)
	}
	return cfg, nil
}
