package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/config"
	"github.com/roach88/annostore/internal/docstore"
	"github.com/roach88/annostore/internal/docstore/badgerstore"
	"github.com/roach88/annostore/internal/docstore/sqlitestore"
	"github.com/roach88/annostore/internal/metadata"
)

// env is everything a command needs to talk to one store.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    docstore.Store
	engine   *annotations.Engine
	registry *metadata.Registry
	scope    annotations.Scope
	closer   io.Closer
}

// Close releases the store.
func (e *env) Close() error {
	return e.closer.Close()
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Path = opts.Database
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// newLogger returns a text logger on stderr, at debug level when verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens the configured backend with max_query_values as its
// membership cap.
func openStore(cfg config.Config, logger *slog.Logger) (docstore.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		bc := badgerstore.DefaultConfig(cfg.Path)
		bc.SyncWrites = cfg.SyncWrites
		bc.MaxAttempts = cfg.MaxTxAttempts
		bc.MaxInValues = cfg.MaxQueryValues
		bc.Logger = logger
		st, err := badgerstore.Open(bc)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case config.BackendSQLite:
		st, err := sqlitestore.Open(cfg.Path,
			sqlitestore.WithMaxInValues(cfg.MaxQueryValues),
			sqlitestore.WithMaxAttempts(cfg.MaxTxAttempts),
			sqlitestore.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// openEnv loads config, opens the store and builds the engine. reg may be
// nil when no metrics are exported.
func openEnv(opts *RootOptions, reg prometheus.Registerer) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	scope := annotations.Scope{Dataset: opts.Dataset, Kind: opts.Kind}
	if err := scope.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid scope", err)
	}

	logger := newLogger(opts.Verbose)
	logger.Debug("opening store", "backend", cfg.Backend, "path", cfg.Path)
	st, closer, err := openStore(cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	registry := metadata.NewRegistry(st,
		metadata.WithTTL(cfg.TTL()),
		metadata.WithLogger(logger),
	)
	engineOpts := []annotations.Option{
		annotations.WithLogger(logger),
		annotations.WithDefaultIDField(cfg.IDField),
		annotations.WithMaxQueryValues(cfg.MaxQueryValues),
		annotations.WithFieldRecorder(registry),
	}
	if reg != nil {
		engineOpts = append(engineOpts, annotations.WithMetrics(annotations.NewMetrics(reg)))
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   annotations.New(st, engineOpts...),
		registry: registry,
		scope:    scope,
		closer:   closer,
	}, nil
}

// formatter returns the output formatter for cmd.
func formatter(opts *RootOptions, w, errW io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w, ErrWriter: errW, Verbose: opts.Verbose}
}
