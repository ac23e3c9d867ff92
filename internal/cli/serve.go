package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/annostore/internal/api"
)

// shutdownTimeout bounds how long in-flight requests may finish after a signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the annotation API over HTTP",
		Long: `Open the configured store and serve the annotation HTTP API.

Routes are scoped by dataset and kind in the URL, so one server handles
every dataset in the store. Prometheus metrics are served on /metrics.

Example:
  annostore serve --db ./annotations.db --listen :8080
  annostore serve --config ./annostore.cue --backend badger`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e, err := openEnv(opts.RootOptions, reg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := e.Close(); closeErr != nil {
			e.logger.Error("error closing store", "error", closeErr)
		}
	}()

	listen := e.cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	server := api.NewServer(e.engine, e.registry,
		api.WithLogger(e.logger),
		api.WithPrometheus(reg, reg),
	)
	srv := &http.Server{
		Addr:              listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	e.logger.Info("server starting", "listen", listen, "backend", e.cfg.Backend, "path", e.cfg.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving annotations on %s\n", listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
		e.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	e.logger.Info("server stopped gracefully")
	return nil
}
