package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/database"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/server"
	"github.com/nao1215/linkforensics/internal/session"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the capture and query HTTP API",
		Long: `Serve starts the HTTP API that landing pages post capability snapshots to.

Endpoints:
  POST /v1/links/{linkID}/access?audit=ID   capture an access (body: snapshot)
  GET  /v1/links/{linkID}/records           accesses through a link
  GET  /v1/access/{accessID}                one record
  POST /v1/access/{accessID}/events         focus or blur event
  POST /v1/access/{accessID}/visibility     page visibility change
  POST /v1/access/{accessID}/download       mark downloaded
  POST /v1/access/{accessID}/unload         flush and close the session
  GET  /v1/audits/{auditID}/records         accesses to a resource
  GET  /v1/audits/{auditID}/stats           access statistics
  GET  /healthz                             liveness
  GET  /metrics                             Prometheus metrics

Session events are buffered per access and flushed every
--checkpoint-interval. The data file is watched and its VPN networks,
timezones and beacons are reloaded when it changes.

Examples:
  linkforensics serve
  linkforensics serve --listen :8080 --db-driver postgres --postgres-dsn postgres://...`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("listen", config.DefaultListenAddress, "Address of the HTTP API")
	cmd.Flags().Duration("checkpoint-interval", config.DefaultCheckpointInterval, "How often buffered session events are flushed")
	cmd.Flags().Duration("session-idle-timeout", config.DefaultSessionIdleTimeout, "Close sessions that received no event for this long")
	cmd.Flags().Bool("no-watch", false, "Do not reload the data file when it changes")
	addTimeoutFlags(cmd)

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyTimeoutFlags(cmd, cfg); err != nil {
		return err
	}

	cfg.ListenAddress, err = cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}
	cfg.CheckpointInterval, err = cmd.Flags().GetDuration("checkpoint-interval")
	if err != nil {
		return err
	}
	cfg.SessionIdleTimeout, err = cmd.Flags().GetDuration("session-idle-timeout")
	if err != nil {
		return err
	}
	noWatch, err := cmd.Flags().GetBool("no-watch")
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)

	// Setup context with signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := openCaptureStore(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	// Without persistence the API still captures; queries answer 503.
	var captureStore database.Store
	if cfg.DBDriver != config.DBDriverNone {
		captureStore = store
	}

	eng, err := newEngine(ctx, cfg, captureStore, m, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close lookup cache", "error", err)
		}
	}()

	if !noWatch && cfg.ConfigFilePath != "" {
		if err := config.Watch(ctx, cfg.ConfigFilePath, eng.live.Store, logger); err != nil {
			logger.Warn("config file will not be reloaded", "path", cfg.ConfigFilePath, "error", err)
		}
	}

	registry := session.NewRegistry(store, m,
		session.WithCheckpointInterval(cfg.CheckpointInterval),
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithLogger(logger),
	)
	srv := server.New(eng.assembler, store, registry,
		server.WithLogger(logger),
		server.WithMetrics(m),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (database: %s)\n", cfg.ListenAddress, cfg.DBDriver)
	return srv.ListenAndServe(ctx, cfg.ListenAddress)
}
