// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/auth/memory"
	"github.com/doorkeep/doorkeep/internal/auth/postgres"
	"github.com/doorkeep/doorkeep/internal/config"
	"github.com/doorkeep/doorkeep/internal/logging"
	"github.com/doorkeep/doorkeep/internal/observability"
	"github.com/doorkeep/doorkeep/internal/store"
	"github.com/doorkeep/doorkeep/internal/web"
	"github.com/doorkeep/doorkeep/pkg/errutil"
)

// serveFlags holds the flags that are not part of the config file.
type serveFlags struct {
	inMemory    bool
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication web server",
		Long: `Start the web server serving the login, signup, and protected home
pages, plus the observability endpoints, backed by PostgreSQL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, flags, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&flags.inMemory, "in-memory", false, "use in-memory storage instead of PostgreSQL (development only)")
	cmd.Flags().BoolVar(&flags.autoMigrate, "auto-migrate", false, "run pending database migrations before serving")

	return cmd
}

// defaultRepoFactory wires either the in-memory repositories or the
// pgx-backed ones, connecting with startup retry.
func defaultRepoFactory(ctx context.Context, cfg *config.Config, inMemory bool) (auth.UserRepository, auth.SessionRepository, func(), error) {
	if inMemory {
		return memory.NewUserRepository(), memory.NewSessionRepository(), nil, nil
	}

	if cfg.Database.URL == "" {
		return nil, nil, nil, oops.Code("CONFIG_INVALID").
			Errorf("database.url is required (set DATABASE_URL or use --in-memory)")
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, err
	}

	return postgres.NewUserRepository(pool), postgres.NewSessionRepository(pool), pool.Close, nil
}

// runServeWithDeps starts the serve command with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, flags *serveFlags, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.RepoFactory == nil {
		deps.RepoFactory = defaultRepoFactory
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(addr string, svc *auth.Service, opts web.Options) (WebServer, error) {
			return web.NewServer(addr, svc, opts)
		}
	}

	cfg, err := deps.ConfigLoader(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("doorkeep", version, cfg.Log.Format)
	logger := slog.Default()

	logger.Info("starting doorkeep", "config", cfg.String())

	if flags.autoMigrate && !flags.inMemory {
		if err := autoMigrate(deps, cfg.Database.URL); err != nil {
			return err
		}
	}

	users, sessions, cleanup, err := deps.RepoFactory(ctx, cfg, flags.inMemory)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	svc, err := auth.NewServiceWithLogger(users, sessions, auth.NewArgon2idHasher(), cfg.Session.TTL, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		// Ready once we reach this point: config validated, storage
		// connected, service wired.
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool { return true })
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	webServer, err := deps.WebServerFactory(cfg.Server.Addr, svc, web.Options{
		Metrics:       metrics,
		SecureCookies: cfg.Server.SecureCookies,
		Logger:        logger,
	})
	if err != nil {
		stopServer(obsServer, "observability", logger)
		return err
	}

	webErrChan, err := webServer.Start()
	if err != nil {
		stopServer(obsServer, "observability", logger)
		return oops.With("operation", "start web server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrChan, "web")

	// Janitor for expired sessions
	go runSessionSweeper(ctx, svc, metrics, cfg.Session.SweepInterval, logger)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Doorkeep started")
	logger.Info("doorkeep ready", "addr", webServer.Addr())

	// Wait for shutdown signal or server failure
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// autoMigrate runs all pending migrations before the server starts.
func autoMigrate(deps *ServeDeps, databaseURL string) error {
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database.url is required for --auto-migrate")
	}

	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}

	slog.Info("migrations applied")
	return nil
}

// runSessionSweeper periodically deletes expired sessions until the
// context is cancelled.
func runSessionSweeper(ctx context.Context, svc *auth.Service, metrics *observability.Metrics, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.SweepExpired(ctx)
			if err != nil {
				errutil.LogError(logger, "session sweep failed", err)
				continue
			}
			if metrics != nil && deleted > 0 {
				metrics.SessionsSwept.Add(float64(deleted))
			}
		}
	}
}

// stopServer stops a server with a short timeout, logging failures.
func stopServer(server ObservabilityServer, name string, logger *slog.Logger) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Warn("failed to stop server during cleanup", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// This ensures that server failures trigger graceful shutdown of the entire process.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
