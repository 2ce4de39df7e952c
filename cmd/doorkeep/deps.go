package main

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/config"
	"github.com/doorkeep/doorkeep/internal/observability"
	"github.com/doorkeep/doorkeep/internal/web"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader loads the layered configuration.
	// Default: config.Load
	ConfigLoader func(path string, fs *pflag.FlagSet) (*config.Config, error)

	// RepoFactory builds the user and session repositories. The cleanup
	// function (may be nil) releases backing resources on shutdown.
	// Default: memory repositories or a pgx pool depending on inMemory.
	RepoFactory func(ctx context.Context, cfg *config.Config, inMemory bool) (auth.UserRepository, auth.SessionRepository, func(), error)

	// MigratorFactory creates a migrator for --auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// WebServerFactory creates the browser-facing server.
	// Default: web.NewServer
	WebServerFactory func(addr string, svc *auth.Service, opts web.Options) (WebServer, error)
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// WebServer interface wraps the methods used from web.Server.
type WebServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
