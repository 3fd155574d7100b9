// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/inkwell/inkwell/internal/auth/postgres"
	"github.com/inkwell/inkwell/internal/observability"
	"github.com/inkwell/inkwell/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg store.PoolConfig) (Database, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// AutoMigrateGetter reports whether migrations run on startup.
	// Default: parseAutoMigrate
	AutoMigrateGetter func() bool

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Environment replaces the process environment for configuration.
	// Default: nil (process environment)
	Environment map[string]string

	// LogOutput receives process logs.
	// Default: os.Stderr
	LogOutput io.Writer

	// Ready is called with the API address once requests are being served.
	Ready func(apiAddr string)
}

// Database is the subset of *pgxpool.Pool used by serve.
type Database interface {
	postgres.Pool
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator applies pending migrations on startup.
type AutoMigrator interface {
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
