// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/inkwell/inkwell/internal/auth"
	"github.com/inkwell/inkwell/internal/auth/memstore"
	"github.com/inkwell/inkwell/internal/auth/postgres"
	"github.com/inkwell/inkwell/internal/config"
	"github.com/inkwell/inkwell/internal/httpapi"
	"github.com/inkwell/inkwell/internal/logging"
	"github.com/inkwell/inkwell/internal/mail"
	"github.com/inkwell/inkwell/internal/observability"
	"github.com/inkwell/inkwell/internal/store"
)

const (
	serviceName        = "inkwell"
	autoMigrateEnvVar  = "INKWELL_DB_AUTO_MIGRATE"
	stopTimeoutMetrics = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the identity HTTP API, the metrics/health server and the
background purge of expired reset codes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// repositories groups the persistence selected by store.driver.
type repositories struct {
	identities auth.IdentityRepository
	otps       auth.OtpRepository
	pinger     httpapi.Pinger
	close      func()
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = withServeDefaults(deps)

	cfg, err := config.Load(config.LoadOptions{
		File:        configFile,
		Flags:       cmd.Flags(),
		Environment: deps.Environment,
	})
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return oops.With("operation", "parse log level").Wrap(err)
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, deps.LogOutput)
	slog.SetDefault(logger)

	logger.Info("starting inkwell",
		"http_addr", cfg.HTTP.Addr,
		"store_driver", cfg.Store.Driver,
		"mail_driver", cfg.Mail.Driver,
	)

	repos, err := openRepositories(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer repos.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, logger)
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.With("operation", "start observability server").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metrics = obsServer.Metrics()
	}
	defer func() {
		if obsServer == nil {
			return
		}
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeoutMetrics)
		defer stopCancel()
		if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
			logger.Warn("error stopping observability server", "error", stopErr)
		}
	}()

	otps, err := auth.NewOtpStore(repos.otps, cfg.OtpStoreConfig())
	if err != nil {
		return err
	}
	gateway, err := buildGateway(cfg, repos, otps, metrics, logger)
	if err != nil {
		return err
	}

	apiOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if repos.pinger != nil {
		apiOpts = append(apiOpts, httpapi.WithPinger(repos.pinger))
	}
	api, err := httpapi.New(gateway, apiOpts...)
	if err != nil {
		return err
	}

	httpServer := httpapi.NewServer(cfg.HTTP.Addr, api.Handler(), logger)
	httpErrCh, err := httpServer.Start()
	if err != nil {
		return oops.With("operation", "start http server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrCh, "http", logger)

	var recorder purgeRecorder
	if metrics != nil {
		recorder = metrics
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runPurgeLoop(ctx, otps, cfg.Otp.PurgeInterval, recorder, logger)
	}()

	ready.Store(true)
	logger.Info("inkwell ready", "http_addr", httpServer.Addr())
	if deps.Ready != nil {
		deps.Ready(httpServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stopCancel()
	if err := httpServer.Stop(stopCtx); err != nil {
		logger.Warn("error stopping http server", "error", err)
	}
	wg.Wait()

	logger.Info("shutdown complete")
	return nil
}

func withServeDefaults(deps *ServeDeps) *ServeDeps {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = func(ctx context.Context, cfg store.PoolConfig) (Database, error) {
			pool, err := store.Connect(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if deps.AutoMigrateGetter == nil {
		deps.AutoMigrateGetter = parseAutoMigrate
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if deps.LogOutput == nil {
		deps.LogOutput = os.Stderr
	}
	return deps
}

func openRepositories(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (*repositories, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		mem := memstore.New()
		return &repositories{
			identities: mem.Identities(),
			otps:       mem.Otps(),
			close:      func() {},
		}, nil
	}

	if deps.AutoMigrateGetter() {
		if err := runAutoMigration(cfg.Store.DatabaseURL, deps.MigratorFactory); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	pool, err := deps.PoolFactory(ctx, store.PoolConfig{
		DatabaseURL: cfg.Store.DatabaseURL,
		MaxConns:    cfg.Store.MaxConns,
		Logger:      logger,
	})
	if err != nil {
		return nil, oops.With("operation", "connect to database").Wrap(err)
	}
	return &repositories{
		identities: postgres.NewIdentityRepository(pool),
		otps:       postgres.NewOtpRepository(pool),
		pinger:     pool,
		close:      pool.Close,
	}, nil
}

func buildGateway(cfg *config.Config, repos *repositories, otps *auth.OtpStore, metrics *observability.Metrics, logger *slog.Logger) (*auth.Gateway, error) {
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(cfg.TokenIssuerConfig())
	if err != nil {
		return nil, err
	}
	sender, err := newMailSender(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []auth.GatewayOption{auth.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, auth.WithRecorder(metrics))
	}
	return auth.NewGateway(repos.identities, otps, hasher, tokens, sender, opts...)
}

func newMailSender(cfg *config.Config, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Mail.Driver == config.MailDriverLog {
		logger.Warn("reset mail delivery disabled; codes are not sent")
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewHTTPSender(mail.HTTPConfig{
		Endpoint:    cfg.Mail.Endpoint,
		APIToken:    cfg.Mail.APIToken,
		SenderEmail: cfg.Mail.SenderEmail,
		SenderName:  cfg.Mail.SenderName,
		CodeWindow:  cfg.Otp.Window,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return sender, nil
}

// parseAutoMigrate reads INKWELL_DB_AUTO_MIGRATE. Unset or unparseable
// values enable migrations on startup.
func parseAutoMigrate() bool {
	raw := os.Getenv(autoMigrateEnvVar)
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		slog.Warn("invalid auto-migrate value, defaulting to enabled",
			"env", autoMigrateEnvVar,
			"value", raw,
		)
		return true
	}
	return enabled
}

// runAutoMigration applies pending migrations and releases the migrator.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").With("operation", "auto-migrate").Wrap(err)
	}
	return nil
}

// monitorServerErrors cancels the process context when a server fails.
// It exits when an error is received, the channel closes, or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
