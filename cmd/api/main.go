// Copyright (c) 2026 Sigma. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Sigma gateway server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load bootstrap configuration from environment variables.
//  3. Select the SQL dialect and connect to the database.
//  4. Bootstrap the documents schema (idempotent).
//  5. Connect to the configuration tree (ZooKeeper or in-memory bootstrap).
//  6. Start the enum catalog loader (with optional Redis warm-start).
//  7. Materialize the endpoint registry and arm the config watch.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/taibuivan/sigma/internal/api"
	"github.com/taibuivan/sigma/internal/configstore"
	"github.com/taibuivan/sigma/internal/dialect"
	"github.com/taibuivan/sigma/internal/endpoint"
	"github.com/taibuivan/sigma/internal/gateway"
	"github.com/taibuivan/sigma/internal/platform/config"
	"github.com/taibuivan/sigma/internal/platform/constants"
	redisstore "github.com/taibuivan/sigma/internal/platform/redis"
	"github.com/taibuivan/sigma/internal/platform/sqldb"
	"github.com/taibuivan/sigma/internal/repository"
	"github.com/taibuivan/sigma/internal/schema"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Sigma] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	// Development environments always log at debug level.
	if cfg.Debug || cfg.IsDevelopment() {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("service_root", cfg.ServiceRoot()),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Application context: cancellation stops watches, the enum refresher, and
	// the rate limiter cleanup on shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. Database ───────────────────────────────────────────────────────
	dialectName := cfg.DatabaseType
	if dialectName == "" {
		dialectName = dialect.Infer(cfg.DatabaseURL)
	}
	d, err := dialect.New(dialectName)
	must(log, err, "select sql dialect")

	db, err := sqldb.Open(startupCtx, d, cfg.DatabaseURL, log)
	must(log, err, "connect to database")
	defer func() {
		log.Info("closing database pool")
		_ = db.Close()
	}()

	// ── 4. Schema Bootstrap ───────────────────────────────────────────────
	must(log, sqldb.Bootstrap(startupCtx, db, d, log), "bootstrap documents schema")

	// ── 5. Configuration Tree ─────────────────────────────────────────────
	store, err := openConfigStore(startupCtx, cfg, log)
	must(log, err, "connect to configuration tree")
	defer func() {
		log.Info("closing configuration store")
		_ = store.Close()
	}()

	// ── 6. Enum Catalog ───────────────────────────────────────────────────
	var cache *goredis.Client
	if cfg.RedisURL != "" {
		cache, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			_ = cache.Close()
		}()
	}

	enumCfg, err := loadEnumConfig(startupCtx, store, cfg)
	must(log, err, "read enum globals")

	enums := schema.NewEnums(enumCfg, cache, log)
	must(log, enums.Start(appCtx), "start enum catalog loader")

	schemas := schema.NewManager(enums, log)

	// ── 7. Endpoint Registry ──────────────────────────────────────────────
	registry := endpoint.NewRegistry(log)

	reload := func(ctx context.Context) error {
		snapshot, err := store.ReadSubtree(ctx, cfg.ServiceRoot())
		if err != nil {
			return err
		}
		schemas.SetSources(registry.Rebuild(snapshot, cfg.ServiceRoot()))
		return nil
	}
	must(log, reload(startupCtx), "materialize endpoint registry")

	// Config changes arrive as individual node events; coalesce bursts into
	// one rebuild.
	reloadSignal := make(chan struct{}, 1)
	must(log, store.Watch(appCtx, cfg.ServiceRoot(), func(ev configstore.Event) {
		log.Info("configuration_changed",
			slog.String("type", ev.Type.String()),
			slog.String("path", ev.Path))
		select {
		case reloadSignal <- struct{}{}:
		default:
		}
	}), "arm configuration watch")

	go func() {
		for {
			select {
			case <-appCtx.Done():
				return
			case <-reloadSignal:
				time.Sleep(200 * time.Millisecond)
				if err := reload(appCtx); err != nil {
					log.Error("configuration reload failed", slog.Any("error", err))
				}
			}
		}
	}()

	// ── 8. Gateway Wiring ─────────────────────────────────────────────────
	repo := repository.NewSQLStore(db, d, log)
	gatewayService := gateway.NewService(registry, repo, schemas, d, log)

	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return sqldb.Ping(context.Background(), db)
		},
		CheckConfigStore: func() error {
			_, err := store.Exists(context.Background(), cfg.ServiceRoot())
			return err
		},
		EndpointCount: registry.Count,
	}, log)

	server := api.NewServer(appCtx, cfg, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Gateway:   gatewayService.Handler(),
	})

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	appCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// openConfigStore selects the configuration tree implementation: ZooKeeper in
// production, the in-memory bootstrap store for local development.
func openConfigStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (configstore.Store, error) {
	if cfg.ZookeeperURL != "" {
		return configstore.NewZKStore(ctx, cfg.ZookeeperURL, log)
	}
	if cfg.ConfigBootstrap != "" {
		log.Info("using in-memory configuration store",
			slog.String("bootstrap_file", cfg.ConfigBootstrap))
		return configstore.NewMemStoreFromFile(cfg.ConfigBootstrap)
	}
	log.Warn("no ZOOKEEPER_URL or CONFIG_BOOTSTRAP set, starting with an empty configuration tree")
	return configstore.NewMemStore(), nil
}

// loadEnumConfig reads the enum wiring: the service URL from the dataSource
// subtree, the refresh policy from Globals.
func loadEnumConfig(ctx context.Context, store configstore.Store, cfg *config.Config) (schema.EnumConfig, error) {
	dataSource, err := store.ReadSubtree(ctx, cfg.DataSourceRoot())
	if err != nil {
		return schema.EnumConfig{}, err
	}
	globals, err := store.ReadSubtree(ctx, cfg.GlobalsRoot())
	if err != nil {
		return schema.EnumConfig{}, err
	}

	globalsRoot := cfg.GlobalsRoot()
	enumCfg := schema.EnumConfig{
		URL:        dataSource.GetOr(cfg.DataSourceRoot()+"/"+constants.NodeEnumURL, ""),
		FailOnLoad: globals.GetOr(globalsRoot+"/"+constants.NodeFailOnEnumLoad, "false") == "true",
	}
	if raw := globals.GetOr(globalsRoot+"/"+constants.NodeEnumRefreshInterval, ""); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err == nil && seconds > 0 {
			enumCfg.RefreshInterval = time.Duration(seconds) * time.Second
		}
	}
	return enumCfg, nil
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
