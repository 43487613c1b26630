// Package server initializes and runs the task service: configuration,
// storage backends, the real-time hub, and the HTTP server, with graceful
// shutdown on termination signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/config"
	"github.com/bashaMendi/ToDo-back/internal/server/csrf"
	"github.com/bashaMendi/ToDo-back/internal/server/events"
	"github.com/bashaMendi/ToDo-back/internal/server/httpapi"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/querycache"
	"github.com/bashaMendi/ToDo-back/internal/server/ratelimit"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/repomanager"
	"github.com/bashaMendi/ToDo-back/internal/server/services"
	"github.com/bashaMendi/ToDo-back/internal/server/sessions"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   kvstore.Store
	hub     *events.Hub
	handler http.Handler
	closeDB func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	store, err := selectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := repomanager.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	sm := sessions.NewManager(store, cfg.SessionDuration)
	guard := csrf.NewGuard(store, cfg.CSRFTokenDuration)
	limiter := ratelimit.NewLimiter(store, cfg.RateLimitStrict, logger)
	cache := querycache.NewCache(store, cfg.QueryCacheTTL, logger)
	hub := events.NewHub(sm.Get, logger)

	userService := services.NewUserService(db, repos, sm, guard, store, cfg, logger)
	taskService := services.NewTaskService(db, repos, cache, store, hub, cfg, logger)

	api := httpapi.NewServer(cfg, logger, userService, taskService, sm, guard, limiter, hub)

	return &App{
		config:  cfg,
		logger:  logger,
		store:   store,
		hub:     hub,
		handler: api.Handler(),
		closeDB: db.Close,
	}, nil
}

// selectStore picks the ephemeral-store backend once at startup. Redis in
// required mode fails fatally when unreachable; otherwise the process-local
// fallback is used with a warning.
func selectStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (kvstore.Store, error) {
	if cfg.RedisEnabled {
		store, err := kvstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			logger.Info(ctx, "using redis ephemeral store", "addr", cfg.RedisAddr)
			return store, nil
		}
		if cfg.RedisRequired {
			return nil, fmt.Errorf("redis required but unreachable: %w", err)
		}
		logger.Warn(ctx, "redis unreachable, using in-process store", "addr", cfg.RedisAddr, "error", err)
	}
	return kvstore.NewMemoryStore(cfg.SweepInterval), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP until the context is cancelled, then drains in-flight
// requests, shuts the hub down, and closes the stores.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddrHTTP)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, "http server failed", "error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
	}
	app.hub.Shutdown(shutdownCtx)
	if err := app.closeDB(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error(shutdownCtx, "store close error", "error", err)
	}
	app.logger.Info(shutdownCtx, "server stopped")
}
