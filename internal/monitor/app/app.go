package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/vrcwatch/internal/monitor/http"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/hub"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/service"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/sessioncache"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/vrchat"
	"github.com/aussiebroadwan/vrcwatch/pkg/slogx"
)

// Build stamps, set at build time via ldflags.
var (
	BuildVersion = "v0.1.0"
	BuildTime    = "unknown"
)

// Application encapsulates the monitor with all its dependencies.
type Application struct {
	cfg       Config
	watchlist Watchlist
	logger    *slog.Logger

	// Monitoring core
	client      *vrchat.Client
	store       *service.StateStore
	authManager *service.AuthManager
	poller      *service.Poller
	hub         *hub.Hub

	// HTTP server
	server *http.Server
	router *httpapi.Router

	pollCtx    context.Context
	pollCancel context.CancelFunc

	// Closed by the hub when a dashboard client requests shutdown.
	remoteShutdown chan struct{}
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service:   "vrcwatch",
			Version:   BuildVersion,
			Env:       cfg.Env,
			Level:     cfg.LogLevel,
			Format:    cfg.LogFormat,
			ErrorFile: cfg.LogErrorFile,
		}),
		remoteShutdown: make(chan struct{}),
	}

	watchlist, err := LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		return nil, err
	}
	if len(watchlist.Accounts) == 0 {
		return nil, fmt.Errorf("watchlist %s has no accounts", cfg.WatchlistFile)
	}
	app.watchlist = watchlist

	app.pollCtx, app.pollCancel = context.WithCancel(context.Background())

	app.initMonitor()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("monitor starting",
		"port", app.cfg.Port, "version", BuildVersion, "accounts", len(app.watchlist.Accounts))

	// Adopt a cached session or auto-login in the background so a slow
	// upstream never delays serving the dashboard.
	go app.bootstrapSession(app.pollCtx)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	case <-app.remoteShutdown:
		app.logger.Warn("remote shutdown requested by dashboard client")
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops polling, notifies clients and drains the server.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down monitor...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Cancelling the poll context releases any call stuck in retry backoff
	// so Stop does not hold up process exit.
	app.pollCancel()
	app.poller.Stop()

	app.hub.Shutdown("server is shutting down")

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.logger.Info("monitor stopped")
	return nil
}

// initMonitor wires the polling core: client, store, auth manager, poller
// and broadcast hub.
func (app *Application) initMonitor() {
	app.store = service.NewStateStore()
	app.client = vrchat.NewClient(app.logger)

	app.authManager = service.NewAuthManager(app.client, app.store, app.logger)
	app.authManager.TOTPSecret = app.watchlist.TOTPSecret
	app.authManager.PollContext = app.pollCtx
	if app.watchlist.CacheSession {
		app.authManager.Cache = sessioncache.New(app.cfg.SessionCacheFile)
		app.logger.Info("session caching enabled", "path", app.cfg.SessionCacheFile)
	}

	app.poller = service.NewPoller(
		app.watchlist.Accounts,
		app.authManager.PollAccount,
		app.authManager.HasActiveSession,
		app.logger,
	)
	app.authManager.Poller = app.poller

	app.hub = hub.New(app.watchlist.Accounts, app.store, app.authManager.Status, app.logger)
	app.hub.OnShutdown = func() { close(app.remoteShutdown) }

	app.authManager.Broadcast = app.hub
	app.client.LogSink = app.hub
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, BuildTime, app.logger)
	router.AuthManager = app.authManager
	router.Hub = app.hub
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// bootstrapSession tries a cached session first, then the configured
// credentials. Both are optional; without either the operator logs in
// through the dashboard.
func (app *Application) bootstrapSession(ctx context.Context) {
	if app.authManager.Cache != nil {
		session, ok, err := app.authManager.Cache.Load()
		if err != nil {
			app.logger.Warn("session cache unreadable", "err", err)
		} else if ok {
			if app.authManager.RestoreSession(ctx, session) {
				return
			}
		}
	}

	if app.cfg.Username != "" && app.cfg.Password != "" {
		app.logger.Info("attempting automatic login")
		result := app.authManager.Login(ctx, app.cfg.Username, app.cfg.Password)
		if result.State != service.StateAuthenticated {
			app.logger.Warn("automatic login did not authenticate",
				"code", result.Code, "state", result.State)
		}
	}
}
