// Package main is the entry point for the chargemap gateway.
//
// It loads configuration, wires the charge-site client (optionally behind the
// Redis cache), the map session manager (optionally persisted to PostgreSQL)
// and the HTTP chassis, then serves until SIGINT or SIGTERM.
package main

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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"chargemap/internal/api/handlers"
	"chargemap/internal/cache"
	"chargemap/internal/config"
	"chargemap/internal/core"
	"chargemap/internal/db"
	"chargemap/internal/external"
	"chargemap/internal/metrics"
	"chargemap/internal/session"
	"chargemap/internal/types"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("chargemap gateway starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"persistence", cfg.PersistenceEnabled(),
		"cache", cfg.CacheEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return serve(ctx, app, cfg, logger)
}

// app is the wired gateway.
type app struct {
	server  *core.Server
	manager *session.Manager
}

// buildApp connects the optional backends and assembles the server. Backends
// that fail to connect at startup are fatal; disabled ones are skipped.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	var (
		sessionObserver session.Observer
		cacheObserver   cache.Observer
	)
	if cfg.Metrics.Enabled {
		collector := metrics.New(cfg.Metrics.Namespace)
		srv.Metrics = collector
		srv.MetricsHandler = collector.Handler()
		sessionObserver = collector
		cacheObserver = collector
	}

	breaker := external.DefaultBreakerSettings()
	breaker.ConsecutiveFailures = cfg.ChargeSites.BreakerFailures
	base := external.NewBaseClient(&http.Client{}, "chargesites", breaker, cfg.ChargeSites.UserAgent)

	var fetcher session.Fetcher = external.NewChargeSiteClient(base, cfg.ChargeSites.APIURL, cfg.ChargeSites.FetchTimeout)

	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password.Unmask(),
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = srv.Shutdown(ctx)
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		fetcher = cache.NewSiteCache(rdb, fetcher, cfg.Redis.CacheTTL, cfg.ChargeSites.FetchTimeout, cacheObserver, logger)
		srv.HealthProbes = append(srv.HealthProbes, cache.NewProbe(rdb))
		srv.Closers = append(srv.Closers, rdb.Close)
		logger.Info("charge site cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	var repo session.Repository
	if cfg.PersistenceEnabled() {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			_ = srv.Shutdown(ctx)
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			_ = srv.Shutdown(ctx)
			return nil, err
		}
		repo = db.NewMapSessionRepository(pool)
		srv.HealthProbes = append(srv.HealthProbes, db.NewProbe(pool))
		srv.Closers = append(srv.Closers, func() error {
			pool.Close()
			return nil
		})
		logger.Info("map session persistence enabled")
	}

	manager := session.NewManager(session.ManagerConfig{
		InitialCenter: types.LatLng{Lat: cfg.Map.InitialLatitude, Lng: cfg.Map.InitialLongitude},
		InitialZoom:   cfg.Map.InitialZoom,
		CloseDelay:    cfg.Session.PopupCloseDelay,
		IdleTimeout:   cfg.Session.IdleTimeout,
	}, fetcher, repo, sessionObserver, logger)

	sessionHandler := handlers.NewSessionHandler(manager, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, sessionHandler.RegisterRoutes)
	srv.MountRoutes()

	return &app{server: srv, manager: manager}, nil
}

// serve runs the HTTP server and the idle-session sweeper until ctx ends or
// either fails, then shuts both down.
func serve(ctx context.Context, a *app, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.manager.Run(gctx, cfg.Session.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		a.manager.Shutdown()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
