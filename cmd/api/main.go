package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/analytics-dashboard/api/routes"
	"github.com/angelmondragon/analytics-dashboard/internal/analyticsapi"
	"github.com/angelmondragon/analytics-dashboard/internal/metadata"
	"github.com/angelmondragon/analytics-dashboard/internal/orchestrator"
	"github.com/angelmondragon/analytics-dashboard/internal/settings"
	"github.com/angelmondragon/analytics-dashboard/internal/widgets"
	"github.com/angelmondragon/analytics-dashboard/pkg/config"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/metrics"
	"github.com/angelmondragon/analytics-dashboard/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "dashboard-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "dashboard-api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(runCtx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := analyticsapi.NewClient(cfg.AnalyticsAPI.BaseURL, analyticsapi.WithTimeout(cfg.AnalyticsAPI.HTTPTimeout))
	if err != nil {
		return err
	}

	// Interfaces stay nil rather than holding a nil *redis.Client when the
	// cache is disabled.
	var (
		store  redis.JSONStore
		pinger redis.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient, dialErr := redis.New(ctx, cfg.Redis, logg)
		if dialErr != nil {
			return dialErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		store, pinger = redisClient, redisClient
	} else {
		logg.Info(ctx, "redis disabled; metadata and settings are kept in memory")
	}

	dates := settings.NewService(store, logg)
	if err := dates.Restore(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "could not restore date range; starting unset")
	}

	meta := metadata.NewService(client, store, cfg.Metadata.CacheTTL, logg)
	widgetSvc, err := widgets.NewService(client, orchestrator.Options{
		MaxAttempts:    cfg.Query.MaxAttempts,
		BackoffStep:    cfg.Query.BackoffStep,
		AttemptTimeout: cfg.Query.AttemptTimeout,
		Metrics:        metrics.NewQueryMetrics(reg),
	}, dates, meta, logg)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":           cfg.App.Env,
		"addr":          addr,
		"analytics_api": cfg.AnalyticsAPI.BaseURL,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			Cache:       pinger,
			HTTPMetrics: metrics.NewHTTPMetrics(reg),
			Gatherer:    reg,
			Settings:    dates,
			Metadata:    meta,
			Widgets:     widgetSvc,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
