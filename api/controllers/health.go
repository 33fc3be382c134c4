package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/analytics-dashboard/api/responses"
	"github.com/angelmondragon/analytics-dashboard/pkg/config"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/redis"
)

const (
	envHeader    = "X-Dashboard-Env"
	readyTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the cache when one is configured; cache is nil otherwise.
func HealthReady(cfg *config.Config, logg *logger.Logger, cache redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		checks := map[string]string{"redis": "disabled"}

		if cache != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := cache.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis not ready").
					WithDetails(map[string]any{"dependency": "redis"}))
				return
			}
			checks["redis"] = "ok"
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
