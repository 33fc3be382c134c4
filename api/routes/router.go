package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/analytics-dashboard/api/controllers"
	"github.com/angelmondragon/analytics-dashboard/api/middleware"
	"github.com/angelmondragon/analytics-dashboard/internal/metadata"
	"github.com/angelmondragon/analytics-dashboard/internal/settings"
	"github.com/angelmondragon/analytics-dashboard/internal/widgets"
	"github.com/angelmondragon/analytics-dashboard/pkg/config"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/metrics"
	"github.com/angelmondragon/analytics-dashboard/pkg/redis"
)

// Deps carries everything the router hands to controllers. Cache is nil when
// redis is disabled; Gatherer nil disables /metrics.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Cache       redis.Pinger
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Settings    settings.Service
	Metadata    metadata.Service
	Widgets     widgets.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.HTTPMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Cache))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/settings/date-range", func(r chi.Router) {
			r.Get("/", controllers.GetDateRange(d.Settings, logg))
			r.Put("/", controllers.PutDateRange(d.Settings, logg))
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Get("/metrics", controllers.MetadataMetrics(d.Metadata, logg))
			r.Get("/dimensions", controllers.MetadataDimensions(d.Metadata, logg))
			r.Get("/states", controllers.MetadataStates(d.Metadata, logg))
			r.Get("/cities", controllers.MetadataCities(d.Metadata, logg))
			r.Post("/invalidate", controllers.MetadataInvalidate(d.Metadata, logg))
		})

		r.Route("/widgets/{"+middleware.WidgetIDParam+"}", func(r chi.Router) {
			r.Use(middleware.WidgetContext(logg))
			r.Get("/", controllers.WidgetSnapshot(d.Widgets, logg))
			r.Post("/query", controllers.WidgetQuery(d.Widgets, logg))
			r.Post("/refetch", controllers.WidgetRefetch(d.Widgets, logg))
			r.Post("/cancel", controllers.WidgetCancel(d.Widgets, logg))
			r.Put("/filters/state", controllers.WidgetSelectState(d.Widgets, logg))
			r.Put("/filters/city", controllers.WidgetSelectCity(d.Widgets, logg))
		})
	})

	return r
}
