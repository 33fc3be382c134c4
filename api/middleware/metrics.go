package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/analytics-dashboard/pkg/metrics"
)

// Metrics records request counts and latency by chi route pattern, so path
// parameters do not explode label cardinality.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			m.Observe(r.Method, route, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
