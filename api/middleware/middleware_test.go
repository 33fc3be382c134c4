package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/metrics"
)

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || resp.Header().Get(requestIDHeader) != seen {
		t.Fatalf("expected generated request id to be echoed, ctx=%q header=%q", seen, resp.Header().Get(requestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if seen != "abc-123" {
		t.Fatalf("expected caller request id to be kept, got %q", seen)
	}

	for _, bad := range []string{"has space", "line\nbreak", string(make([]byte, 200))} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		resp = httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		if seen == bad {
			t.Fatalf("malformed request id %q should be replaced", bad)
		}
		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("expected a generated uuid, got %q", seen)
		}
	}
}

func TestWidgetContextValidatesParam(t *testing.T) {
	var seen string
	r := chi.NewRouter()
	r.With(WidgetContext(logger.Nop())).Get("/widgets/{widgetId}", func(w http.ResponseWriter, r *http.Request) {
		seen = WidgetIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/widgets/revenue-by-channel_1", nil))
	if resp.Code != http.StatusNoContent || seen != "revenue-by-channel_1" {
		t.Fatalf("expected widget id in context, status=%d seen=%q", resp.Code, seen)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/widgets/bad%20id", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid widget id, got %d", resp.Code)
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", resp.Code)
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(Metrics(metrics.NewHTTPMetrics(reg)))
	r.Get("/widgets/{widgetId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/widgets/w-1", nil))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "dashboard_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/widgets/{widgetId}" && labels["status"] == "202" {
				return
			}
		}
	}
	t.Fatalf("expected request counted under the route pattern")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	h := CORS([]string{"https://dash.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/metadata/metrics", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Fatalf("expected origin to be allowed, got %q", got)
	}
}
