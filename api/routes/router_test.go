package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/analytics-dashboard/internal/analyticsapi"
	"github.com/angelmondragon/analytics-dashboard/internal/metadata"
	"github.com/angelmondragon/analytics-dashboard/internal/orchestrator"
	"github.com/angelmondragon/analytics-dashboard/internal/settings"
	"github.com/angelmondragon/analytics-dashboard/internal/widgets"
	"github.com/angelmondragon/analytics-dashboard/pkg/config"
	"github.com/angelmondragon/analytics-dashboard/pkg/logger"
	"github.com/angelmondragon/analytics-dashboard/pkg/metrics"
)

type upstream struct {
	mu        sync.Mutex
	queries   []map[string]any
	failQuery bool
}

func (u *upstream) lastQuery() map[string]any {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.queries[len(u.queries)-1]
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/v1/analytics":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		u.mu.Lock()
		u.queries = append(u.queries, body)
		fail := u.failQuery
		u.mu.Unlock()
		if fail {
			http.Error(w, `{"detail":"unknown metric"}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"region":"South","custom_1":"1.234,5"},{"region":null,"custom_1":10}]}`))
	case "/api/v1/metadata/metrics":
		_, _ = w.Write([]byte(`[{"id":"custom_1","name":"Custom Metric"}]`))
	case "/api/v1/metadata/dimensions":
		_, _ = w.Write([]byte(`[{"id":"region","name":"Region"}]`))
	case "/api/v1/metadata/states":
		_, _ = w.Write([]byte(`["RJ","SP"]`))
	case "/api/v1/metadata/cities":
		if r.URL.Query().Get("state") == "SP" {
			_, _ = w.Write([]byte(`["Campinas","Santos"]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	default:
		http.NotFound(w, r)
	}
}

func newTestRouter(t *testing.T) (http.Handler, *upstream) {
	t.Helper()

	backend := &upstream{}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := analyticsapi.NewClient(srv.URL+"/api/v1", analyticsapi.WithTimeout(5*time.Second))
	require.NoError(t, err)

	logg := logger.Nop()
	reg := prometheus.NewRegistry()
	dates := settings.NewService(nil, logg)
	meta := metadata.NewService(client, nil, time.Minute, logg)
	widgetSvc, err := widgets.NewService(client, orchestrator.Options{
		Metrics: metrics.NewQueryMetrics(reg),
		Sleep:   func(context.Context, time.Duration) error { return nil },
	}, dates, meta, logg)
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}
	router := NewRouter(Deps{
		Config:      cfg,
		Logger:      logg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
		Settings:    dates,
		Metadata:    meta,
		Widgets:     widgetSvc,
	})
	return router, backend
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := do(t, router, http.MethodGet, "/health/live", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotEmpty(t, resp.Header().Get("X-Request-Id"))

	resp = do(t, router, http.MethodGet, "/health/ready", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"redis":"disabled"`)
}

func TestWidgetQueryEndToEnd(t *testing.T) {
	router, backend := newTestRouter(t)

	resp := do(t, router, http.MethodPut, "/api/v1/settings/date-range", `{"start":"2024-01-01","end":"2024-01-31"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = do(t, router, http.MethodPut, "/api/v1/widgets/sales-by-region/filters/state", `{"state":"SP"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Contains(t, resp.Body.String(), "Campinas")

	resp = do(t, router, http.MethodPost, "/api/v1/widgets/sales-by-region/query", `{"metrics":"custom_1","dimensions":"region"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope struct {
		Data widgets.Outcome `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	out := envelope.Data
	require.Equal(t, orchestrator.StatusSuccess, out.Status)
	require.Equal(t, []string{"South", "—"}, out.Chart.Categories)
	require.Equal(t, "Custom Metric", out.Chart.Series[0].Name)
	require.Equal(t, []float64{1234.5, 10}, out.Chart.Series[0].Values)
	require.Equal(t, "Região", out.Chart.AxisLabels.X)

	sent := backend.lastQuery()
	filters, ok := sent["filters"].([]any)
	require.True(t, ok)
	require.Len(t, filters, 2)
	dateFilter := filters[len(filters)-1].(map[string]any)
	require.Equal(t, "order_time", dateFilter["field"])
	require.Equal(t, "between", dateFilter["operator"])
	require.Equal(t, []any{"2024-01-01", "2024-01-31"}, dateFilter["value"])

	resp = do(t, router, http.MethodGet, "/api/v1/widgets/sales-by-region", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"status":"success"`)
}

func TestWidgetQueryUpstreamRejection(t *testing.T) {
	router, backend := newTestRouter(t)
	backend.failQuery = true

	resp := do(t, router, http.MethodPost, "/api/v1/widgets/w1/query", `{"metrics":["custom_1"],"dimensions":["region"]}`)
	require.Equal(t, http.StatusBadGateway, resp.Code)
	require.Contains(t, resp.Body.String(), `"retryable":true`)

	backend.mu.Lock()
	calls := len(backend.queries)
	backend.mu.Unlock()
	require.Equal(t, 1, calls, "application errors are not retried")
}

func TestWidgetRoutesRejectMalformedID(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := do(t, router, http.MethodGet, "/api/v1/widgets/bad.id", "")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, router, http.MethodPost, "/api/v1/widgets/unknown/refetch", "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestMetadataRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := do(t, router, http.MethodGet, "/api/v1/metadata/cities?state=SP", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `{"data":["Campinas","Santos"]}`, resp.Body.String())

	resp = do(t, router, http.MethodGet, "/api/v1/metadata/states", "")
	require.JSONEq(t, `{"data":["RJ","SP"]}`, resp.Body.String())
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	router, _ := newTestRouter(t)

	do(t, router, http.MethodGet, "/health/live", "")
	resp := do(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `dashboard_http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/settings/date-range", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, "http://localhost:5173", resp.Header().Get("Access-Control-Allow-Origin"))
}
