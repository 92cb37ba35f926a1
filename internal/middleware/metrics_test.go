package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"edge-proxy/internal/metrics"
)

// requestLabels returns the label sets of edge_proxy_http_requests_total.
func requestLabels(t *testing.T, m *metrics.Metrics) []map[string]string {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var out []map[string]string
	for _, f := range families {
		if f.GetName() != "edge_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			out = append(out, labelMap(metric))
		}
	}
	return out
}

func labelMap(metric *dto.Metric) map[string]string {
	labels := make(map[string]string)
	for _, lp := range metric.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

func TestMetricsMiddleware_RouteLabels(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/api", "/metrics"))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	for _, p := range []string{"/api/users", "/index.html", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, p, http.NoBody)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	want := map[string]bool{"proxy": false, "static": false, "/healthz": false}
	for _, labels := range requestLabels(t, m) {
		if _, ok := want[labels["route"]]; ok {
			want[labels["route"]] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("expected a sample with route=%s", route)
		}
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/api", "/metrics"))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "edge_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected edge_proxy_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/api", "/metrics"))
	e.GET("/api/test", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	for _, labels := range requestLabels(t, m) {
		if labels["route"] == "proxy" {
			if labels["status_code"] != "502" {
				t.Errorf("status_code = %q, want %q", labels["status_code"], "502")
			}
			return
		}
	}
	t.Error("expected edge_proxy_http_requests_total with route=proxy")
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/api", "/metrics"))
	e.Any("/api/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("XYZZY", "/api/test", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	for _, labels := range requestLabels(t, m) {
		if labels["route"] == "proxy" {
			if labels["method"] != "other" {
				t.Errorf("method = %q, want %q", labels["method"], "other")
			}
			return
		}
	}
	t.Error("expected edge_proxy_http_requests_total with route=proxy and method=other")
}

func TestMetricsMiddleware_CustomMetricsPath(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, "/api", "/internal/prom"))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/internal/prom", http.NoBody)
	e.ServeHTTP(httptest.NewRecorder(), req)

	labels := requestLabels(t, m)
	if len(labels) != 1 {
		t.Fatalf("got %d samples, want 1", len(labels))
	}
	if labels[0]["route"] != "/internal/prom" {
		t.Errorf("route = %q, want %q", labels[0]["route"], "/internal/prom")
	}
}
