package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edge-proxy/internal/config"
	"edge-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The
// catch-all goes to the dispatcher; config validation keeps the explicit
// routes outside the API prefix.
func RegisterRoutes(e *echo.Echo, d *Dispatcher, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.Any("/", d.Handle)
	e.Any("/*", d.Handle)
}

// RegisterMetrics exposes the Prometheus registry when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
