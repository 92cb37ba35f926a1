package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"edge-proxy/internal/metrics"
	"edge-proxy/internal/service"
)

// StaticHandler serves files from the static root.
type StaticHandler struct {
	service *service.StaticService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStaticHandler creates a StaticHandler. The metrics parameter is
// optional; pass nil to disable static outcome counting.
func NewStaticHandler(svc *service.StaticService, m *metrics.Metrics, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		service: svc,
		metrics: m,
		logger:  logger.With("component", "static_handler"),
	}
}

// Handle streams the file the request path resolves to. Content type,
// conditional requests and ranges are handled by http.ServeContent.
func (h *StaticHandler) Handle(c echo.Context) error {
	req := c.Request()
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		c.Response().Header().Set(echo.HeaderAllow, "GET, HEAD")
		return c.JSON(http.StatusMethodNotAllowed, map[string]string{
			"error": "method not allowed",
		})
	}

	asset, err := h.service.Open(req.URL.Path)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = asset.Close() }()

	h.count(metrics.StaticServed)
	http.ServeContent(c.Response(), req, asset.Name, asset.Info.ModTime(), asset)
	return nil
}

func (h *StaticHandler) mapError(c echo.Context, err error) error {
	req := c.Request()

	switch {
	case errors.Is(err, service.ErrIsDirectory):
		// Collapse leading slashes so the Location can never be read as a
		// scheme-relative URL pointing at another host.
		target := "/" + strings.TrimLeft(req.URL.EscapedPath(), "/") + "/"
		if req.URL.RawQuery != "" {
			target += "?" + req.URL.RawQuery
		}
		return c.Redirect(http.StatusTemporaryRedirect, target)

	case errors.Is(err, service.ErrNotFound):
		h.count(metrics.StaticNotFound)
		if errors.Is(err, service.ErrPathTraversal) {
			h.logger.Warn("rejected path traversal", "path", req.URL.Path, "remote_ip", c.RealIP())
		}
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	}

	// The cause stays in the server log; clients get a generic message.
	h.count(metrics.StaticError)
	h.logger.Error("static asset error", "err", err, "path", req.URL.Path)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

func (h *StaticHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.StaticResponses.WithLabelValues(outcome).Inc()
	}
}
