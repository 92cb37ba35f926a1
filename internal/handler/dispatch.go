package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"edge-proxy/internal/config"
)

// Dispatcher routes every request under the API prefix to the proxy and
// everything else to the static server. The check is a literal string
// prefix match and runs before any other work on the request.
type Dispatcher struct {
	prefix string
	proxy  echo.HandlerFunc
	static echo.HandlerFunc
}

// NewDispatcher creates a Dispatcher for cfg.Proxy.APIPrefix.
func NewDispatcher(cfg *config.Config, proxy *ProxyHandler, static *StaticHandler) *Dispatcher {
	return &Dispatcher{
		prefix: cfg.Proxy.APIPrefix,
		proxy:  proxy.Handle,
		static: static.Handle,
	}
}

// Handle implements echo.HandlerFunc.
func (d *Dispatcher) Handle(c echo.Context) error {
	if strings.HasPrefix(c.Request().URL.Path, d.prefix) {
		return d.proxy(c)
	}
	return d.static(c)
}
