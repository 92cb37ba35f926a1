package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SecurityHeaders returns an Echo middleware that adds security headers to
// responses the edge produces itself. Requests for which skip returns true
// (proxied ones) keep the upstream's headers untouched.
func SecurityHeaders(skip echomw.Skipper) echo.MiddlewareFunc {
	if skip == nil {
		skip = echomw.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip(c) {
				return next(c)
			}

			// Set before next: headers are frozen once the handler writes.
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}

// PathPrefixSkipper skips requests whose path starts with prefix.
func PathPrefixSkipper(prefix string) echomw.Skipper {
	return func(c echo.Context) bool {
		return strings.HasPrefix(c.Request().URL.Path, prefix)
	}
}
