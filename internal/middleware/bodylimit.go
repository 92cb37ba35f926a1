package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// BodyLimit caps request bodies at maxBytes for requests the edge answers
// itself. Requests for which skip returns true (proxied ones) stream their
// body to the upstream unbounded.
func BodyLimit(maxBytes int64, skip echomw.Skipper) echo.MiddlewareFunc {
	return echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Skipper: skip,
		Limit:   strconv.FormatInt(maxBytes, 10) + "B",
	})
}
