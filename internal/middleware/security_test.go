package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(PathPrefixSkipper("/api")))
	e.GET("/index.html", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/index.html", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", v, "DENY")
	}
}

func TestSecurityHeaders_SkipsProxied(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders(PathPrefixSkipper("/api")))
	e.GET("/api/users", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Frame-Options"); v != "" {
		t.Errorf("X-Frame-Options = %q on a proxied response, want none", v)
	}
}

func TestPathPrefixSkipper(t *testing.T) {
	skip := PathPrefixSkipper("/api")
	e := echo.New()

	tests := []struct {
		path string
		want bool
	}{
		{"/api", true},
		{"/api/users", true},
		{"/apix", true},
		{"/ap", false},
		{"/", false},
		{"/static/api", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, http.NoBody), httptest.NewRecorder())
			if got := skip(c); got != tt.want {
				t.Errorf("skip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
