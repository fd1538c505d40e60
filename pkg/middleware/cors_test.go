package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
)

const backoffice = "https://backoffice.example.com"

func newCORSEcho(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORSWithConfig(CORSConfig(origins...)))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestCORS_AllowedOrigin(t *testing.T) {
	e := newCORSEcho(backoffice)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", backoffice)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, backoffice, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Vary"), "Origin")
}

func TestCORS_BlockedOrigins(t *testing.T) {
	tests := []struct {
		name   string
		origin string
	}{
		{"unknown external site", "https://evil.com"},
		{"similar domain attack", "https://backoffice.example.com.evil.com"},
		{"http instead of https", "http://backoffice.example.com"},
		{"null origin", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCORSEcho(backoffice)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			e.ServeHTTP(rec, req)

			// CORS is enforced by the browser, so the request itself still succeeds.
			assert.NotEqual(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := newCORSEcho(backoffice)

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", backoffice)
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization,Content-Type,X-Session-ID")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, backoffice, rec.Header().Get("Access-Control-Allow-Origin"))

	methods := rec.Header().Get("Access-Control-Allow-Methods")
	for _, m := range AllowedMethods {
		assert.Contains(t, methods, m)
	}
	headers := rec.Header().Get("Access-Control-Allow-Headers")
	for _, h := range AllowedHeaders {
		assert.Contains(t, headers, h)
	}
}

func TestCORS_RequestWithoutOrigin(t *testing.T) {
	e := newCORSEcho(backoffice)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig_Defaults(t *testing.T) {
	cfg := CORSConfig()

	assert.Equal(t, DefaultOrigins, cfg.AllowOrigins)
	assert.Equal(t, AllowedMethods, cfg.AllowMethods)
	assert.Equal(t, AllowedHeaders, cfg.AllowHeaders)
	assert.True(t, cfg.AllowCredentials)
	assert.NotContains(t, cfg.AllowOrigins, "*", "credentials forbid a wildcard origin")
	assert.NotContains(t, cfg.AllowMethods, http.MethodOptions)
}
