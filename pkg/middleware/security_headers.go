package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig lists the response headers set on every request.
// Empty fields fall back to DefaultSecurityHeadersConfig.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	ReferrerPolicy        string
	PermissionsPolicy     string
	CacheControl          string
}

// DefaultSecurityHeadersConfig suits a JSON API that serves customer and
// session data: nothing is rendered as a document and nothing is cached.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=(), payment=()",
		CacheControl:          "no-store",
	}
}

// SecurityHeaders sets the configured headers before calling the handler,
// so they are present on error responses too.
func SecurityHeaders(config SecurityHeadersConfig) echo.MiddlewareFunc {
	defaults := DefaultSecurityHeadersConfig()
	headers := map[string]string{
		"Content-Security-Policy": orDefault(config.ContentSecurityPolicy, defaults.ContentSecurityPolicy),
		"Referrer-Policy":         orDefault(config.ReferrerPolicy, defaults.ReferrerPolicy),
		"Permissions-Policy":      orDefault(config.PermissionsPolicy, defaults.PermissionsPolicy),
		"Cache-Control":           orDefault(config.CacheControl, defaults.CacheControl),
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
