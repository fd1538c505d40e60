package audit

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// GetIPAddress extracts the real IP address from request
func GetIPAddress(c echo.Context) string {
	// first hop of X-Forwarded-For is the client
	if ip := c.Request().Header.Get("X-Forwarded-For"); ip != "" {
		first, _, _ := strings.Cut(ip, ",")
		return strings.TrimSpace(first)
	}

	if ip := c.Request().Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	return c.RealIP()
}

// GetUserAgent extracts the user agent string
func GetUserAgent(c echo.Context) string {
	return c.Request().UserAgent()
}

// GetRequestContext extracts common context from Echo context
func GetRequestContext(c echo.Context) (ipAddress, userAgent string) {
	return GetIPAddress(c), GetUserAgent(c)
}
