package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"
)

// DefaultOrigins are the back-office front-ends allowed when CORS_ORIGINS is unset
var DefaultOrigins = []string{
	"http://localhost:3000", // Development (vite)
	"http://localhost:5173", // Development (vite preview)
}

// AllowedMethods lists the methods the API serves. OPTIONS is answered by the
// CORS middleware itself.
var AllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// AllowedHeaders includes X-Session-ID so persisted-session clients can call cross-origin
var AllowedHeaders = []string{
	"Origin",
	"Content-Type",
	"Accept",
	"Authorization",
	"X-Session-ID",
}

// CORSConfig returns the CORS configuration used by the application.
// Centralised here so that both main.go and tests reference the same config.
func CORSConfig(origins ...string) middleware.CORSConfig {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	return middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     AllowedMethods,
		AllowCredentials: true,
		AllowHeaders:     AllowedHeaders,
		ExposeHeaders:    []string{"Content-Disposition"},
	}
}
