package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is anything whose reachability the health check reports
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health
type HealthHandler struct {
	db    Pinger
	cache Pinger
}

// NewHealthHandler creates a health handler. cache may be nil.
func NewHealthHandler(db, cache Pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// Check godoc
// @Summary Health check
// @Description 503 when the database is unreachable. A cache outage only degrades the response.
// @Tags Health
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	services := map[string]string{"database": "ok"}
	if err := h.db.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		services["database"] = "unavailable"
	}

	if h.cache == nil {
		services["cache"] = "disabled"
	} else if err := h.cache.Ping(ctx); err != nil {
		services["cache"] = "unavailable"
	} else {
		services["cache"] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	} else if services["cache"] == "unavailable" {
		state = "degraded"
	}
	return c.JSON(status, map[string]any{
		"status":   state,
		"services": services,
		"time":     time.Now().UTC(),
	})
}
