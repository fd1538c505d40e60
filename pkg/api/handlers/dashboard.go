package handlers

import (
	"github.com/jordanlanch/campaigndesk/pkg/dashboard"
	"github.com/labstack/echo/v4"
)

// DashboardHandler serves the landing-page summary
type DashboardHandler struct {
	dashboard *dashboard.Service
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{dashboard: svc}
}

// Summary godoc
// @Summary Dashboard summary
// @Description Always 200. When a data source fails the body carries placeholder content and degraded=true.
// @Tags Dashboard
// @Security BearerAuth
// @Success 200 {object} models.DataResponse
// @Router /dashboard/summary [get]
func (h *DashboardHandler) Summary(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()
	return ok(c, h.dashboard.Summary(ctx))
}
