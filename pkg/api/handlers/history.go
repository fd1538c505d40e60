package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/labstack/echo/v4"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HistoryHandler serves the campaign audit trail
type HistoryHandler struct {
	history *history.Service
	audit   *audit.Service
}

// NewHistoryHandler creates a new history handler. auditSvc may be nil.
func NewHistoryHandler(hist *history.Service, auditSvc *audit.Service) *HistoryHandler {
	return &HistoryHandler{history: hist, audit: auditSvc}
}

// HistoryListResponse is a page of history rows with the dashboard counters
type HistoryListResponse struct {
	models.ListResponse
	Statistics *history.Statistics `json:"statistics"`
}

// filter reads the query parameters shared by List and Export
func (h *HistoryHandler) filter(c echo.Context) (history.Filter, error) {
	f := history.Filter{
		CampaignID: queryInt(c, "campaign_id"),
		ActionType: strings.TrimSpace(c.QueryParam("action_type")),
		Search:     c.QueryParam("search"),
		DateRange:  strings.TrimSpace(c.QueryParam("date_range")),
	}
	if f.ActionType != "" && !strings.EqualFold(f.ActionType, "all") && !history.ValidActionType(f.ActionType) {
		return f, fmt.Errorf("유효하지 않은 작업 유형입니다: %s", f.ActionType)
	}
	if strings.EqualFold(f.ActionType, "all") {
		f.ActionType = ""
	}
	var err error
	if f.Since, err = queryDay(c, "since"); err != nil {
		return f, err
	}
	if f.Until, err = queryDay(c, "until"); err != nil {
		return f, err
	}
	if !f.Until.IsZero() {
		// until is inclusive of the whole day
		f.Until = f.Until.AddDate(0, 0, 1)
	}
	return f, nil
}

// List godoc
// @Summary List campaign history
// @Tags History
// @Security BearerAuth
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Param campaign_id query int false "Campaign"
// @Param action_type query string false "created, updated, approved, ..."
// @Param search query string false "Campaign name, actor or comment"
// @Param date_range query string false "today, week or month"
// @Success 200 {object} HistoryListResponse
// @Router /campaign-history [get]
func (h *HistoryHandler) List(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}
	pg := page(c)
	f.Page, f.Limit = pg.Page, pg.Limit

	ctx, cancel := timeout(c)
	defer cancel()

	entries, total, err := h.history.List(ctx, f)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	stats, err := h.history.Statistics(ctx)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, HistoryListResponse{
		ListResponse: models.ListResponse{
			Success:    true,
			Data:       entries,
			Pagination: models.NewPagination(pg.Page, pg.Limit, total),
		},
		Statistics: stats,
	})
}

// Statistics returns only the counters
func (h *HistoryHandler) Statistics(c echo.Context) error {
	ctx, cancel := timeout(c)
	defer cancel()

	stats, err := h.history.Statistics(ctx)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, stats)
}

// Export godoc
// @Summary Download history as XLSX
// @Description Accepts the List filters plus since and until (YYYY-MM-DD). Paging is ignored.
// @Tags History
// @Security BearerAuth
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /campaign-history/export [get]
func (h *HistoryHandler) Export(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return apierrors.BadRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Minute)
	defer cancel()

	var buf bytes.Buffer
	n, err := h.history.ExportXLSX(ctx, f, &buf)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	if p, found := middleware.PrincipalFrom(c); found && h.audit != nil {
		ip, ua := audit.GetRequestContext(c)
		uid := p.UserID
		if err := h.audit.Log(ctx, audit.LogEntry{
			UserID:       &uid,
			Action:       audit.ActionHistoryExport,
			ResourceType: "campaign_history",
			IPAddress:    ip,
			UserAgent:    ua,
			Severity:     audit.SeverityInfo,
			Description:  fmt.Sprintf("Exported %d history rows", n),
		}); err != nil {
			c.Logger().Warnf("failed to audit history export: %v", err)
		}
	}

	filename := fmt.Sprintf("campaign-history-%s.xlsx", time.Now().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func queryDay(c echo.Context, name string) (time.Time, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s 날짜 형식이 올바르지 않습니다 (YYYY-MM-DD).", name)
	}
	return t, nil
}
