package handlers

import (
	"net/http"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/labstack/echo/v4"
)

// CampaignHandler handles campaign CRUD and per-campaign history
type CampaignHandler struct {
	campaigns *campaign.Service
	history   *history.Service
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaigns *campaign.Service, hist *history.Service) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, history: hist}
}

// List godoc
// @Summary List campaigns
// @Tags Campaigns
// @Security BearerAuth
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Param status query string false "Campaign status"
// @Param type query string false "Campaign type"
// @Param search query string false "Name or description"
// @Success 200 {object} models.ListResponse
// @Router /campaigns [get]
func (h *CampaignHandler) List(c echo.Context) error {
	p := page(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.campaigns.List(ctx, campaign.ListFilter{
		Page:   p.Page,
		Limit:  p.Limit,
		Status: c.QueryParam("status"),
		Type:   c.QueryParam("type"),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, p, list, total)
}

// Get godoc
// @Summary Get a campaign
// @Tags Campaigns
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} models.DataResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /campaigns/{id} [get]
func (h *CampaignHandler) Get(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	cmp, err := h.campaigns.Get(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, cmp)
}

// Create godoc
// @Summary Create a campaign
// @Description New campaigns start in DRAFT, or PLANNING when requested
// @Tags Campaigns
// @Security BearerAuth
// @Param request body campaign.Input true "Campaign"
// @Success 201 {object} models.DataResponse
// @Router /campaigns [post]
func (h *CampaignHandler) Create(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}
	var in campaign.Input
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	cmp, err := h.campaigns.Create(ctx, p.UserID, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "id": cmp.ID, "data": cmp})
}

// Update godoc
// @Summary Replace a campaign
// @Description Replaces every field. A status change writes one history row.
// @Tags Campaigns
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body campaign.Input true "Campaign"
// @Success 200 {object} models.DataResponse
// @Router /campaigns/{id} [put]
func (h *CampaignHandler) Update(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in campaign.Input
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	cmp, err := h.campaigns.Update(ctx, p.UserID, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, cmp)
}

// Delete godoc
// @Summary Delete a campaign
// @Description Only DRAFT, PLANNING and REJECTED campaigns can be deleted
// @Tags Campaigns
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 409 {object} models.ErrorResponse "Campaign is not deletable"
// @Router /campaigns/{id} [delete]
func (h *CampaignHandler) Delete(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	if err := h.campaigns.Delete(ctx, p.UserID, id); err != nil {
		return apierrors.FromDomain(c, err)
	}
	return done(c, "캠페인이 삭제되었습니다.")
}

// History returns every history row of one campaign, newest first. Rows
// remain readable after the campaign is deleted.
func (h *CampaignHandler) History(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	entries, err := h.history.ForCampaign(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, entries)
}
