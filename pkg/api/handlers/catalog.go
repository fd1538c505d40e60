package handlers

import (
	"context"
	"fmt"
	"strconv"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/catalog"
	"github.com/labstack/echo/v4"
)

// CatalogHandler serves customer groups, offers, scripts, channels and notices
type CatalogHandler struct {
	catalog *catalog.Service
	audit   *audit.Service
}

// NewCatalogHandler creates a new catalog handler. auditSvc may be nil.
func NewCatalogHandler(svc *catalog.Service, auditSvc *audit.Service) *CatalogHandler {
	return &CatalogHandler{catalog: svc, audit: auditSvc}
}

func catalogFilter(c echo.Context) catalog.ListFilter {
	pg := page(c)
	return catalog.ListFilter{
		Page:   pg.Page,
		Limit:  pg.Limit,
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
		Type:   c.QueryParam("type"),
	}
}

// Customer groups

// ListGroups godoc
// @Summary List customer groups
// @Tags Customer Groups
// @Security BearerAuth
// @Success 200 {object} models.ListResponse
// @Router /customer-groups [get]
func (h *CatalogHandler) ListGroups(c echo.Context) error {
	f := catalogFilter(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.catalog.ListGroups(ctx, f)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, page(c), list, total)
}

func (h *CatalogHandler) GetGroup(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	g, err := h.catalog.GetGroup(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, g)
}

func (h *CatalogHandler) CreateGroup(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}
	var in catalog.GroupInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	g, err := h.catalog.CreateGroup(ctx, p.UserID, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return created(c, g.ID, "고객 그룹이 생성되었습니다.")
}

func (h *CatalogHandler) UpdateGroup(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in catalog.GroupInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	g, err := h.catalog.UpdateGroup(ctx, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, g)
}

// DeleteGroup godoc
// @Summary Delete a customer group
// @Description Refused with 409 while a campaign that is not completed or cancelled targets the group
// @Tags Customer Groups
// @Security BearerAuth
// @Param id path int true "Group ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 409 {object} models.ErrorResponse "details.campaigns lists the blocking campaigns"
// @Router /customer-groups/{id} [delete]
func (h *CatalogHandler) DeleteGroup(c echo.Context) error {
	return h.remove(c, h.catalog.DeleteGroup, "고객 그룹이 삭제되었습니다.")
}

// RefreshGroupCount recounts a group's members
func (h *CatalogHandler) RefreshGroupCount(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	g, err := h.catalog.RefreshMemberCount(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, g)
}

// PreviewGroup counts the customers a criteria set selects without saving it
func (h *CatalogHandler) PreviewGroup(c echo.Context) error {
	var criteria catalog.Criteria
	if err := bind(c, &criteria); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	preview, err := h.catalog.PreviewGroup(ctx, criteria)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, preview)
}

// Offers

func (h *CatalogHandler) ListOffers(c echo.Context) error {
	f := catalogFilter(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.catalog.ListOffers(ctx, f)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, page(c), list, total)
}

func (h *CatalogHandler) GetOffer(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	o, err := h.catalog.GetOffer(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, o)
}

func (h *CatalogHandler) CreateOffer(c echo.Context) error {
	var in catalog.OfferInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	o, err := h.catalog.CreateOffer(ctx, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return created(c, o.ID, "오퍼가 생성되었습니다.")
}

func (h *CatalogHandler) UpdateOffer(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in catalog.OfferInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	o, err := h.catalog.UpdateOffer(ctx, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, o)
}

func (h *CatalogHandler) DeleteOffer(c echo.Context) error {
	return h.remove(c, h.catalog.DeleteOffer, "오퍼가 삭제되었습니다.")
}

// Scripts

func (h *CatalogHandler) ListScripts(c echo.Context) error {
	f := catalogFilter(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.catalog.ListScripts(ctx, f)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, page(c), list, total)
}

func (h *CatalogHandler) GetScript(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	sc, err := h.catalog.GetScript(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, sc)
}

func (h *CatalogHandler) CreateScript(c echo.Context) error {
	var in catalog.ScriptInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	sc, err := h.catalog.CreateScript(ctx, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return created(c, sc.ID, "스크립트가 생성되었습니다.")
}

func (h *CatalogHandler) UpdateScript(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in catalog.ScriptInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	sc, err := h.catalog.UpdateScript(ctx, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, sc)
}

func (h *CatalogHandler) DeleteScript(c echo.Context) error {
	return h.remove(c, h.catalog.DeleteScript, "스크립트가 삭제되었습니다.")
}

// Channels

func (h *CatalogHandler) ListChannels(c echo.Context) error {
	f := catalogFilter(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.catalog.ListChannels(ctx, f)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, page(c), list, total)
}

func (h *CatalogHandler) GetChannel(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	ch, err := h.catalog.GetChannel(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, ch)
}

// CreateChannel godoc
// @Summary Create a sending channel
// @Description Credentials are encrypted at rest and never returned; responses only report has_credentials
// @Tags Channels
// @Security BearerAuth
// @Param request body catalog.ChannelInput true "Channel"
// @Success 201 {object} models.CreatedResponse
// @Router /channels [post]
func (h *CatalogHandler) CreateChannel(c echo.Context) error {
	var in catalog.ChannelInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	ch, err := h.catalog.CreateChannel(ctx, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	if len(in.Credentials) > 0 {
		h.auditCredentials(c, ch.ID)
	}
	return created(c, ch.ID, "채널이 생성되었습니다.")
}

func (h *CatalogHandler) UpdateChannel(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in catalog.ChannelInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	ch, err := h.catalog.UpdateChannel(ctx, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	if in.Credentials != nil {
		h.auditCredentials(c, ch.ID)
	}
	return ok(c, ch)
}

func (h *CatalogHandler) DeleteChannel(c echo.Context) error {
	return h.remove(c, h.catalog.DeleteChannel, "채널이 삭제되었습니다.")
}

func (h *CatalogHandler) auditCredentials(c echo.Context, channelID int) {
	p, found := middleware.PrincipalFrom(c)
	if !found || h.audit == nil {
		return
	}
	ip, ua := audit.GetRequestContext(c)
	uid := p.UserID
	if err := h.audit.Log(c.Request().Context(), audit.LogEntry{
		UserID:       &uid,
		Action:       audit.ActionChannelCredentials,
		ResourceType: "channel",
		ResourceID:   strconv.Itoa(channelID),
		IPAddress:    ip,
		UserAgent:    ua,
		Severity:     audit.SeverityWarning,
		Description:  fmt.Sprintf("User %d changed credentials of channel %d", p.UserID, channelID),
	}); err != nil {
		c.Logger().Warnf("failed to audit channel credentials change: %v", err)
	}
}

// Notices

// ListNotices returns notices with pinned ones first
func (h *CatalogHandler) ListNotices(c echo.Context) error {
	f := catalogFilter(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.catalog.ListNotices(ctx, f)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, page(c), list, total)
}

func (h *CatalogHandler) GetNotice(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	n, err := h.catalog.GetNotice(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, n)
}

func (h *CatalogHandler) CreateNotice(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}
	var in catalog.NoticeInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	n, err := h.catalog.CreateNotice(ctx, p.UserID, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return created(c, n.ID, "공지사항이 등록되었습니다.")
}

func (h *CatalogHandler) UpdateNotice(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in catalog.NoticeInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	n, err := h.catalog.UpdateNotice(ctx, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, n)
}

func (h *CatalogHandler) DeleteNotice(c echo.Context) error {
	return h.remove(c, h.catalog.DeleteNotice, "공지사항이 삭제되었습니다.")
}

func (h *CatalogHandler) remove(c echo.Context, del func(ctx context.Context, id int) error, message string) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	if err := del(ctx, id); err != nil {
		return apierrors.FromDomain(c, err)
	}
	return done(c, message)
}
