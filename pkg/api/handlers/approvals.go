package handlers

import (
	"net/http"
	"strings"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/approval"
	"github.com/labstack/echo/v4"
)

// ApprovalHandler handles the approval workflow
type ApprovalHandler struct {
	approvals *approval.Service
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(approvals *approval.Service) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

// Submit godoc
// @Summary Submit a campaign for approval
// @Description Opens a PENDING request and moves the campaign to APPROVAL_PENDING.
// @Description requester_id defaults to the caller; only admins may submit on behalf of someone else.
// @Tags Approvals
// @Security BearerAuth
// @Param request body approval.SubmitInput true "Request"
// @Success 201 {object} models.CreatedResponse
// @Failure 409 {object} models.ErrorResponse "A request is already pending"
// @Router /approval-requests [post]
func (h *ApprovalHandler) Submit(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}

	var in approval.SubmitInput
	if err := c.Bind(&in); err != nil {
		return apierrors.BadRequest(c, "요청 형식이 올바르지 않습니다.")
	}
	if in.RequesterID == 0 {
		in.RequesterID = p.UserID
	}
	if in.RequesterID != p.UserID && !p.IsAdmin() {
		return apierrors.ForbiddenError(c, "submit on behalf of another user")
	}
	if err := validate.Struct(in); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := timeout(c)
	defer cancel()

	req, err := h.approvals.Submit(ctx, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return created(c, req.ID, "승인 요청이 등록되었습니다.")
}

// Get godoc
// @Summary Get an approval request
// @Tags Approvals
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} models.DataResponse
// @Router /approval-requests/{id} [get]
func (h *ApprovalHandler) Get(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	req, err := h.approvals.Get(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, req)
}

// Resolve godoc
// @Summary Approve or reject a request
// @Tags Approvals
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param request body approval.ResolveInput true "Decision"
// @Success 200 {object} models.DataResponse
// @Failure 409 {object} models.ErrorResponse "Request already resolved"
// @Router /approval-requests/{id} [put]
func (h *ApprovalHandler) Resolve(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	return h.resolve(c, id)
}

// ResolveByBody is the collection form of Resolve with the request id in the
// body, kept for older clients.
func (h *ApprovalHandler) ResolveByBody(c echo.Context) error {
	return h.resolve(c, 0)
}

func (h *ApprovalHandler) resolve(c echo.Context, id int) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}

	var in approval.ResolveInput
	if err := bind(c, &in); err != nil {
		return err
	}
	if id > 0 {
		in.RequestID = id
	}
	if in.RequestID <= 0 {
		return apierrors.BadRequest(c, "승인 요청 ID는 필수입니다.")
	}
	in.ActorID = p.UserID
	in.ActorIsAdmin = p.IsAdmin()

	ctx, cancel := timeout(c)
	defer cancel()

	req, err := h.approvals.Resolve(ctx, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	message := "승인되었습니다."
	if req.Status == approval.StatusRejected {
		message = "반려되었습니다."
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": message, "data": req})
}

// Pending godoc
// @Summary List approval requests
// @Description Defaults to PENDING; status=all lists every request
// @Tags Approvals
// @Security BearerAuth
// @Param status query string false "PENDING, APPROVED, REJECTED or all"
// @Param approver_id query int false "Approver"
// @Param requester_id query int false "Requester"
// @Param campaign_id query int false "Campaign"
// @Success 200 {object} models.ListResponse
// @Router /pending-campaigns [get]
func (h *ApprovalHandler) Pending(c echo.Context) error {
	pg := page(c)
	status := strings.TrimSpace(c.QueryParam("status"))
	if status == "" {
		status = string(approval.StatusPending)
	}

	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.approvals.List(ctx, approval.ListFilter{
		Page:        pg.Page,
		Limit:       pg.Limit,
		Status:      status,
		ApproverID:  queryInt(c, "approver_id"),
		RequesterID: queryInt(c, "requester_id"),
		CampaignID:  queryInt(c, "campaign_id"),
	})
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, pg, list, total)
}

