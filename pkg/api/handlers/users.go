package handlers

import (
	"net/http"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/user"
	"github.com/labstack/echo/v4"
)

// UserHandler handles admin user management
type UserHandler struct {
	users *user.Service
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *user.Service) *UserHandler {
	return &UserHandler{users: users}
}

func actor(c echo.Context) (user.Actor, bool) {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return user.Actor{}, false
	}
	ip, ua := audit.GetRequestContext(c)
	return user.Actor{ID: p.UserID, IPAddress: ip, UserAgent: ua}, true
}

// List godoc
// @Summary List users
// @Tags Users
// @Security BearerAuth
// @Param role query string false "Role"
// @Param status query string false "active or disabled"
// @Param search query string false "Name or email"
// @Success 200 {object} models.ListResponse
// @Router /users [get]
func (h *UserHandler) List(c echo.Context) error {
	pg := page(c)
	ctx, cancel := timeout(c)
	defer cancel()

	list, total, err := h.users.List(ctx, user.ListFilter{
		Page:   pg.Page,
		Limit:  pg.Limit,
		Search: c.QueryParam("search"),
		Role:   c.QueryParam("role"),
		Status: c.QueryParam("status"),
	})
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return respondList(c, pg, list, total)
}

func (h *UserHandler) Get(c echo.Context) error {
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	u, err := h.users.Get(ctx, id)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, u)
}

func (h *UserHandler) Create(c echo.Context) error {
	a, found := actor(c)
	if !found {
		return unauthorized(c)
	}
	var in user.CreateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	u, err := h.users.Create(ctx, a, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "id": u.ID, "data": u})
}

// Update godoc
// @Summary Update a user
// @Description Disabling an account or setting its password ends its sessions. Admins cannot demote or disable themselves.
// @Tags Users
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body user.UpdateInput true "Changes"
// @Success 200 {object} models.DataResponse
// @Router /users/{id} [put]
func (h *UserHandler) Update(c echo.Context) error {
	a, found := actor(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	var in user.UpdateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := timeout(c)
	defer cancel()

	u, err := h.users.Update(ctx, a, id, in)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, u)
}

func (h *UserHandler) Delete(c echo.Context) error {
	a, found := actor(c)
	if !found {
		return unauthorized(c)
	}
	id, valid := pathID(c)
	if !valid {
		return invalidID(c)
	}
	ctx, cancel := timeout(c)
	defer cancel()

	if err := h.users.Delete(ctx, a, id); err != nil {
		return apierrors.FromDomain(c, err)
	}
	return done(c, "사용자가 삭제되었습니다.")
}
