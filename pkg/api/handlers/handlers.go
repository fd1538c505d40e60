// Package handlers implements the HTTP endpoints of the back office.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/listing"
	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/labstack/echo/v4"
)

const requestTimeout = 10 * time.Second

// validate is shared by every handler; validator caches struct metadata
var validate = validator.New()

// bind decodes the body into req and runs its validate tags
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apierrors.BadRequest(c, "요청 형식이 올바르지 않습니다.")
	}
	if err := validate.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}
	return nil
}

// pathID parses the :id route parameter
func pathID(c echo.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_id",
		Message: "ID는 양의 정수여야 합니다.",
	})
}

func queryInt(c echo.Context, name string) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return v
}

// page reads ?page and ?limit with the listing defaults applied
func page(c echo.Context) listing.Page {
	return listing.NewPage(queryInt(c, "page"), queryInt(c, "limit"))
}

func respondList(c echo.Context, p listing.Page, data any, total int) error {
	return c.JSON(http.StatusOK, models.ListResponse{
		Success:    true,
		Data:       data,
		Pagination: models.NewPagination(p.Page, p.Limit, total),
	})
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, models.DataResponse{Success: true, Data: data})
}

func created(c echo.Context, id int, message string) error {
	return c.JSON(http.StatusCreated, models.CreatedResponse{Success: true, ID: id, Message: message})
}

func done(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: message})
}

func unauthorized(c echo.Context) error {
	return apierrors.UnauthorizedError(c, "missing principal")
}

func timeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
