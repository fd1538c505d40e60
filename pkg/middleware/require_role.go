package middleware

import (
	"net/http"
	"slices"

	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/labstack/echo/v4"
)

// RequireRole lets the request through only when the authenticated user holds
// one of roles. It reads "user_role", which the auth middleware sets, so it
// must be applied after it.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("user_role").(string)
			if !ok || role == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "인증이 필요합니다.",
				})
			}

			if !slices.Contains(roles, role) {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   "insufficient_permissions",
					Message: "접근 권한이 없습니다.",
					Details: map[string]any{
						"required_roles": roles,
						"current_role":   role,
					},
				})
			}

			return next(c)
		}
	}
}

// RequireAdmin is RequireRole("admin")
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole("admin")
}
