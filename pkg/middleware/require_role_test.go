package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     any
		wantCode int
	}{
		{"allowed role", "approver", http.StatusOK},
		{"admin allowed", "admin", http.StatusOK},
		{"other role", "viewer", http.StatusForbidden},
		{"missing role", nil, http.StatusUnauthorized},
		{"wrong type", 3, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.role != nil {
				c.Set("user_role", tt.role)
			}

			h := RequireRole("admin", "approver")(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			require.NoError(t, h(c))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireAdmin_ReportsRoles(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/users/2", nil), rec)
	c.Set("user_role", "manager")

	called := false
	h := RequireAdmin()(func(c echo.Context) error {
		called = true
		return nil
	})
	require.NoError(t, h(c))

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "insufficient_permissions", body.Error)
	assert.Equal(t, "manager", body.Details["current_role"])
}
