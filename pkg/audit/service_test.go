package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanlanch/campaigndesk/pkg/database/dbtest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_LogAndRecent(t *testing.T) {
	db := dbtest.Open(t)
	s := NewService(db)
	ctx := context.Background()
	userID := dbtest.User(t, db, "audit@example.com", "감사", "admin")

	require.NoError(t, s.LogUserLogin(ctx, userID, "10.0.0.1", "curl/8"))
	require.NoError(t, s.LogLoginFailed(ctx, "ghost@example.com", "10.0.0.2", "curl/8"))
	require.NoError(t, s.LogUserAdmin(ctx, ActionUserDelete, userID, 99, "10.0.0.1", "curl/8"))

	all, err := s.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionUserDelete, all[0].Action)
	assert.Equal(t, SeverityCritical, all[0].Severity)
	assert.Equal(t, "99", all[0].ResourceID)

	mine, err := s.Recent(ctx, Filter{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	failed, err := s.Recent(ctx, Filter{Action: ActionUserLoginFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Nil(t, failed[0].UserID)
	assert.Equal(t, SeverityWarning, failed[0].Severity)
	assert.Equal(t, "ghost@example.com", failed[0].ResourceID)
}

func TestGetRequestContext(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent")
	ip, ua := GetRequestContext(e.NewContext(req, httptest.NewRecorder()))
	assert.Equal(t, "203.0.113.7", ip)
	assert.Equal(t, "test-agent", ua)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", GetIPAddress(e.NewContext(req, httptest.NewRecorder())))
}
