package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/api/handlers"
	"github.com/jordanlanch/campaigndesk/pkg/approval"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/catalog"
	"github.com/jordanlanch/campaigndesk/pkg/dashboard"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/database/dbtest"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/session"
	"github.com/jordanlanch/campaigndesk/pkg/user"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "routes-test-secret-at-least-32-chars"
	testPassword = "correct-horse"
)

type server struct {
	t     *testing.T
	e     *echo.Echo
	db    *database.Client
	clock *session.ManualClock
	users map[string]int
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := dbtest.Open(t)
	log := logger.Nop()

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	users := map[string]int{}
	for _, role := range []string{auth.RoleAdmin, auth.RoleManager, auth.RoleApprover, auth.RoleViewer} {
		users[role] = dbtest.Insert(t, db, "users", dbtest.Stamped(map[string]any{
			"email":         role + "@example.com",
			"name":          role,
			"password_hash": hash,
			"role":          role,
			"status":        "active",
		}))
	}

	auditSvc := audit.NewService(db)
	store := auth.NewSessionStore(db)
	authSvc := auth.NewService(db, auth.Config{JWTSecret: testSecret}, nil, store, log, auth.WithAudit(auditSvc))

	clock := session.NewManualClock(time.Now())
	registry := session.NewRegistry(session.DefaultConfig(), clock)

	hist := history.NewService(db, log, time.UTC)
	campaigns := campaign.NewService(db, hist, log)
	approvals := approval.NewService(db, campaigns, hist, log)
	catalogSvc := catalog.NewService(db, campaigns, nil, log)
	userSvc := user.NewService(db, store, auditSvc, log)
	dash := dashboard.NewService(campaigns, approvals, hist, nil, nil, log)

	e := echo.New()
	registerRoutes(e, routeDeps{
		Auth:      handlers.NewAuthHandler(authSvc, registry, false),
		Campaigns: handlers.NewCampaignHandler(campaigns, hist),
		Approvals: handlers.NewApprovalHandler(approvals),
		History:   handlers.NewHistoryHandler(hist, auditSvc),
		Catalog:   handlers.NewCatalogHandler(catalogSvc, auditSvc),
		Users:     handlers.NewUserHandler(userSvc),
		Dashboard: handlers.NewDashboardHandler(dash),
		Health:    handlers.NewHealthHandler(db, nil),
		Validator: authSvc.Authenticator(),
		Expirer:   authSvc,
		Sessions:  registry,
	})

	return &server{t: t, e: e, db: db, clock: clock, users: users}
}

func (s *server) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get(echo.HeaderContentType) == echo.MIMEApplicationJSON ||
		rec.Header().Get(echo.HeaderContentType) == echo.MIMEApplicationJSONCharsetUTF8 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (s *server) login(role string) string {
	s.t.Helper()
	rec, body := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": role + "@example.com", "password": testPassword,
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(s.t, token)
	return token
}

func id(t *testing.T, body map[string]any) int {
	t.Helper()
	v, ok := body["id"].(float64)
	require.True(t, ok, "response has no id: %v", body)
	return int(v)
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodGet, "/api/v1/campaigns", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "manager@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestApprovalWorkflow(t *testing.T) {
	s := newServer(t)
	manager := s.login(auth.RoleManager)
	approver := s.login(auth.RoleApprover)
	viewer := s.login(auth.RoleViewer)

	rec, _ := s.do(http.MethodPost, "/api/v1/campaigns", viewer, map[string]any{"name": "봄 세일"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := s.do(http.MethodPost, "/api/v1/campaigns", manager, map[string]any{"name": "봄 세일", "budget": 1000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	campaignID := id(t, body)

	submit := map[string]any{"campaign_id": campaignID, "approver_id": s.users[auth.RoleApprover], "request_message": "검토 부탁드립니다"}
	rec, body = s.do(http.MethodPost, "/api/v1/approval-requests", manager, submit)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requestID := id(t, body)

	rec, body = s.do(http.MethodPost, "/api/v1/pending-campaigns", manager, submit)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = s.do(http.MethodGet, "/api/v1/pending-campaigns", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["pagination"].(map[string]any)["total"])

	// only the named approver may resolve
	rec, _ = s.do(http.MethodPut, fmt.Sprintf("/api/v1/approval-requests/%d", requestID), manager, map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(http.MethodPut, fmt.Sprintf("/api/v1/approval-requests/%d", requestID), approver, map[string]any{"status": "approved", "response_message": "좋습니다"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "승인되었습니다.", body["message"])

	rec, _ = s.do(http.MethodPut, "/api/v1/approval-requests", approver, map[string]any{"id": requestID, "status": "rejected"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = s.do(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d", campaignID), viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "APPROVED", body["data"].(map[string]any)["status"])

	rec, body = s.do(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d/history", campaignID), viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["data"].([]any)
	require.NotEmpty(t, entries)
	assert.Equal(t, "approved", entries[0].(map[string]any)["action_type"])

	rec, body = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/campaigns/%d", campaignID), manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = s.do(http.MethodGet, "/api/v1/campaign-history/export?token="+viewer, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")

	rec, body = s.do(http.MethodGet, "/api/v1/dashboard/summary", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestUsersRequireAdmin(t *testing.T) {
	s := newServer(t)

	rec, _ := s.do(http.MethodGet, "/api/v1/users", s.login(auth.RoleManager), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := s.do(http.MethodGet, "/api/v1/users", s.login(auth.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 4)
}

func TestSessionIdleExpiry(t *testing.T) {
	s := newServer(t)
	token := s.login(auth.RoleViewer)

	s.clock.Advance(26 * time.Minute)

	// polling the status is passive and reports the warning window
	rec, body := s.do(http.MethodGet, "/api/v1/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "warning", body["state"])
	assert.EqualValues(t, 4*60, body["remaining_seconds"])

	s.clock.Advance(5 * time.Minute)

	rec, body = s.do(http.MethodGet, "/api/v1/campaigns", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_expired", body["error"])

	// the persisted session is gone too
	rec, _ = s.do(http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionActivityResetsTimer(t *testing.T) {
	s := newServer(t)
	token := s.login(auth.RoleViewer)

	s.clock.Advance(20 * time.Minute)
	rec, _ := s.do(http.MethodGet, "/api/v1/campaigns", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	s.clock.Advance(20 * time.Minute)
	rec, body := s.do(http.MethodGet, "/api/v1/auth/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", body["state"])
}
