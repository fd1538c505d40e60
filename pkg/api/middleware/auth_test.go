package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/database/dbtest"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/jordanlanch/campaigndesk/pkg/session"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-minimum-32-characters-long"

type authFixture struct {
	svc      *auth.Service
	registry *session.Registry
	clock    *session.ManualClock
	login    *auth.LoginResult
}

func setup(t *testing.T) *authFixture {
	t.Helper()
	db := dbtest.Open(t)

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	dbtest.Insert(t, db, "users", dbtest.Stamped(map[string]any{
		"email": "approver@example.com", "name": "박승인", "password_hash": hash,
		"role": auth.RoleApprover, "status": "active",
	}))

	svc := auth.NewService(db, auth.Config{JWTSecret: testSecret}, nil, auth.NewSessionStore(db), logger.Nop())
	res, err := svc.Login(context.Background(), auth.LoginInput{Email: "approver@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	clock := session.NewManualClock(time.Now())
	registry := session.NewRegistry(session.Config{IdleTimeout: 30 * time.Minute, WarningBefore: 5 * time.Minute}, clock)

	return &authFixture{svc: svc, registry: registry, clock: clock, login: res}
}

func (f *authFixture) middleware() echo.MiddlewareFunc {
	return Auth(AuthConfig{
		Validator: f.svc.Authenticator(),
		Sessions:  f.registry,
		Expirer:   f.svc,
		Passive:   PathIs("/api/v1/auth/session"),
	})
}

func call(t *testing.T, mw echo.MiddlewareFunc, path string, prepare func(*http.Request)) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath(path)

	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	require.NoError(t, h(c))
	return rec, c
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuth_BearerToken(t *testing.T) {
	f := setup(t)

	rec, c := call(t, f.middleware(), "/api/v1/campaigns", bearer(f.login.Token))
	require.Equal(t, http.StatusOK, rec.Code)

	p, ok := PrincipalFrom(c)
	require.True(t, ok)
	assert.Equal(t, auth.CredentialStateless, p.Kind)
	assert.Equal(t, f.login.SessionID, p.SessionID)
	assert.Equal(t, p.UserID, c.Get("user_id"))
	assert.Equal(t, auth.RoleApprover, c.Get("user_role"))
	assert.Equal(t, f.login.Token, c.Get("token"))
	assert.Equal(t, 1, f.registry.Len())
}

func TestAuth_PersistedSession(t *testing.T) {
	f := setup(t)

	rec, c := call(t, f.middleware(), "/api/v1/campaigns", func(r *http.Request) {
		r.Header.Set(SessionHeader, f.login.SessionID)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	p, _ := PrincipalFrom(c)
	assert.Equal(t, auth.CredentialPersisted, p.Kind)
	assert.Nil(t, c.Get("token"))

	rec, _ = call(t, f.middleware(), "/api/v1/campaigns", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: SessionCookie, Value: f.login.SessionID})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name    string
		prepare func(*http.Request)
	}{
		{"no credential", nil},
		{"basic auth", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }},
		{"garbage token", bearer("not.a.jwt")},
		{"unknown session", func(r *http.Request) { r.Header.Set(SessionHeader, "2b1f0d3e-0000-4000-8000-000000000000") }},
		{"query token not enabled", func(r *http.Request) { r.URL.RawQuery = "token=" + f.login.Token }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, c := call(t, f.middleware(), "/api/v1/campaigns", tt.prepare)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", errorCode(t, rec))
			_, ok := PrincipalFrom(c)
			assert.False(t, ok)
		})
	}
}

func TestAuth_QueryToken(t *testing.T) {
	f := setup(t)
	mw := Auth(AuthConfig{Validator: f.svc.Authenticator(), QueryToken: true})

	rec, _ := call(t, mw, "/api/v1/campaign-history/export", func(r *http.Request) {
		r.URL.RawQuery = "token=" + f.login.Token
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_IdleSessionExpires(t *testing.T) {
	f := setup(t)
	mw := f.middleware()

	rec, _ := call(t, mw, "/api/v1/campaigns", bearer(f.login.Token))
	require.Equal(t, http.StatusOK, rec.Code)

	f.clock.Advance(20 * time.Minute)
	rec, _ = call(t, mw, "/api/v1/campaigns", bearer(f.login.Token))
	require.Equal(t, http.StatusOK, rec.Code, "activity resets the idle timer")

	f.clock.Advance(31 * time.Minute)
	rec, _ = call(t, mw, "/api/v1/campaigns", bearer(f.login.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_expired", errorCode(t, rec))
	assert.Equal(t, 0, f.registry.Len())

	// the session row is gone, so the token stays dead even with a fresh tracker
	rec, _ = call(t, mw, "/api/v1/campaigns", bearer(f.login.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_StatusPollingIsNotActivity(t *testing.T) {
	f := setup(t)
	mw := f.middleware()

	call(t, mw, "/api/v1/campaigns", bearer(f.login.Token))

	for i := 0; i < 3; i++ {
		f.clock.Advance(9 * time.Minute)
		rec, _ := call(t, mw, "/api/v1/auth/session", bearer(f.login.Token))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	f.clock.Advance(4 * time.Minute)
	rec, _ := call(t, mw, "/api/v1/auth/session", bearer(f.login.Token))
	assert.Equal(t, "session_expired", errorCode(t, rec))
}

func TestAuth_ExpiredSessionRow(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.svc.ExpireIdle(context.Background(), f.login.SessionID))

	rec, _ := call(t, f.middleware(), "/api/v1/campaigns", bearer(f.login.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session_expired", errorCode(t, rec))
}
