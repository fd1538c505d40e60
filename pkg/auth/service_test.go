package auth

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/database/dbtest"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resetMail struct {
	to, name, link string
}

type fakeResetMailer struct {
	mu   sync.Mutex
	sent []resetMail
}

func (m *fakeResetMailer) SendPasswordResetEmail(_ context.Context, toEmail, toName, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, resetMail{toEmail, toName, resetURL})
	return nil
}

type authFixture struct {
	db       *database.Client
	svc      *Service
	sessions *SessionStore
	audit    *audit.Service
	mailer   *fakeResetMailer
	userID   int
}

func setupAuth(t *testing.T) *authFixture {
	t.Helper()
	db := dbtest.Open(t)
	client, _ := setupTestRedis(t)

	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	userID := dbtest.Insert(t, db, "users", dbtest.Stamped(map[string]any{
		"email":         "manager@example.com",
		"name":          "김매니저",
		"password_hash": hash,
		"role":          RoleManager,
		"status":        "active",
	}))

	sessions := NewSessionStore(db)
	auditSvc := audit.NewService(db)
	mailer := &fakeResetMailer{}
	svc := NewService(db, Config{JWTSecret: testSecret, ResetURL: "https://app.example.com/reset"},
		client, sessions, logger.Nop(), WithAudit(auditSvc), WithResetMailer(mailer))

	return &authFixture{db: db, svc: svc, sessions: sessions, audit: auditSvc, mailer: mailer, userID: userID}
}

func (f *authFixture) login(t *testing.T) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginInput{
		Email: " Manager@Example.com ", Password: "correct-horse", IPAddress: "10.0.0.1", UserAgent: "test",
	})
	require.NoError(t, err)
	return res
}

func TestLogin_IssuesTokenBoundToSession(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()

	res := f.login(t)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, f.userID, res.User.ID)
	assert.Equal(t, RoleManager, res.User.Role)
	assert.NotNil(t, res.User.LastLoginAt)

	authn := f.svc.Authenticator()

	p, err := authn.Validate(ctx, Stateless(res.Token))
	require.NoError(t, err)
	assert.Equal(t, f.userID, p.UserID)
	assert.Equal(t, res.SessionID, p.SessionID)
	assert.Equal(t, CredentialStateless, p.Kind)
	assert.Equal(t, "김매니저", p.Name)

	p, err = authn.Validate(ctx, Persisted(res.SessionID))
	require.NoError(t, err)
	assert.Equal(t, f.userID, p.UserID)
	assert.Equal(t, CredentialPersisted, p.Kind)
	assert.Empty(t, p.Token)

	logs, err := f.audit.Recent(ctx, audit.Filter{Action: audit.ActionUserLogin})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestLogin_Rejections(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, LoginInput{Email: "manager@example.com", Password: "wrong"})
	assert.True(t, domain.IsUnauthorized(err))

	_, err = f.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "correct-horse"})
	assert.True(t, domain.IsUnauthorized(err))

	failed, err := f.audit.Recent(ctx, audit.Filter{Action: audit.ActionUserLoginFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	_, err = database.Exec(ctx, f.db.DB, f.db.Builder().Update("users").Set("status", "disabled"))
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, LoginInput{Email: "manager@example.com", Password: "correct-horse"})
	assert.True(t, domain.IsUnauthorized(err))
}

func TestValidate_DisabledUserLosesAccess(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	res := f.login(t)

	_, err := database.Exec(ctx, f.db.DB, f.db.Builder().Update("users").Set("status", "disabled"))
	require.NoError(t, err)

	_, err = f.svc.Authenticator().Validate(ctx, Stateless(res.Token))
	assert.True(t, domain.IsUnauthorized(err))
}

func TestValidate_BadCredentials(t *testing.T) {
	f := setupAuth(t)
	authn := f.svc.Authenticator()
	ctx := context.Background()

	tests := []struct {
		name string
		cred Credential
	}{
		{"empty", Credential{}},
		{"empty token", Stateless("")},
		{"garbage token", Stateless("not.a.jwt")},
		{"unknown session", Persisted("0b6c5d1e-2f0a-4a53-9f39-3a1f0d1c2b3a")},
		{"malformed session", Persisted("1 OR 1=1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authn.Validate(ctx, tt.cred)
			assert.True(t, domain.IsUnauthorized(err), "got %v", err)
		})
	}
}

func TestLogout_RevokesTokenAndSession(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	res := f.login(t)
	authn := f.svc.Authenticator()

	p, err := authn.Validate(ctx, Stateless(res.Token))
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, p, "10.0.0.1", "test"))

	_, err = authn.Validate(ctx, Stateless(res.Token))
	assert.True(t, domain.IsUnauthorized(err))
	_, err = authn.Validate(ctx, Persisted(res.SessionID))
	assert.True(t, domain.IsUnauthorized(err))

	logs, err := f.audit.Recent(ctx, audit.Filter{UserID: f.userID, Action: audit.ActionUserLogout})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRefresh_ReplacesToken(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	res := f.login(t)
	authn := f.svc.Authenticator()

	p, err := authn.Validate(ctx, Stateless(res.Token))
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, p)
	require.NoError(t, err)
	assert.NotEqual(t, res.Token, refreshed.Token)
	assert.Equal(t, res.SessionID, refreshed.SessionID)

	_, err = authn.Validate(ctx, Stateless(refreshed.Token))
	assert.NoError(t, err)
	_, err = authn.Validate(ctx, Stateless(res.Token))
	assert.True(t, domain.IsUnauthorized(err), "the old token is revoked")

	_, err = f.svc.Refresh(ctx, &Principal{UserID: f.userID})
	assert.True(t, domain.IsValidation(err))
}

func TestSessionStore_Expiry(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	res := f.login(t)

	f.sessions.now = func() time.Time { return time.Now().Add(9 * time.Hour) }

	_, err := f.sessions.Get(ctx, res.SessionID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = f.svc.Authenticator().Validate(ctx, Stateless(res.Token))
	assert.True(t, domain.IsUnauthorized(err), "the token dies with its session")
	assert.True(t, IsSessionExpired(err))

	n, err := f.svc.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.sessions.Get(ctx, res.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLogin_RememberKeepsSessionLonger(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()

	res, err := f.svc.Login(ctx, LoginInput{Email: "manager@example.com", Password: "correct-horse", Remember: true})
	require.NoError(t, err)

	sess, err := f.sessions.Get(ctx, res.SessionID)
	require.NoError(t, err)
	assert.True(t, time.Until(sess.ExpiresAt) > 24*time.Hour)
}

func TestExpire_EndsIdleSession(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	res := f.login(t)
	authn := f.svc.Authenticator()

	p, err := authn.Validate(ctx, Stateless(res.Token))
	require.NoError(t, err)
	require.NoError(t, f.svc.Expire(ctx, p))

	_, err = authn.Validate(ctx, Stateless(res.Token))
	assert.True(t, domain.IsUnauthorized(err))

	logs, err := f.audit.Recent(ctx, audit.Filter{Action: audit.ActionSessionExpired})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.SessionID, logs[0].ResourceID)
}

func TestExpireIdle_MarksSessionExpired(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	res := f.login(t)

	require.NoError(t, f.svc.ExpireIdle(ctx, res.SessionID))

	_, err := f.svc.Authenticator().Validate(ctx, Persisted(res.SessionID))
	assert.True(t, IsSessionExpired(err), "an idle session reads as expired, not missing")

	// a second timer firing for the same session is a no-op
	require.NoError(t, f.svc.ExpireIdle(ctx, res.SessionID))
	require.NoError(t, f.svc.ExpireIdle(ctx, "not-a-session"))

	logs, err := f.audit.Recent(ctx, audit.Filter{Action: audit.ActionSessionExpired})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestPasswordReset(t *testing.T) {
	f := setupAuth(t)
	ctx := context.Background()
	old := f.login(t)

	require.NoError(t, f.svc.ForgotPassword(ctx, "MANAGER@example.com", "10.0.0.1", "test"))
	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, "manager@example.com", mail.to)

	link, err := url.Parse(mail.link)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", link.Host)
	token := link.Query().Get("token")
	require.Len(t, token, 64)

	err = f.svc.ResetPassword(ctx, token, "short", "", "")
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, f.svc.ResetPassword(ctx, token, "battery-staple", "10.0.0.1", "test"))

	_, err = f.svc.Login(ctx, LoginInput{Email: "manager@example.com", Password: "correct-horse"})
	assert.True(t, domain.IsUnauthorized(err))
	_, err = f.svc.Login(ctx, LoginInput{Email: "manager@example.com", Password: "battery-staple"})
	assert.NoError(t, err)

	_, err = f.svc.Authenticator().Validate(ctx, Persisted(old.SessionID))
	assert.True(t, domain.IsUnauthorized(err), "reset ends existing sessions")

	err = f.svc.ResetPassword(ctx, token, "another-password", "", "")
	assert.True(t, domain.IsValidation(err), "reset tokens are single use")
}

func TestForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	f := setupAuth(t)

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "nobody@example.com", "", ""))
	assert.Empty(t, f.mailer.sent)
}

func TestPasswordReset_WithoutRedis(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, Config{JWTSecret: testSecret}, nil, NewSessionStore(db), logger.Nop())

	err := svc.ForgotPassword(context.Background(), "manager@example.com", "", "")
	assert.Equal(t, domain.ErrCodeInternal, domain.CodeOf(err))
}

func TestMe(t *testing.T) {
	f := setupAuth(t)

	me, err := f.svc.Me(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, "manager@example.com", me.Email)

	_, err = f.svc.Me(context.Background(), 4040)
	assert.True(t, domain.IsNotFound(err))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "other"))

	tok, err := GenerateResetToken()
	require.NoError(t, err)
	assert.Len(t, tok, 64)
	assert.Len(t, HashResetToken(tok), 64)
	assert.NotEqual(t, tok, HashResetToken(tok))
}
