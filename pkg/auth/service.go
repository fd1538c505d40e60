package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/cache"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/metrics"
	"github.com/jordanlanch/campaigndesk/pkg/models"
)

const resetKeyPrefix = "password_reset:"

// Config holds token and session lifetimes
type Config struct {
	JWTSecret          string
	JWTExpirationHours int
	SessionTTL         time.Duration
	RememberTTL        time.Duration
	ResetTokenTTL      time.Duration
	// ResetURL is the front-end page that accepts ?token=
	ResetURL string
}

func (c Config) withDefaults() Config {
	if c.JWTExpirationHours <= 0 {
		c.JWTExpirationHours = 24
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 8 * time.Hour
	}
	if c.RememberTTL <= 0 {
		c.RememberTTL = 30 * 24 * time.Hour
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = time.Hour
	}
	return c
}

// ResetMailer delivers password reset links
type ResetMailer interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetURL string) error
}

// LoginInput carries credentials and request metadata
type LoginInput struct {
	Email     string
	Password  string
	Remember  bool
	IPAddress string
	UserAgent string
}

// LoginResult is returned by Login and Refresh
type LoginResult struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
	User      models.UserInfo
}

// Service implements login, logout, refresh and password reset
type Service struct {
	db        *database.Client
	cfg       Config
	cache     *cache.Client
	blacklist *TokenBlacklist
	sessions  *SessionStore
	audit     *audit.Service
	mailer    ResetMailer
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithAudit records security events
func WithAudit(a *audit.Service) Option { return func(s *Service) { s.audit = a } }

// WithResetMailer enables password reset emails
func WithResetMailer(m ResetMailer) Option { return func(s *Service) { s.mailer = m } }

// WithMetrics enables login metrics
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService creates an auth service. cacheClient may be nil, in which case
// tokens cannot be blacklisted and password reset is unavailable.
func NewService(db *database.Client, cfg Config, cacheClient *cache.Client, sessions *SessionStore, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		cfg:      cfg.withDefaults(),
		cache:    cacheClient,
		sessions: sessions,
		log:      log.With("component", "auth"),
		now:      time.Now,
	}
	if cacheClient != nil {
		s.blacklist = NewTokenBlacklist(cacheClient)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticator returns an authenticator sharing this service's secret,
// blacklist and session store
func (s *Service) Authenticator() *Authenticator {
	return NewAuthenticator(s.db, s.cfg.JWTSecret, s.blacklist, s.sessions)
}

type account struct {
	info         models.UserInfo
	passwordHash string
}

// Login checks credentials, opens a persisted session and issues a JWT
// bound to it
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	acc, err := s.account(ctx, entsql.EQ("email", email))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewInternalError(err)
	}
	if acc == nil || !CheckPassword(acc.passwordHash, in.Password) {
		s.metrics.RecordLoginAttempt(false)
		s.auditLog(func(ctx context.Context) error { return s.audit.LogLoginFailed(ctx, email, in.IPAddress, in.UserAgent) })
		return nil, domain.NewUnauthorizedError("이메일 또는 비밀번호가 올바르지 않습니다.")
	}
	if acc.info.Status != "active" {
		s.metrics.RecordLoginAttempt(false)
		return nil, domain.NewUnauthorizedError("비활성화된 계정입니다. 관리자에게 문의하세요.")
	}

	ttl := s.cfg.SessionTTL
	if in.Remember {
		ttl = s.cfg.RememberTTL
	}
	now := s.now().UTC()
	var sess *StoredSession
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if sess, err = s.sessions.Create(ctx, tx, acc.info.ID, ttl, in.IPAddress, in.UserAgent); err != nil {
			return err
		}
		_, err = database.Exec(ctx, tx, s.db.Builder().Update("users").
			Set("last_login_at", now).
			Where(entsql.EQ("id", acc.info.ID)))
		return err
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}
	acc.info.LastLoginAt = &now

	result, err := s.issue(acc.info, sess.ID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordLoginAttempt(true)
	s.auditLog(func(ctx context.Context) error {
		return s.audit.LogUserLogin(ctx, acc.info.ID, in.IPAddress, in.UserAgent)
	})
	s.log.Info("user logged in", "user_id", acc.info.ID, "session_id", sess.ID, "remember", in.Remember)
	return result, nil
}

// Logout revokes the caller's token and deletes its session
func (s *Service) Logout(ctx context.Context, p *Principal, ipAddress, userAgent string) error {
	if err := s.revoke(ctx, p); err != nil {
		return err
	}
	s.auditLog(func(ctx context.Context) error { return s.audit.LogUserLogout(ctx, p.UserID, ipAddress, userAgent) })
	s.log.Info("user logged out", "user_id", p.UserID, "session_id", p.SessionID)
	return nil
}

// Expire ends a session that went idle
func (s *Service) Expire(ctx context.Context, p *Principal) error {
	if err := s.revoke(ctx, p); err != nil {
		return err
	}
	s.metrics.RecordSessionExpired()
	s.auditLog(func(ctx context.Context) error { return s.audit.LogSessionExpired(ctx, p.UserID, p.SessionID) })
	s.log.Info("session expired", "user_id", p.UserID, "session_id", p.SessionID)
	return nil
}

// ExpireIdle ends a session whose inactivity timer ran out while no request
// was in flight. Unknown or already expired sessions are ignored.
func (s *Service) ExpireIdle(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return nil
	}
	if err != nil {
		return domain.NewInternalError(err)
	}
	if err := s.sessions.Expire(ctx, sessionID); err != nil {
		return domain.NewInternalError(err)
	}
	s.metrics.RecordSessionExpired()
	s.auditLog(func(ctx context.Context) error { return s.audit.LogSessionExpired(ctx, sess.UserID, sessionID) })
	s.log.Info("idle session expired", "user_id", sess.UserID, "session_id", sessionID)
	return nil
}

// Refresh extends the caller's session and swaps the JWT for a fresh one
func (s *Service) Refresh(ctx context.Context, p *Principal) (*LoginResult, error) {
	if p.SessionID == "" {
		return nil, domain.NewValidationError("세션 정보가 없는 토큰은 갱신할 수 없습니다.")
	}
	if _, err := s.sessions.Extend(ctx, p.SessionID, s.cfg.SessionTTL); err != nil {
		return nil, domain.Wrap(err)
	}

	info, err := s.Me(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	result, err := s.issue(*info, p.SessionID)
	if err != nil {
		return nil, err
	}

	if p.Token != "" && s.blacklist != nil {
		if err := s.blacklist.Add(ctx, p.Token, p.ExpiresAt.Sub(s.now())); err != nil {
			s.log.Warn("failed to revoke refreshed token", "user_id", p.UserID, "error", err)
		}
	}
	return result, nil
}

// Me returns the user's profile
func (s *Service) Me(ctx context.Context, userID int) (*models.UserInfo, error) {
	acc, err := s.account(ctx, entsql.EQ("id", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("사용자를 찾을 수 없습니다.")
	}
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	return &acc.info, nil
}

// ForgotPassword emails a one-time reset link. Unknown addresses succeed
// silently so the response does not reveal which emails exist.
func (s *Service) ForgotPassword(ctx context.Context, email, ipAddress, userAgent string) error {
	if s.cache == nil {
		return domain.NewInternalError(errors.New("password reset requires redis"))
	}
	acc, err := s.account(ctx, entsql.EQ("email", normalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return domain.NewInternalError(err)
	}
	if acc.info.Status != "active" {
		return nil
	}

	token, err := GenerateResetToken()
	if err != nil {
		return domain.NewInternalError(err)
	}
	key := resetKeyPrefix + HashResetToken(token)
	if err := s.cache.Set(ctx, key, strconv.Itoa(acc.info.ID), s.cfg.ResetTokenTTL); err != nil {
		return domain.NewInternalError(fmt.Errorf("failed to store reset token: %w", err))
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordResetEmail(ctx, acc.info.Email, acc.info.Name, s.resetLink(token)); err != nil {
			s.log.Error("failed to send password reset email", "user_id", acc.info.ID, "error", err)
		}
	}
	s.auditLog(func(ctx context.Context) error {
		return s.audit.LogPasswordResetRequest(ctx, acc.info.ID, ipAddress, userAgent)
	})
	return nil
}

// ResetPassword consumes a reset token, sets the new password and ends all
// of the user's sessions
func (s *Service) ResetPassword(ctx context.Context, token, password, ipAddress, userAgent string) error {
	if len(password) < MinPasswordLength {
		return domain.NewValidationError(fmt.Sprintf("비밀번호는 %d자 이상이어야 합니다.", MinPasswordLength))
	}
	if s.cache == nil {
		return domain.NewInternalError(errors.New("password reset requires redis"))
	}

	raw, err := s.cache.Take(ctx, resetKeyPrefix+HashResetToken(strings.TrimSpace(token)))
	if cache.IsMiss(err) {
		return domain.NewValidationError("유효하지 않거나 만료된 재설정 링크입니다.")
	}
	if err != nil {
		return domain.NewInternalError(fmt.Errorf("failed to load reset token: %w", err))
	}
	userID, err := strconv.Atoi(raw)
	if err != nil {
		return domain.NewInternalError(fmt.Errorf("invalid user id in reset token: %w", err))
	}

	hash, err := HashPassword(password)
	if err != nil {
		return domain.NewInternalError(err)
	}
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := database.Exec(ctx, tx, s.db.Builder().Update("users").
			Set("password_hash", hash).
			Set("updated_at", s.now().UTC()).
			Where(entsql.EQ("id", userID)))
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NewValidationError("유효하지 않거나 만료된 재설정 링크입니다.")
		}
		_, err = s.sessions.DeleteForUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.Wrap(err)
	}

	s.auditLog(func(ctx context.Context) error { return s.audit.LogPasswordReset(ctx, userID, ipAddress, userAgent) })
	s.log.Info("password reset", "user_id", userID)
	return nil
}

// DeleteExpiredSessions is run by the cleanup job
func (s *Service) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx)
}

func (s *Service) issue(info models.UserInfo, sessionID string) (*LoginResult, error) {
	token, expiresAt, err := GenerateJWT(info.ID, info.Email, info.Role, sessionID, s.cfg.JWTSecret, s.cfg.JWTExpirationHours)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to sign token: %w", err))
	}
	return &LoginResult{Token: token, SessionID: sessionID, ExpiresAt: expiresAt, User: info}, nil
}

func (s *Service) revoke(ctx context.Context, p *Principal) error {
	if p.Token != "" && s.blacklist != nil {
		if err := s.blacklist.Add(ctx, p.Token, p.ExpiresAt.Sub(s.now())); err != nil {
			return domain.NewInternalError(fmt.Errorf("failed to revoke token: %w", err))
		}
	}
	if p.SessionID != "" {
		if err := s.sessions.Delete(ctx, p.SessionID); err != nil {
			return domain.NewInternalError(err)
		}
	}
	return nil
}

func (s *Service) resetLink(token string) string {
	base := s.cfg.ResetURL
	if base == "" {
		base = "/reset-password"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func (s *Service) account(ctx context.Context, where *entsql.Predicate) (*account, error) {
	b := s.db.Builder()
	var (
		acc       account
		lastLogin sql.NullTime
	)
	err := database.QueryRow(ctx, s.db.DB, b.Select("id", "email", "name", "role", "status",
		"password_hash", "last_login_at", "created_at").
		From(b.Table("users")).
		Where(where)).
		Scan(&acc.info.ID, &acc.info.Email, &acc.info.Name, &acc.info.Role, &acc.info.Status,
			&acc.passwordHash, &lastLogin, &acc.info.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		acc.info.LastLoginAt = &t
	}
	return &acc, nil
}

// auditLog writes an audit entry; failures are logged and never fail the
// calling operation
func (s *Service) auditLog(write func(ctx context.Context) error) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		s.log.Warn("failed to write audit log", "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
