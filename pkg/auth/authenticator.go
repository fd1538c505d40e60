package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
)

// CredentialKind tells which session model a Credential belongs to
type CredentialKind int

const (
	// CredentialStateless is a signed JWT carrying its own expiry
	CredentialStateless CredentialKind = iota + 1
	// CredentialPersisted is the id of a row in the sessions table
	CredentialPersisted
)

func (k CredentialKind) String() string {
	switch k {
	case CredentialStateless:
		return "stateless"
	case CredentialPersisted:
		return "persisted"
	}
	return "unknown"
}

// Credential is what a caller presented. Exactly one of Token or SessionID
// is set, matching Kind.
type Credential struct {
	Kind      CredentialKind
	Token     string
	SessionID string
}

// Stateless wraps a bearer token
func Stateless(token string) Credential {
	return Credential{Kind: CredentialStateless, Token: token}
}

// Persisted wraps a session id
func Persisted(sessionID string) Credential {
	return Credential{Kind: CredentialPersisted, SessionID: sessionID}
}

// Principal is the authenticated caller
type Principal struct {
	UserID    int
	Email     string
	Name      string
	Role      string
	SessionID string
	Kind      CredentialKind
	Token     string
	ExpiresAt time.Time
}

// IsAdmin reports whether the caller has the admin role
func (p *Principal) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }

// Roles
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleApprover = "approver"
	RoleViewer   = "viewer"
)

// ValidRole reports whether r is a known role
func ValidRole(r string) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleApprover, RoleViewer:
		return true
	}
	return false
}

// Authenticator resolves both credential kinds to a Principal
type Authenticator struct {
	db        *database.Client
	secret    string
	blacklist *TokenBlacklist
	sessions  *SessionStore
}

// NewAuthenticator creates an authenticator. blacklist may be nil when
// Redis is not configured.
func NewAuthenticator(db *database.Client, secret string, blacklist *TokenBlacklist, sessions *SessionStore) *Authenticator {
	return &Authenticator{db: db, secret: secret, blacklist: blacklist, sessions: sessions}
}

// Validate checks a credential and loads the active user behind it. A JWT
// that names a session is only valid while that session row is live, so
// deleting the row revokes the token too.
func (a *Authenticator) Validate(ctx context.Context, cred Credential) (*Principal, error) {
	var p Principal
	switch cred.Kind {
	case CredentialStateless:
		if cred.Token == "" {
			return nil, domain.NewUnauthorizedError("인증 토큰이 필요합니다.")
		}
		claims, err := ValidateJWTWithBlacklist(ctx, cred.Token, a.secret, a.blacklist)
		if err != nil {
			if errors.Is(err, ErrTokenRevoked) {
				return nil, domain.NewUnauthorizedError("로그아웃된 토큰입니다.")
			}
			return nil, domain.NewUnauthorizedError("유효하지 않은 토큰입니다.")
		}
		if claims.SessionID != "" {
			if _, err := a.session(ctx, claims.SessionID); err != nil {
				return nil, err
			}
		}
		p.UserID = claims.UserID
		p.SessionID = claims.SessionID
		p.Token = cred.Token
		if claims.ExpiresAt != nil {
			p.ExpiresAt = claims.ExpiresAt.Time
		}

	case CredentialPersisted:
		sess, err := a.session(ctx, cred.SessionID)
		if err != nil {
			return nil, err
		}
		p.UserID = sess.UserID
		p.SessionID = sess.ID
		p.ExpiresAt = sess.ExpiresAt

	default:
		return nil, domain.NewUnauthorizedError("인증 정보가 필요합니다.")
	}
	p.Kind = cred.Kind

	var status string
	b := a.db.Builder()
	err := database.QueryRow(ctx, a.db.DB, b.Select("email", "name", "role", "status").
		From(b.Table("users")).
		Where(entsql.EQ("id", p.UserID))).Scan(&p.Email, &p.Name, &p.Role, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewUnauthorizedError("사용자를 찾을 수 없습니다.")
	}
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to load user: %w", err))
	}
	if status != "active" {
		return nil, domain.NewUnauthorizedError("비활성화된 계정입니다.")
	}
	return &p, nil
}

func (a *Authenticator) session(ctx context.Context, id string) (*StoredSession, error) {
	sess, err := a.sessions.Get(ctx, id)
	switch {
	case errors.Is(err, ErrSessionExpired):
		return nil, &domain.DomainError{
			Code:    domain.ErrCodeUnauthorized,
			Message: "세션이 만료되었습니다. 다시 로그인해주세요.",
			Err:     err,
		}
	case errors.Is(err, ErrSessionNotFound):
		return nil, domain.NewUnauthorizedError("세션이 존재하지 않습니다. 다시 로그인해주세요.")
	case err != nil:
		return nil, domain.NewInternalError(err)
	}
	return sess, nil
}

// IsSessionExpired reports whether err means the credential's session timed out
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
