package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/session"
	"github.com/labstack/echo/v4"
)

const (
	// SessionHeader carries a persisted session id for clients that do not hold a JWT
	SessionHeader = "X-Session-ID"
	// SessionCookie is the cookie alternative to SessionHeader
	SessionCookie = "session_id"

	principalKey = "principal"
)

// Validator resolves a credential to the user behind it
type Validator interface {
	Validate(ctx context.Context, cred auth.Credential) (*auth.Principal, error)
}

// Expirer revokes a session that timed out through inactivity
type Expirer interface {
	Expire(ctx context.Context, p *auth.Principal) error
}

// AuthConfig wires the auth middleware
type AuthConfig struct {
	Validator Validator
	// Sessions tracks inactivity; nil disables idle expiry
	Sessions *session.Registry
	Expirer  Expirer
	// Passive requests read session state without counting as activity
	Passive func(c echo.Context) bool
	// QueryToken also accepts ?token= for download links where headers cannot be set
	QueryToken bool
}

// Auth authenticates every request with a bearer JWT or a persisted session
// id, records activity on the session and rejects idle sessions with
// 401 session_expired. It sets "principal", "user_id", "user_role" and
// "token" on the context.
func Auth(cfg AuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cred, ok := CredentialFrom(c, cfg.QueryToken)
			if !ok {
				return apierrors.UnauthorizedError(c, "missing credential")
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			p, err := cfg.Validator.Validate(ctx, cred)
			if err != nil {
				if auth.IsSessionExpired(err) {
					return apierrors.SessionExpiredError(c)
				}
				return apierrors.FromDomain(c, err)
			}

			if cfg.Sessions != nil && p.SessionID != "" {
				if idle(cfg, c, p.SessionID) {
					if cfg.Expirer != nil {
						if err := cfg.Expirer.Expire(ctx, p); err != nil {
							log.Printf("⚠️  Failed to revoke idle session %s: %v", p.SessionID, err)
						}
					}
					cfg.Sessions.Remove(p.SessionID)
					return apierrors.SessionExpiredError(c)
				}
			}

			c.Set(principalKey, p)
			c.Set("user_id", p.UserID)
			c.Set("user_role", p.Role)
			if p.Token != "" {
				c.Set("token", p.Token)
			}

			return next(c)
		}
	}
}

func idle(cfg AuthConfig, c echo.Context, sessionID string) bool {
	if cfg.Passive != nil && cfg.Passive(c) {
		return cfg.Sessions.Status(sessionID).State == session.StateExpired
	}
	return cfg.Sessions.Touch(sessionID) == session.StateExpired
}

// CredentialFrom extracts the caller's credential. A bearer token wins over a
// session id; the session id is read from SessionHeader, then SessionCookie.
func CredentialFrom(c echo.Context, queryToken bool) (auth.Credential, bool) {
	req := c.Request()

	if h := req.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && strings.TrimSpace(parts[1]) != "" {
			return auth.Stateless(strings.TrimSpace(parts[1])), true
		}
		return auth.Credential{}, false
	}

	if id := strings.TrimSpace(req.Header.Get(SessionHeader)); id != "" {
		return auth.Persisted(id), true
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return auth.Persisted(cookie.Value), true
	}

	if queryToken {
		if token := c.QueryParam("token"); token != "" {
			return auth.Stateless(token), true
		}
	}
	return auth.Credential{}, false
}

// PrincipalFrom returns the principal stored by Auth
func PrincipalFrom(c echo.Context) (*auth.Principal, bool) {
	p, ok := c.Get(principalKey).(*auth.Principal)
	return p, ok && p != nil
}

// PathIs matches requests whose route path is one of paths; use it for AuthConfig.Passive
func PathIs(paths ...string) func(c echo.Context) bool {
	return func(c echo.Context) bool {
		for _, p := range paths {
			if c.Path() == p {
				return true
			}
		}
		return false
	}
}
