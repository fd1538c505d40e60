package handlers

import (
	"net/http"
	"time"

	apierrors "github.com/jordanlanch/campaigndesk/pkg/api/errors"
	"github.com/jordanlanch/campaigndesk/pkg/api/middleware"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/models"
	"github.com/jordanlanch/campaigndesk/pkg/session"
	"github.com/labstack/echo/v4"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth         *auth.Service
	sessions     *session.Registry
	secureCookie bool
}

// NewAuthHandler creates a new auth handler. sessions may be nil when idle
// tracking is disabled.
func NewAuthHandler(authSvc *auth.Service, sessions *session.Registry, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: authSvc, sessions: sessions, secureCookie: secureCookie}
}

// Login godoc
// @Summary Log in
// @Description Check credentials, open a server-side session and issue a JWT bound to it
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 401 {object} models.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := timeout(c)
	defer cancel()

	ip, ua := audit.GetRequestContext(c)
	res, err := h.auth.Login(ctx, auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Remember:  req.Remember,
		IPAddress: ip,
		UserAgent: ua,
	})
	if err != nil {
		return apierrors.FromDomain(c, err)
	}

	if h.sessions != nil {
		h.sessions.Reset(res.SessionID)
	}
	h.setSessionCookie(c, res.SessionID, res.ExpiresAt)
	return c.JSON(http.StatusOK, authResponse(res))
}

// Logout godoc
// @Summary Log out
// @Description Revoke the caller's token and delete its session
// @Tags Authentication
// @Security BearerAuth
// @Success 200 {object} models.SuccessResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}

	ctx, cancel := timeout(c)
	defer cancel()

	ip, ua := audit.GetRequestContext(c)
	if err := h.auth.Logout(ctx, p, ip, ua); err != nil {
		return apierrors.FromDomain(c, err)
	}
	if h.sessions != nil && p.SessionID != "" {
		h.sessions.Remove(p.SessionID)
	}
	h.setSessionCookie(c, "", time.Unix(0, 0))
	return done(c, "로그아웃되었습니다.")
}

// Me godoc
// @Summary Current user
// @Tags Authentication
// @Security BearerAuth
// @Success 200 {object} models.DataResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}

	ctx, cancel := timeout(c)
	defer cancel()

	info, err := h.auth.Me(ctx, p.UserID)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	return ok(c, info)
}

// Session reports how long the caller's session has left before it expires
// through inactivity. Polling it does not count as activity.
func (h *AuthHandler) Session(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}
	if h.sessions == nil || p.SessionID == "" {
		return c.JSON(http.StatusOK, models.SessionStatusResponse{Success: true, State: session.StateActive.String()})
	}

	st := h.sessions.Status(p.SessionID)
	return c.JSON(http.StatusOK, models.SessionStatusResponse{
		Success:          true,
		State:            st.State.String(),
		RemainingSeconds: int(st.Remaining.Seconds()),
		WarningSeconds:   int(st.Warning.Seconds()),
	})
}

// Refresh godoc
// @Summary Refresh token
// @Description Extend the session and issue a new JWT. Restarts the inactivity timer.
// @Tags Authentication
// @Security BearerAuth
// @Success 200 {object} models.AuthResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return unauthorized(c)
	}

	ctx, cancel := timeout(c)
	defer cancel()

	res, err := h.auth.Refresh(ctx, p)
	if err != nil {
		return apierrors.FromDomain(c, err)
	}
	if h.sessions != nil {
		h.sessions.Reset(res.SessionID)
	}
	h.setSessionCookie(c, res.SessionID, res.ExpiresAt)
	return c.JSON(http.StatusOK, authResponse(res))
}

// ForgotPassword godoc
// @Summary Request a password reset email
// @Tags Authentication
// @Accept json
// @Param request body models.ForgotPasswordRequest true "Email"
// @Success 200 {object} models.SuccessResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req models.ForgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := timeout(c)
	defer cancel()

	ip, ua := audit.GetRequestContext(c)
	if err := h.auth.ForgotPassword(ctx, req.Email, ip, ua); err != nil {
		return apierrors.FromDomain(c, err)
	}
	return done(c, "등록된 이메일이라면 비밀번호 재설정 안내가 발송됩니다.")
}

// ResetPassword godoc
// @Summary Reset password with a token from the reset email
// @Tags Authentication
// @Accept json
// @Param request body models.ResetPasswordRequest true "Token and new password"
// @Success 200 {object} models.SuccessResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req models.ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := timeout(c)
	defer cancel()

	ip, ua := audit.GetRequestContext(c)
	if err := h.auth.ResetPassword(ctx, req.Token, req.Password, ip, ua); err != nil {
		return apierrors.FromDomain(c, err)
	}
	return done(c, "비밀번호가 변경되었습니다. 다시 로그인해 주세요.")
}

func (h *AuthHandler) setSessionCookie(c echo.Context, id string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    id,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func authResponse(res *auth.LoginResult) models.AuthResponse {
	user := res.User
	return models.AuthResponse{
		Success:   true,
		Token:     res.Token,
		SessionID: res.SessionID,
		ExpiresAt: res.ExpiresAt,
		User:      &user,
	}
}
