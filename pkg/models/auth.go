package models

import "time"

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	// Remember keeps the server-side session for the longer remember period
	Remember bool `json:"remember"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	SessionID string    `json:"session_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *UserInfo `json:"user"`
}

// UserInfo represents user information in responses
type UserInfo struct {
	ID          int        `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ForgotPasswordRequest represents a password reset request
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents a password reset confirmation
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// SessionStatusResponse reports the inactivity state of the caller's session
type SessionStatusResponse struct {
	Success          bool   `json:"success"`
	State            string `json:"state"`
	RemainingSeconds int    `json:"remaining_seconds"`
	WarningSeconds   int    `json:"warning_seconds"`
}
