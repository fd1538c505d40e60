// Package audit records security events (logins, logouts, password resets,
// user administration) in the audit_logs table. Campaign changes are
// tracked separately by the history package.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
)

const table = "audit_logs"

// Action names an audited event
type Action string

const (
	ActionUserLogin          Action = "user_login"
	ActionUserLoginFailed    Action = "user_login_failed"
	ActionUserLogout         Action = "user_logout"
	ActionSessionExpired     Action = "session_expired"
	ActionPasswordResetReq   Action = "password_reset_requested"
	ActionPasswordReset      Action = "password_reset"
	ActionUserCreate         Action = "user_create"
	ActionUserUpdate         Action = "user_update"
	ActionUserDelete         Action = "user_delete"
	ActionHistoryExport      Action = "history_export"
	ActionChannelCredentials Action = "channel_credentials_update"
)

// Severity of an audit entry
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Service handles audit logging
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new audit service
func NewService(db *database.Client) *Service {
	return &Service{
		db:  db,
		now: time.Now,
	}
}

// LogEntry represents an audit log entry
type LogEntry struct {
	UserID       *int
	Action       Action
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Severity     Severity
	Description  string
}

// Record is a stored audit log entry
type Record struct {
	ID           int       `json:"id"`
	UserID       *int      `json:"user_id,omitempty"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Severity     Severity  `json:"severity"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// Log creates a new audit log entry
func (s *Service) Log(ctx context.Context, entry LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}
	var userID sql.NullInt64
	if entry.UserID != nil {
		userID = sql.NullInt64{Int64: int64(*entry.UserID), Valid: true}
	}

	_, err := database.Exec(ctx, s.db.DB, s.db.Builder().Insert(table).
		Columns("user_id", "action", "resource_type", "resource_id", "ip_address",
			"user_agent", "severity", "description", "created_at").
		Values(userID, string(entry.Action), entry.ResourceType, entry.ResourceID, entry.IPAddress,
			entry.UserAgent, string(entry.Severity), entry.Description, s.now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// LogUserLogin logs a user login event
func (s *Service) LogUserLogin(ctx context.Context, userID int, ipAddress, userAgent string) error {
	return s.Log(ctx, LogEntry{
		UserID:      &userID,
		Action:      ActionUserLogin,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Description: "User logged in successfully",
	})
}

// LogLoginFailed logs a rejected login attempt
func (s *Service) LogLoginFailed(ctx context.Context, email, ipAddress, userAgent string) error {
	return s.Log(ctx, LogEntry{
		Action:       ActionUserLoginFailed,
		ResourceType: "email",
		ResourceID:   email,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Severity:     SeverityWarning,
		Description:  "Login rejected",
	})
}

// LogUserLogout logs a user logout event
func (s *Service) LogUserLogout(ctx context.Context, userID int, ipAddress, userAgent string) error {
	return s.Log(ctx, LogEntry{
		UserID:      &userID,
		Action:      ActionUserLogout,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Description: "User logged out",
	})
}

// LogSessionExpired logs a session ended by inactivity
func (s *Service) LogSessionExpired(ctx context.Context, userID int, sessionID string) error {
	return s.Log(ctx, LogEntry{
		UserID:       &userID,
		Action:       ActionSessionExpired,
		ResourceType: "session",
		ResourceID:   sessionID,
		Description:  "Session expired after inactivity",
	})
}

// LogPasswordResetRequest logs a password reset email being issued
func (s *Service) LogPasswordResetRequest(ctx context.Context, userID int, ipAddress, userAgent string) error {
	return s.Log(ctx, LogEntry{
		UserID:      &userID,
		Action:      ActionPasswordResetReq,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Description: "Password reset requested",
	})
}

// LogPasswordReset logs a completed password reset
func (s *Service) LogPasswordReset(ctx context.Context, userID int, ipAddress, userAgent string) error {
	return s.Log(ctx, LogEntry{
		UserID:      &userID,
		Action:      ActionPasswordReset,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Severity:    SeverityWarning,
		Description: "Password reset with emailed token",
	})
}

// LogUserAdmin logs an admin changing another user
func (s *Service) LogUserAdmin(ctx context.Context, action Action, adminID, targetUserID int, ipAddress, userAgent string) error {
	severity := SeverityWarning
	if action == ActionUserDelete {
		severity = SeverityCritical
	}
	return s.Log(ctx, LogEntry{
		UserID:       &adminID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   strconv.Itoa(targetUserID),
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		Severity:     severity,
		Description:  fmt.Sprintf("Admin %d changed user %d", adminID, targetUserID),
	})
}

// Filter narrows Recent
type Filter struct {
	UserID int
	Action Action
	Limit  int
}

// Recent returns the newest entries matching f
func (s *Service) Recent(ctx context.Context, f Filter) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	b := s.db.Builder()
	sel := b.Select("id", "user_id", "action", "resource_type", "resource_id", "ip_address",
		"user_agent", "severity", "description", "created_at").
		From(b.Table(table))
	if f.UserID > 0 {
		sel.Where(entsql.EQ("user_id", f.UserID))
	}
	if f.Action != "" {
		sel.Where(entsql.EQ("action", string(f.Action)))
	}
	sel.OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).Limit(f.Limit)

	rows, err := database.Query(ctx, s.db.DB, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	list := []Record{}
	for rows.Next() {
		var (
			r      Record
			userID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &userID, &r.Action, &r.ResourceType, &r.ResourceID, &r.IPAddress,
			&r.UserAgent, &r.Severity, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if userID.Valid {
			id := int(userID.Int64)
			r.UserID = &id
		}
		list = append(list, r)
	}
	return list, rows.Err()
}
