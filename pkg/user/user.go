// Package user implements admin management of back-office accounts.
package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/listing"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/models"
)

const table = "users"

// Account statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// CreateInput creates an account
type CreateInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`
}

// UpdateInput changes an account. Empty fields are left as they are.
type UpdateInput struct {
	Name     string `json:"name" validate:"max=100"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Password string `json:"password"`
}

// ListFilter narrows List
type ListFilter struct {
	Page   int
	Limit  int
	Search string
	Role   string
	Status string
}

// Actor identifies the admin making a change, for the audit trail
type Actor struct {
	ID        int
	IPAddress string
	UserAgent string
}

// Service manages user accounts
type Service struct {
	db       *database.Client
	sessions *auth.SessionStore
	audit    *audit.Service
	log      logger.Logger
	now      func() time.Time
}

// NewService creates a user service. auditSvc may be nil.
func NewService(db *database.Client, sessions *auth.SessionStore, auditSvc *audit.Service, log logger.Logger) *Service {
	return &Service{
		db:       db,
		sessions: sessions,
		audit:    auditSvc,
		log:      log.With("component", "user"),
		now:      time.Now,
	}
}

var columns = []string{"id", "email", "name", "role", "status", "last_login_at", "created_at"}

func scan(rows *sql.Rows) (models.UserInfo, error) {
	var (
		u         models.UserInfo
		lastLogin sql.NullTime
	)
	if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &lastLogin, &u.CreatedAt); err != nil {
		return u, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLoginAt = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func filter(sel *entsql.Selector, f ListFilter) {
	if f.Role != "" {
		sel.Where(entsql.EQ("role", f.Role))
	}
	if f.Status != "" {
		sel.Where(entsql.EQ("status", f.Status))
	}
	if term := listing.SearchTerm(f.Search); term != "" {
		sel.Where(entsql.Or(entsql.ContainsFold("name", term), entsql.ContainsFold("email", term)))
	}
}

// List returns a page of accounts ordered by name
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.UserInfo, int, error) {
	b := s.db.Builder()
	p := listing.NewPage(f.Page, f.Limit)

	countSel := b.Select(entsql.Count("*")).From(b.Table(table))
	filter(countSel, f)
	total, err := database.Count(ctx, s.db.DB, countSel)
	if err != nil {
		return nil, 0, domain.NewInternalError(fmt.Errorf("failed to count users: %w", err))
	}

	sel := b.Select(columns...).From(b.Table(table))
	filter(sel, f)
	sel.OrderBy("name", "id").Limit(p.Limit).Offset(p.Offset())

	rows, err := database.Query(ctx, s.db.DB, sel)
	if err != nil {
		return nil, 0, domain.NewInternalError(fmt.Errorf("failed to list users: %w", err))
	}
	defer rows.Close()

	list := []models.UserInfo{}
	for rows.Next() {
		u, err := scan(rows)
		if err != nil {
			return nil, 0, domain.NewInternalError(fmt.Errorf("failed to scan user: %w", err))
		}
		list = append(list, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.NewInternalError(err)
	}
	return list, total, nil
}

// Get returns one account
func (s *Service) Get(ctx context.Context, id int) (*models.UserInfo, error) {
	b := s.db.Builder()
	rows, err := database.Query(ctx, s.db.DB, b.Select(columns...).From(b.Table(table)).Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to load user: %w", err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, domain.NewInternalError(err)
		}
		return nil, domain.NewNotFoundError("사용자를 찾을 수 없습니다.").WithDetails(map[string]any{"id": id})
	}
	u, err := scan(rows)
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to scan user: %w", err))
	}
	return &u, nil
}

// Create adds an active account with a bcrypt-hashed password
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*models.UserInfo, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return nil, domain.NewValidationError("이메일과 이름은 필수입니다.")
	}
	if !auth.ValidRole(in.Role) {
		return nil, invalidRole(in.Role)
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, domain.NewValidationError(fmt.Sprintf("비밀번호는 %d자 이상이어야 합니다.", auth.MinPasswordLength))
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	now := s.now().UTC()
	id, err := s.db.InsertID(ctx, s.db.DB, s.db.Builder().Insert(table).
		Columns("email", "name", "password_hash", "role", "status", "created_at", "updated_at").
		Values(email, name, hash, in.Role, StatusActive, now, now))
	if database.IsUniqueViolation(err) {
		return nil, domain.NewConflictError("이미 사용 중인 이메일입니다.").WithDetails(map[string]any{"email": email})
	}
	if err != nil {
		return nil, domain.NewInternalError(fmt.Errorf("failed to insert user: %w", err))
	}

	s.log.Info("user created", "user_id", id, "role", in.Role, "admin_id", actor.ID)
	s.auditLog(audit.ActionUserCreate, actor, id)
	return s.Get(ctx, id)
}

// Update changes name, role, status or password. Disabling an account or
// resetting its password ends its sessions. Admins cannot demote or disable
// themselves.
func (s *Service) Update(ctx context.Context, actor Actor, id int, in UpdateInput) (*models.UserInfo, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Role = strings.TrimSpace(in.Role)
	in.Status = strings.TrimSpace(in.Status)

	if in.Role != "" && !auth.ValidRole(in.Role) {
		return nil, invalidRole(in.Role)
	}
	if in.Status != "" && in.Status != StatusActive && in.Status != StatusDisabled {
		return nil, domain.NewValidationError("유효하지 않은 계정 상태입니다.").
			WithDetails(map[string]any{"allowed": []string{StatusActive, StatusDisabled}})
	}
	if in.Password != "" && len(in.Password) < auth.MinPasswordLength {
		return nil, domain.NewValidationError(fmt.Sprintf("비밀번호는 %d자 이상이어야 합니다.", auth.MinPasswordLength))
	}
	if id == actor.ID && ((in.Role != "" && in.Role != auth.RoleAdmin) || in.Status == StatusDisabled) {
		return nil, domain.NewForbiddenError("자신의 권한이나 상태는 변경할 수 없습니다.")
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	upd := s.db.Builder().Update(table).Set("updated_at", s.now().UTC())
	if in.Name != "" {
		upd.Set("name", in.Name)
	}
	if in.Role != "" {
		upd.Set("role", in.Role)
	}
	if in.Status != "" {
		upd.Set("status", in.Status)
	}
	if in.Password != "" {
		hash, err := auth.HashPassword(in.Password)
		if err != nil {
			return nil, domain.NewInternalError(err)
		}
		upd.Set("password_hash", hash)
	}
	endSessions := in.Password != "" || (in.Status == StatusDisabled && current.Status != StatusDisabled)

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := database.Exec(ctx, tx, upd.Where(entsql.EQ("id", id))); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		if endSessions && s.sessions != nil {
			if _, err := s.sessions.DeleteForUser(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}

	s.log.Info("user updated", "user_id", id, "admin_id", actor.ID, "sessions_ended", endSessions)
	s.auditLog(audit.ActionUserUpdate, actor, id)
	return s.Get(ctx, id)
}

// Delete removes an account. Admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, actor Actor, id int) error {
	if id == actor.ID {
		return domain.NewForbiddenError("자기 자신은 삭제할 수 없습니다.")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := database.Exec(ctx, s.db.DB, s.db.Builder().Delete(table).Where(entsql.EQ("id", id))); err != nil {
		return domain.NewInternalError(fmt.Errorf("failed to delete user: %w", err))
	}

	s.log.Info("user deleted", "user_id", id, "admin_id", actor.ID)
	s.auditLog(audit.ActionUserDelete, actor, id)
	return nil
}

func (s *Service) auditLog(action audit.Action, actor Actor, target int) {
	if s.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.audit.LogUserAdmin(ctx, action, actor.ID, target, actor.IPAddress, actor.UserAgent); err != nil {
		s.log.Warn("failed to write audit log", "action", action, "error", err)
	}
}

func invalidRole(role string) error {
	return domain.NewValidationError("유효하지 않은 역할입니다.").WithDetails(map[string]any{
		"role":    role,
		"allowed": []string{auth.RoleAdmin, auth.RoleManager, auth.RoleApprover, auth.RoleViewer},
	})
}

