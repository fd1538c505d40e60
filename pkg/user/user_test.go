package user

import (
	"context"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/audit"
	"github.com/jordanlanch/campaigndesk/pkg/auth"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/database/dbtest"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *database.Client
	svc      *Service
	sessions *auth.SessionStore
	audit    *audit.Service
	admin    Actor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	sessions := auth.NewSessionStore(db)
	auditSvc := audit.NewService(db)
	adminID := dbtest.User(t, db, "admin@example.com", "관리자", auth.RoleAdmin)

	return &fixture{
		db:       db,
		svc:      NewService(db, sessions, auditSvc, logger.Nop()),
		sessions: sessions,
		audit:    auditSvc,
		admin:    Actor{ID: adminID, IPAddress: "10.0.0.1", UserAgent: "test"},
	}
}

func (f *fixture) passwordHash(t *testing.T, id int) string {
	t.Helper()
	b := f.db.Builder()
	var hash string
	require.NoError(t, database.QueryRow(context.Background(), f.db.DB,
		b.Select("password_hash").From(b.Table(table)).Where(entsql.EQ("id", id))).Scan(&hash))
	return hash
}

func TestCreate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	u, err := f.svc.Create(ctx, f.admin, CreateInput{
		Email: " Planner@Example.com ", Name: "김기획", Password: "s3cret-pass", Role: auth.RoleManager,
	})
	require.NoError(t, err)
	assert.Equal(t, "planner@example.com", u.Email)
	assert.Equal(t, auth.RoleManager, u.Role)
	assert.Equal(t, StatusActive, u.Status)
	assert.True(t, auth.CheckPassword(f.passwordHash(t, u.ID), "s3cret-pass"))

	_, err = f.svc.Create(ctx, f.admin, CreateInput{
		Email: "planner@example.com", Name: "중복", Password: "another-pass", Role: auth.RoleViewer,
	})
	assert.True(t, domain.IsConflict(err))

	records, err := f.audit.Recent(ctx, audit.Filter{Action: audit.ActionUserCreate})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.1", records[0].IPAddress)
}

func TestCreate_Validation(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"missing email", CreateInput{Name: "x", Password: "long-enough", Role: auth.RoleViewer}},
		{"unknown role", CreateInput{Email: "a@example.com", Name: "x", Password: "long-enough", Role: "owner"}},
		{"short password", CreateInput{Email: "a@example.com", Name: "x", Password: "short", Role: auth.RoleViewer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), f.admin, tt.in)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestUpdate_DisablingEndsSessions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	id := dbtest.User(t, f.db, "approver@example.com", "박승인", auth.RoleApprover)
	_, err := f.sessions.Create(ctx, f.db.DB, id, time.Hour, "", "")
	require.NoError(t, err)

	u, err := f.svc.Update(ctx, f.admin, id, UpdateInput{Status: StatusDisabled, Role: auth.RoleViewer})
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, u.Status)
	assert.Equal(t, auth.RoleViewer, u.Role)
	assert.Equal(t, "박승인", u.Name)

	b := f.db.Builder()
	n, err := database.Count(ctx, f.db.DB, b.Select(entsql.Count("*")).From(b.Table("sessions")).Where(entsql.EQ("user_id", id)))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate_Password(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	id := dbtest.User(t, f.db, "viewer@example.com", "열람자", auth.RoleViewer)

	_, err := f.svc.Update(ctx, f.admin, id, UpdateInput{Password: "short"})
	assert.True(t, domain.IsValidation(err))

	_, err = f.svc.Update(ctx, f.admin, id, UpdateInput{Password: "brand-new-pass"})
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(f.passwordHash(t, id), "brand-new-pass"))
}

func TestUpdate_SelfProtection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.admin, f.admin.ID, UpdateInput{Role: auth.RoleViewer})
	assert.True(t, domain.IsForbidden(err))

	_, err = f.svc.Update(ctx, f.admin, f.admin.ID, UpdateInput{Status: StatusDisabled})
	assert.True(t, domain.IsForbidden(err))

	u, err := f.svc.Update(ctx, f.admin, f.admin.ID, UpdateInput{Name: "최고관리자"})
	require.NoError(t, err)
	assert.Equal(t, "최고관리자", u.Name)
}

func TestUpdate_Invalid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Update(ctx, f.admin, 999, UpdateInput{Name: "x"})
	assert.True(t, domain.IsNotFound(err))

	_, err = f.svc.Update(ctx, f.admin, f.admin.ID, UpdateInput{Status: "banned"})
	assert.True(t, domain.IsValidation(err))
}

func TestDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.Delete(ctx, f.admin, f.admin.ID)
	assert.True(t, domain.IsForbidden(err))

	id := dbtest.User(t, f.db, "leaver@example.com", "퇴사자", auth.RoleViewer)
	require.NoError(t, f.svc.Delete(ctx, f.admin, id))

	_, err = f.svc.Get(ctx, id)
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(f.svc.Delete(ctx, f.admin, id)))

	records, err := f.audit.Recent(ctx, audit.Filter{Action: audit.ActionUserDelete})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.SeverityCritical, records[0].Severity)
}

func TestList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	dbtest.User(t, f.db, "kim@example.com", "김영업", auth.RoleManager)
	dbtest.User(t, f.db, "lee@example.com", "이승인", auth.RoleApprover)
	dbtest.User(t, f.db, "park@example.com", "박열람", auth.RoleViewer)

	_, total, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	list, total, err := f.svc.List(ctx, ListFilter{Role: auth.RoleApprover})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "lee@example.com", list[0].Email)

	list, total, err = f.svc.List(ctx, ListFilter{Search: "PARK@"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "박열람", list[0].Name)

	list, _, err = f.svc.List(ctx, ListFilter{Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
