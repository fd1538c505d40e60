package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/campaigndesk/pkg/database"
)

const sessionsTable = "sessions"

var (
	// ErrSessionNotFound is returned for unknown or deleted sessions
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned once expires_at has passed
	ErrSessionExpired = errors.New("session expired")
)

// StoredSession is a row of the sessions table
type StoredSession struct {
	ID         string
	UserID     int
	IPAddress  string
	UserAgent  string
	ExpiresAt  time.Time
	LastSeenAt time.Time
	CreatedAt  time.Time
}

// SessionStore persists server-side sessions
type SessionStore struct {
	db  *database.Client
	now func() time.Time
}

// NewSessionStore creates a session store
func NewSessionStore(db *database.Client) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// Create inserts a session valid for ttl
func (s *SessionStore) Create(ctx context.Context, q database.Querier, userID int, ttl time.Duration, ipAddress, userAgent string) (*StoredSession, error) {
	now := s.now().UTC()
	sess := &StoredSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		ExpiresAt:  now.Add(ttl),
		LastSeenAt: now,
		CreatedAt:  now,
	}
	_, err := database.Exec(ctx, q, s.db.Builder().Insert(sessionsTable).
		Columns("id", "user_id", "ip_address", "user_agent", "expires_at", "last_seen_at", "created_at").
		Values(sess.ID, sess.UserID, sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.LastSeenAt, sess.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get returns a live session, ErrSessionNotFound or ErrSessionExpired
func (s *SessionStore) Get(ctx context.Context, id string) (*StoredSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	b := s.db.Builder()
	var sess StoredSession
	err := database.QueryRow(ctx, s.db.DB, b.Select("id", "user_id", "ip_address", "user_agent",
		"expires_at", "last_seen_at", "created_at").
		From(b.Table(sessionsTable)).
		Where(entsql.EQ("id", id))).
		Scan(&sess.ID, &sess.UserID, &sess.IPAddress, &sess.UserAgent, &sess.ExpiresAt, &sess.LastSeenAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// Extend records activity and pushes the expiry to now+ttl
func (s *SessionStore) Extend(ctx context.Context, id string, ttl time.Duration) (time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	_, err := database.Exec(ctx, s.db.DB, s.db.Builder().Update(sessionsTable).
		Set("last_seen_at", now).
		Set("expires_at", expiresAt).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to extend session: %w", err)
	}
	return expiresAt, nil
}

// Expire ends a session now without deleting it, so the next request with
// it is told the session expired rather than that it does not exist
func (s *SessionStore) Expire(ctx context.Context, id string) error {
	_, err := database.Exec(ctx, s.db.DB, s.db.Builder().Update(sessionsTable).
		Set("expires_at", s.now().UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	return nil
}

// Delete removes one session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	_, err := database.Exec(ctx, s.db.DB, s.db.Builder().Delete(sessionsTable).Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteForUser removes every session of a user
func (s *SessionStore) DeleteForUser(ctx context.Context, q database.Querier, userID int) (int64, error) {
	res, err := database.Exec(ctx, q, s.db.Builder().Delete(sessionsTable).Where(entsql.EQ("user_id", userID)))
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return res.RowsAffected()
}

// DeleteExpired removes sessions past their expiry
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := database.Exec(ctx, s.db.DB, s.db.Builder().Delete(sessionsTable).
		Where(entsql.LTE("expires_at", s.now().UTC())))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
