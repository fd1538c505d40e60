// Package history is the append-only audit trail of campaign state changes.
// Rows are only ever inserted; nothing in this repository updates or deletes them.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/listing"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
)

// ActionType classifies a history row.
type ActionType string

const (
	ActionCreated   ActionType = "created"
	ActionUpdated   ActionType = "updated"
	ActionApproved  ActionType = "approved"
	ActionRejected  ActionType = "rejected"
	ActionStarted   ActionType = "started"
	ActionPaused    ActionType = "paused"
	ActionCompleted ActionType = "completed"
	ActionCancelled ActionType = "cancelled"
	ActionDeleted   ActionType = "deleted"
)

// ValidActionType reports whether a is a known action type
func ValidActionType(a string) bool {
	switch ActionType(a) {
	case ActionCreated, ActionUpdated, ActionApproved, ActionRejected, ActionStarted,
		ActionPaused, ActionCompleted, ActionCancelled, ActionDeleted:
		return true
	}
	return false
}

// Date range buckets accepted by Filter.DateRange
const (
	RangeToday = "today"
	RangeWeek  = "week"
	RangeMonth = "month"
)

const table = "campaign_history"

// Entry is one history row. PreviousStatus and NewStatus are empty when the
// action did not move the campaign between states.
type Entry struct {
	ID             int        `json:"id"`
	CampaignID     int        `json:"campaign_id"`
	CampaignName   string     `json:"campaign_name"`
	ActionType     ActionType `json:"action_type"`
	ChangedBy      *int       `json:"changed_by,omitempty"`
	ChangedByName  string     `json:"changed_by_name,omitempty"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	NewStatus      string     `json:"new_status,omitempty"`
	Comment        string     `json:"comment"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Filter narrows a history listing
type Filter struct {
	Page       int
	Limit      int
	CampaignID int
	ActionType string
	Search     string
	DateRange  string
	// Since and Until bound created_at directly; used by exports
	Since time.Time
	Until time.Time
}

// Statistics are the dashboard counters derived from the history table
type Statistics struct {
	TotalHistory  int `json:"totalHistory"`
	ApprovedCount int `json:"approvedCount"`
	UpdatedCount  int `json:"updatedCount"`
	TodayActivity int `json:"todayActivity"`
}

// Service reads and appends campaign history.
type Service struct {
	db  *database.Client
	log logger.Logger
	loc *time.Location
	now func() time.Time
}

// NewService creates a history service. Date buckets are computed in loc.
func NewService(db *database.Client, log logger.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, log: log.With("component", "history"), loc: loc, now: time.Now}
}

// Append inserts one row through q, which may be the caller's transaction.
// It is the only write path into the table.
func (s *Service) Append(ctx context.Context, q database.Querier, e Entry) (int, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	b := s.db.Builder()
	id, err := s.db.InsertID(ctx, q, b.Insert(table).
		Columns("campaign_id", "campaign_name", "action_type", "changed_by",
			"previous_status", "new_status", "comment", "created_at").
		Values(e.CampaignID, e.CampaignName, string(e.ActionType), nullInt(e.ChangedBy),
			nullString(e.PreviousStatus), nullString(e.NewStatus), e.Comment, e.CreatedAt.UTC()))
	if err != nil {
		return 0, fmt.Errorf("failed to append campaign history: %w", err)
	}
	return id, nil
}

// List returns one page of history rows, newest first, plus the total count.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, int, error) {
	page := listing.NewPage(f.Page, f.Limit)

	total, err := database.Count(ctx, s.db.DB, s.selectRows(f, countOnly))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count campaign history: %w", err)
	}

	sel := s.selectRows(f, newestFirst).Limit(page.Limit).Offset(page.Offset())
	entries, err := s.query(ctx, sel)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ForCampaign returns every row of one campaign, newest first.
func (s *Service) ForCampaign(ctx context.Context, campaignID int) ([]Entry, error) {
	return s.query(ctx, s.selectRows(Filter{CampaignID: campaignID}, newestFirst))
}

// Each streams every row matching f to fn, oldest first. Used by exports.
func (s *Service) Each(ctx context.Context, f Filter, fn func(Entry) error) error {
	rows, err := database.Query(ctx, s.db.DB, s.selectRows(f, oldestFirst))
	if err != nil {
		return fmt.Errorf("failed to query campaign history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Statistics groups rows by action type and sums them into dashboard
// counters. Today's activity is counted from the start of the current day in
// the service location.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	b := s.db.Builder()
	h := b.Table(table).As("h")

	rows, err := database.Query(ctx, s.db.DB, b.Select(h.C("action_type"), entsql.Count("*")).
		From(h).
		GroupBy(h.C("action_type")))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate campaign history: %w", err)
	}

	stats := &Statistics{}
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan history aggregate: %w", err)
		}
		stats.TotalHistory += n
		switch ActionType(action) {
		case ActionApproved:
			stats.ApprovedCount += n
		case ActionUpdated:
			stats.UpdatedCount += n
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	t := b.Table(table).As("h")
	stats.TodayActivity, err = database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).
		From(t).
		Where(entsql.GTE(t.C("created_at"), s.startOfDay())))
	if err != nil {
		return nil, fmt.Errorf("failed to count today's history: %w", err)
	}
	return stats, nil
}

func (s *Service) startOfDay() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc).UTC()
}

// rangeStart maps a date bucket to its lower bound
func (s *Service) rangeStart(bucket string) (time.Time, bool) {
	switch bucket {
	case RangeToday:
		return s.startOfDay(), true
	case RangeWeek:
		return s.now().UTC().AddDate(0, 0, -7), true
	case RangeMonth:
		return s.now().UTC().AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

type selectMode int

const (
	newestFirst selectMode = iota
	oldestFirst
	countOnly
)

func (s *Service) selectRows(f Filter, mode selectMode) *entsql.Selector {
	b := s.db.Builder()
	h := b.Table(table).As("h")
	u := b.Table("users").As("u")

	var sel *entsql.Selector
	if mode == countOnly {
		sel = b.Select(entsql.Count("*"))
	} else {
		sel = b.Select(h.C("id"), h.C("campaign_id"), h.C("campaign_name"), h.C("action_type"),
			h.C("changed_by"), u.C("name"), h.C("previous_status"), h.C("new_status"),
			h.C("comment"), h.C("created_at"))
	}
	sel.From(h).LeftJoin(u).On(h.C("changed_by"), u.C("id"))

	if f.CampaignID > 0 {
		sel.Where(entsql.EQ(h.C("campaign_id"), f.CampaignID))
	}
	if f.ActionType != "" {
		sel.Where(entsql.EQ(h.C("action_type"), f.ActionType))
	}
	if term := listing.SearchTerm(f.Search); term != "" {
		sel.Where(entsql.Or(
			entsql.ContainsFold(h.C("campaign_name"), term),
			entsql.ContainsFold(h.C("comment"), term),
			entsql.ContainsFold(u.C("name"), term),
		))
	}
	if since, ok := s.rangeStart(f.DateRange); ok {
		sel.Where(entsql.GTE(h.C("created_at"), since))
	}
	if !f.Since.IsZero() {
		sel.Where(entsql.GTE(h.C("created_at"), f.Since.UTC()))
	}
	if !f.Until.IsZero() {
		sel.Where(entsql.LT(h.C("created_at"), f.Until.UTC()))
	}

	switch mode {
	case newestFirst:
		sel.OrderBy(entsql.Desc(h.C("created_at")), entsql.Desc(h.C("id")))
	case oldestFirst:
		sel.OrderBy(h.C("created_at"), h.C("id"))
	}
	return sel
}

func (s *Service) query(ctx context.Context, sel *entsql.Selector) ([]Entry, error) {
	rows, err := database.Query(ctx, s.db.DB, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                  Entry
		action             string
		changedBy          sql.NullInt64
		changedByName      sql.NullString
		prevStatus, status sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.CampaignID, &e.CampaignName, &action, &changedBy, &changedByName,
		&prevStatus, &status, &e.Comment, &e.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("failed to scan campaign history: %w", err)
	}
	e.ActionType = ActionType(action)
	if changedBy.Valid {
		id := int(changedBy.Int64)
		e.ChangedBy = &id
	}
	e.ChangedByName = changedByName.String
	e.PreviousStatus = prevStatus.String
	e.NewStatus = status.String
	return e, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
