package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
)

const previewSampleSize = 10

// Group statuses
const (
	GroupActive   = "active"
	GroupInactive = "inactive"
)

var groupStatuses = []string{GroupActive, GroupInactive}

var genders = []string{"M", "F"}

// Criteria selects the customers that belong to a group. Empty fields do not
// restrict membership.
type Criteria struct {
	Regions []string `json:"regions,omitempty"`
	Grades  []string `json:"grades,omitempty"`
	Gender  string   `json:"gender,omitempty"`
	AgeMin  int      `json:"age_min,omitempty"`
	AgeMax  int      `json:"age_max,omitempty"`
}

func (c Criteria) normalize() (Criteria, error) {
	c.Regions = trimAll(c.Regions)
	c.Grades = trimAll(c.Grades)
	c.Gender = strings.ToUpper(strings.TrimSpace(c.Gender))
	if c.Gender != "" {
		if err := oneOf(c.Gender, genders, "성별"); err != nil {
			return c, err
		}
	}
	if c.AgeMin < 0 || c.AgeMax < 0 {
		return c, domain.NewValidationError("나이 조건은 0 이상이어야 합니다.")
	}
	if c.AgeMax > 0 && c.AgeMin > c.AgeMax {
		return c, domain.NewValidationError("최소 나이는 최대 나이보다 클 수 없습니다.")
	}
	return c, nil
}

// predicate compiles c into a condition over the customers table. col
// qualifies a column name for the selector in use.
func (c Criteria) predicate(col func(string) string) *entsql.Predicate {
	var preds []*entsql.Predicate
	if len(c.Regions) > 0 {
		preds = append(preds, entsql.In(col("region"), anySlice(c.Regions)...))
	}
	if len(c.Grades) > 0 {
		preds = append(preds, entsql.In(col("grade"), anySlice(c.Grades)...))
	}
	if c.Gender != "" {
		preds = append(preds, entsql.EQ(col("gender"), c.Gender))
	}
	if c.AgeMin > 0 {
		preds = append(preds, entsql.GTE(col("age"), c.AgeMin))
	}
	if c.AgeMax > 0 {
		preds = append(preds, entsql.LTE(col("age"), c.AgeMax))
	}
	if len(preds) == 0 {
		return nil
	}
	return entsql.And(preds...)
}

// Group is a customer segment
type Group struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Criteria    Criteria  `json:"criteria"`
	MemberCount int       `json:"member_count"`
	Status      string    `json:"status"`
	CreatedBy   *int      `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupInput is the writable part of a Group
type GroupInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Criteria    Criteria `json:"criteria"`
	Status      string   `json:"status"`
}

// Customer is a row returned by a group preview
type Customer struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	Grade  string `json:"grade"`
	Gender string `json:"gender"`
	Age    int    `json:"age"`
}

// Preview is the audience a criteria set would select
type Preview struct {
	Count  int        `json:"count"`
	Sample []Customer `json:"sample"`
}

var groupColumns = []string{"id", "name", "description", "criteria", "member_count", "status", "created_by", "created_at", "updated_at"}

func scanGroup(rows *sql.Rows) (Group, error) {
	var (
		g         Group
		criteria  string
		createdBy sql.NullInt64
	)
	if err := rows.Scan(&g.ID, &g.Name, &g.Description, &criteria, &g.MemberCount, &g.Status,
		&createdBy, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return g, err
	}
	if err := json.Unmarshal([]byte(criteria), &g.Criteria); err != nil {
		return g, fmt.Errorf("group %d has malformed criteria: %w", g.ID, err)
	}
	if createdBy.Valid {
		v := int(createdBy.Int64)
		g.CreatedBy = &v
	}
	g.CreatedAt, g.UpdatedAt = g.CreatedAt.UTC(), g.UpdatedAt.UTC()
	return g, nil
}

func (s *Service) prepareGroup(in GroupInput) (GroupInput, string, error) {
	var err error
	if in.Name, err = required(in.Name, "그룹 이름"); err != nil {
		return in, "", err
	}
	in.Status = strings.TrimSpace(in.Status)
	if in.Status == "" {
		in.Status = GroupActive
	}
	if err := oneOf(in.Status, groupStatuses, "그룹 상태"); err != nil {
		return in, "", err
	}
	if in.Criteria, err = in.Criteria.normalize(); err != nil {
		return in, "", err
	}
	raw, err := json.Marshal(in.Criteria)
	if err != nil {
		return in, "", domain.NewValidationError("그룹 조건이 올바르지 않습니다.")
	}
	return in, string(raw), nil
}

// ListGroups returns a page of groups, newest first
func (s *Service) ListGroups(ctx context.Context, f ListFilter) ([]Group, int, error) {
	return page(ctx, s, f, groupsTable,
		func(sel *entsql.Selector, t *entsql.SelectTable) {
			if f.Status != "" {
				sel.Where(entsql.EQ(t.C("status"), f.Status))
			}
			searchFold(sel, f.Search, t.C("name"), t.C("description"))
		},
		func(t *entsql.SelectTable) *entsql.Selector {
			return s.db.Builder().Select(qualify(t, groupColumns)...).From(t)
		},
		func(t *entsql.SelectTable) []string { return []string{entsql.Desc(t.C("created_at")), entsql.Desc(t.C("id"))} },
		scanGroup,
	)
}

// GetGroup returns one group
func (s *Service) GetGroup(ctx context.Context, id int) (*Group, error) {
	b := s.db.Builder()
	t := b.Table(groupsTable)
	return one(ctx, s, b.Select(qualify(t, groupColumns)...).From(t).Where(entsql.EQ(t.C("id"), id)), scanGroup, "고객 그룹", id)
}

// CreateGroup stores a group with its current member count
func (s *Service) CreateGroup(ctx context.Context, actorID int, in GroupInput) (*Group, error) {
	in, criteria, err := s.prepareGroup(in)
	if err != nil {
		return nil, err
	}
	members, err := s.countMembers(ctx, s.db.DB, in.Criteria)
	if err != nil {
		return nil, domain.Wrap(err)
	}

	now := s.now().UTC()
	id, err := s.db.InsertID(ctx, s.db.DB, s.db.Builder().Insert(groupsTable).
		Columns("name", "description", "criteria", "member_count", "status", "created_by", "created_at", "updated_at").
		Values(in.Name, in.Description, criteria, members, in.Status, nullInt(actorID), now, now))
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to insert customer group: %w", err))
	}

	s.log.Info("customer group created", "group_id", id, "members", members, "actor_id", actorID)
	return s.GetGroup(ctx, id)
}

// UpdateGroup replaces a group's fields and recounts its members
func (s *Service) UpdateGroup(ctx context.Context, id int, in GroupInput) (*Group, error) {
	in, criteria, err := s.prepareGroup(in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, groupsTable, id, "고객 그룹"); err != nil {
			return err
		}
		members, err := s.countMembers(ctx, tx, in.Criteria)
		if err != nil {
			return err
		}
		_, err = database.Exec(ctx, tx, s.db.Builder().Update(groupsTable).
			Set("name", in.Name).
			Set("description", in.Description).
			Set("criteria", criteria).
			Set("member_count", members).
			Set("status", in.Status).
			Set("updated_at", s.now().UTC()).
			Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to update customer group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}
	return s.GetGroup(ctx, id)
}

// DeleteGroup removes a group no active campaign targets
func (s *Service) DeleteGroup(ctx context.Context, id int) error {
	if err := s.deleteReferenced(ctx, groupsTable, id, "고객 그룹"); err != nil {
		return err
	}
	s.log.Info("customer group deleted", "group_id", id)
	return nil
}

// RefreshMemberCount recounts a group against the current customer table
func (s *Service) RefreshMemberCount(ctx context.Context, id int) (*Group, error) {
	g, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.countMembers(ctx, s.db.DB, g.Criteria)
	if err != nil {
		return nil, domain.Wrap(err)
	}
	if members != g.MemberCount {
		_, err = database.Exec(ctx, s.db.DB, s.db.Builder().Update(groupsTable).
			Set("member_count", members).
			Set("updated_at", s.now().UTC()).
			Where(entsql.EQ("id", id)))
		if err != nil {
			return nil, domain.Wrap(fmt.Errorf("failed to refresh member count: %w", err))
		}
	}
	return s.GetGroup(ctx, id)
}

// PreviewGroup counts the customers c selects and returns a small sample
func (s *Service) PreviewGroup(ctx context.Context, c Criteria) (*Preview, error) {
	c, err := c.normalize()
	if err != nil {
		return nil, err
	}
	count, err := s.countMembers(ctx, s.db.DB, c)
	if err != nil {
		return nil, domain.Wrap(err)
	}

	b := s.db.Builder()
	t := b.Table("customers")
	sel := b.Select(t.C("id"), t.C("name"), t.C("region"), t.C("grade"), t.C("gender"), t.C("age")).From(t)
	if p := c.predicate(t.C); p != nil {
		sel.Where(p)
	}
	sel.OrderBy(t.C("id")).Limit(previewSampleSize)

	sample, err := collect(ctx, s.db.DB, sel, func(rows *sql.Rows) (Customer, error) {
		var cu Customer
		err := rows.Scan(&cu.ID, &cu.Name, &cu.Region, &cu.Grade, &cu.Gender, &cu.Age)
		return cu, err
	})
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to sample customers: %w", err))
	}
	return &Preview{Count: count, Sample: sample}, nil
}

func (s *Service) countMembers(ctx context.Context, q database.Querier, c Criteria) (int, error) {
	b := s.db.Builder()
	t := b.Table("customers")
	sel := b.Select(entsql.Count("*")).From(t)
	if p := c.predicate(t.C); p != nil {
		sel.Where(p)
	}
	n, err := database.Count(ctx, q, sel)
	if err != nil {
		return 0, fmt.Errorf("failed to count group members: %w", err)
	}
	return n, nil
}

func qualify(t *entsql.SelectTable, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = t.C(c)
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
