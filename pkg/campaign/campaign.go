package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/events"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/listing"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/metrics"
)

const table = "campaigns"

// joinTables maps each campaign join table to its foreign column and the
// referenced table.
var joinTables = []struct {
	table, column, ref, label string
}{
	{"campaign_customer_groups", "customer_group_id", "customer_groups", "고객 그룹"},
	{"campaign_offers", "offer_id", "offers", "오퍼"},
	{"campaign_scripts", "script_id", "scripts", "스크립트"},
}

// Campaign is a campaign with the ids of its linked groups, offers and scripts
type Campaign struct {
	ID               int            `json:"id"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	Status           Status         `json:"status"`
	StatusLabel      string         `json:"status_label"`
	Budget           float64        `json:"budget"`
	StartDate        *time.Time     `json:"start_date,omitempty"`
	EndDate          *time.Time     `json:"end_date,omitempty"`
	Channels         []string       `json:"channels"`
	Audience         map[string]any `json:"audience"`
	Description      string         `json:"description"`
	CreatedBy        *int           `json:"created_by,omitempty"`
	CreatedByName    string         `json:"created_by_name,omitempty"`
	CustomerGroupIDs []int          `json:"customer_group_ids"`
	OfferIDs         []int          `json:"offer_ids"`
	ScriptIDs        []int          `json:"script_ids"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Input carries every mutable campaign field. Update replaces all of them.
type Input struct {
	Name             string         `json:"name" validate:"required,max=200"`
	Type             string         `json:"type" validate:"max=50"`
	Status           string         `json:"status"`
	Budget           float64        `json:"budget" validate:"gte=0"`
	StartDate        string         `json:"start_date"`
	EndDate          string         `json:"end_date"`
	Channels         []string       `json:"channels" validate:"dive,oneof=email sms push kakao"`
	Audience         map[string]any `json:"audience"`
	Description      string         `json:"description"`
	CustomerGroupIDs []int          `json:"customer_group_ids" validate:"dive,gt=0"`
	OfferIDs         []int          `json:"offer_ids" validate:"dive,gt=0"`
	ScriptIDs        []int          `json:"script_ids" validate:"dive,gt=0"`
}

// ListFilter narrows a campaign listing
type ListFilter struct {
	Page   int
	Limit  int
	Status string
	Type   string
	Search string
}

// Snapshot is the part of a campaign read inside write transactions
type Snapshot struct {
	ID     int
	Name   string
	Status Status
}

// Service manages campaigns and records every state change in history.
type Service struct {
	db      *database.Client
	history *history.Service
	labeler TransitionLabeler
	events  events.Publisher
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLabeler replaces DestinationLabel
func WithLabeler(l TransitionLabeler) Option { return func(s *Service) { s.labeler = l } }

// WithEvents sets the publisher notified after commits
func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithMetrics enables business metrics
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a campaign service
func NewService(db *database.Client, hist *history.Service, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		db:      db,
		history: hist,
		labeler: DestinationLabel,
		events:  events.Nop{},
		log:     log.With("component", "campaign"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// prepared is Input after parsing and normalisation
type prepared struct {
	Input
	status     Status
	hasStatus  bool
	start, end *time.Time
	channels   string
	audience   string
}

func (s *Service) prepare(in Input) (*prepared, error) {
	p := &prepared{Input: in}
	p.Name = strings.TrimSpace(in.Name)
	if p.Name == "" {
		return nil, domain.NewValidationError("캠페인 이름은 필수입니다.")
	}
	if in.Budget < 0 {
		return nil, domain.NewValidationError("예산은 0 이상이어야 합니다.")
	}

	if strings.TrimSpace(in.Status) != "" {
		st, err := ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		p.status, p.hasStatus = st, true
	}

	var err error
	if p.start, err = parseDate(in.StartDate); err != nil {
		return nil, domain.NewValidationError("시작일 형식이 올바르지 않습니다.")
	}
	if p.end, err = parseDate(in.EndDate); err != nil {
		return nil, domain.NewValidationError("종료일 형식이 올바르지 않습니다.")
	}
	if p.start != nil && p.end != nil && p.end.Before(*p.start) {
		return nil, domain.NewValidationError("종료일은 시작일보다 빠를 수 없습니다.")
	}

	channels := in.Channels
	if channels == nil {
		channels = []string{}
	}
	audience := in.Audience
	if audience == nil {
		audience = map[string]any{}
	}
	cb, err := json.Marshal(channels)
	if err != nil {
		return nil, domain.NewValidationError("채널 목록이 올바르지 않습니다.")
	}
	ab, err := json.Marshal(audience)
	if err != nil {
		return nil, domain.NewValidationError("타겟 정보가 올바르지 않습니다.")
	}
	p.channels, p.audience = string(cb), string(ab)

	p.CustomerGroupIDs = uniqueIDs(in.CustomerGroupIDs)
	p.OfferIDs = uniqueIDs(in.OfferIDs)
	p.ScriptIDs = uniqueIDs(in.ScriptIDs)
	return p, nil
}

func (p *prepared) joinIDs(i int) []int {
	switch i {
	case 0:
		return p.CustomerGroupIDs
	case 1:
		return p.OfferIDs
	default:
		return p.ScriptIDs
	}
}

// Create inserts a campaign in DRAFT (or PLANNING when requested) and writes
// its "created" history row in the same transaction.
func (s *Service) Create(ctx context.Context, actorID int, in Input) (*Campaign, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	if !p.hasStatus {
		p.status = StatusDraft
	}
	if p.status != StatusDraft && p.status != StatusPlanning {
		return nil, domain.NewValidationError("새 캠페인은 초안 또는 기획중 상태로만 생성할 수 있습니다.")
	}

	now := s.now().UTC()
	var id int
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureRefs(ctx, tx, p); err != nil {
			return err
		}

		id, err = s.db.InsertID(ctx, tx, s.db.Builder().Insert(table).
			Columns("name", "type", "status", "budget", "start_date", "end_date", "channels",
				"audience", "description", "created_by", "created_at", "updated_at").
			Values(p.Name, p.Type, string(p.status), p.Budget, nullTime(p.start), nullTime(p.end),
				p.channels, p.audience, p.Description, actorValue(actorID), now, now))
		if err != nil {
			return fmt.Errorf("failed to insert campaign: %w", err)
		}

		if err := s.insertJoins(ctx, tx, id, p); err != nil {
			return err
		}

		_, err = s.history.Append(ctx, tx, history.Entry{
			CampaignID:   id,
			CampaignName: p.Name,
			ActionType:   history.ActionCreated,
			ChangedBy:    actorRef(actorID),
			NewStatus:    string(p.status),
			Comment:      "캠페인 생성",
			CreatedAt:    now,
		})
		return err
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}

	s.publish(ctx, events.Event{
		Type:       events.CampaignCreated,
		CampaignID: id,
		ActorID:    actorID,
		Payload:    map[string]any{"status": p.status},
	})
	s.log.Info("campaign created", "campaign_id", id, "actor_id", actorID)
	return s.Get(ctx, id)
}

// Get returns one campaign with its join ids
func (s *Service) Get(ctx context.Context, id int) (*Campaign, error) {
	b := s.db.Builder()
	c := b.Table(table).As("c")
	sel := s.selectCampaigns(c).Where(entsql.EQ(c.C("id"), id))

	list, err := s.queryCampaigns(ctx, sel)
	if err != nil {
		return nil, domain.Wrap(err)
	}
	if len(list) == 0 {
		return nil, notFound(id)
	}
	return &list[0], nil
}

// List returns one page of campaigns, newest first, plus the total count
func (s *Service) List(ctx context.Context, f ListFilter) ([]Campaign, int, error) {
	var status Status
	if strings.TrimSpace(f.Status) != "" {
		st, err := ParseStatus(f.Status)
		if err != nil {
			return nil, 0, err
		}
		status = st
	}
	page := listing.NewPage(f.Page, f.Limit)
	b := s.db.Builder()

	filter := func(sel *entsql.Selector, c *entsql.SelectTable) *entsql.Selector {
		if status != "" {
			sel.Where(entsql.EQ(c.C("status"), string(status)))
		}
		if f.Type != "" {
			sel.Where(entsql.EQ(c.C("type"), f.Type))
		}
		if term := listing.SearchTerm(f.Search); term != "" {
			sel.Where(entsql.Or(
				entsql.ContainsFold(c.C("name"), term),
				entsql.ContainsFold(c.C("description"), term),
			))
		}
		return sel
	}

	ct := b.Table(table).As("c")
	total, err := database.Count(ctx, s.db.DB, filter(b.Select(entsql.Count("*")).From(ct), ct))
	if err != nil {
		return nil, 0, domain.Wrap(fmt.Errorf("failed to count campaigns: %w", err))
	}

	c := b.Table(table).As("c")
	sel := filter(s.selectCampaigns(c), c).
		OrderBy(entsql.Desc(c.C("created_at")), entsql.Desc(c.C("id"))).
		Limit(page.Limit).
		Offset(page.Offset())

	list, err := s.queryCampaigns(ctx, sel)
	if err != nil {
		return nil, 0, domain.Wrap(err)
	}
	return list, total, nil
}

// Update replaces every mutable field and the join rows in one transaction.
// When the status changes one history row labelled by the TransitionLabeler
// is appended. An empty Status keeps the stored one.
func (s *Service) Update(ctx context.Context, actorID, id int, in Input) (*Campaign, error) {
	p, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var from, to Status
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		from, to = cur.Status, cur.Status
		if p.hasStatus {
			to = p.status
		}
		if err := checkEditTransition(from, to); err != nil {
			return err
		}

		if err := s.ensureRefs(ctx, tx, p); err != nil {
			return err
		}

		_, err = database.Exec(ctx, tx, s.db.Builder().Update(table).
			Set("name", p.Name).
			Set("type", p.Type).
			Set("status", string(to)).
			Set("budget", p.Budget).
			Set("start_date", nullTime(p.start)).
			Set("end_date", nullTime(p.end)).
			Set("channels", p.channels).
			Set("audience", p.audience).
			Set("description", p.Description).
			Set("updated_at", now).
			Where(entsql.EQ("id", id)))
		if err != nil {
			return fmt.Errorf("failed to update campaign: %w", err)
		}

		if err := s.deleteJoins(ctx, tx, id); err != nil {
			return err
		}
		if err := s.insertJoins(ctx, tx, id, p); err != nil {
			return err
		}

		if to == from {
			return nil
		}
		_, err = s.history.Append(ctx, tx, history.Entry{
			CampaignID:     id,
			CampaignName:   p.Name,
			ActionType:     s.labeler(from, to),
			ChangedBy:      actorRef(actorID),
			PreviousStatus: string(from),
			NewStatus:      string(to),
			Comment:        TransitionComment(from, to) + " (캠페인 수정)",
			CreatedAt:      now,
		})
		return err
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}

	if to != from {
		s.metrics.RecordCampaignTransition(string(to))
		s.publish(ctx, events.Event{
			Type:       events.CampaignStatusChanged,
			CampaignID: id,
			ActorID:    actorID,
			Payload:    map[string]any{"from": from, "to": to},
		})
	}
	s.log.Info("campaign updated", "campaign_id", id, "actor_id", actorID, "from", from, "to", to)
	return s.Get(ctx, id)
}

// checkEditTransition keeps edits away from the approval workflow.
// APPROVAL_PENDING is entered only by submitting a request and left only
// by resolving it, so a pending request always matches its campaign.
func checkEditTransition(from, to Status) error {
	if from == to {
		return nil
	}
	details := map[string]any{"current_status": from, "requested_status": to}
	if to == StatusApprovalPending {
		return domain.NewConflictError("승인대기 상태는 승인 요청으로만 변경할 수 있습니다.").WithDetails(details)
	}
	if from == StatusApprovalPending {
		return domain.NewConflictError("승인대기 중인 캠페인의 상태는 승인 요청을 처리해야 변경할 수 있습니다.").WithDetails(details)
	}
	return nil
}

// Delete hard-deletes a campaign in DRAFT, PLANNING or REJECTED. The
// "deleted" history row is written first and keeps the campaign id after
// the campaign row is gone. In any other state nothing changes.
func (s *Service) Delete(ctx context.Context, actorID, id int) error {
	var name string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.Lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.Status.Deletable() {
			return domain.NewConflictError(
				fmt.Sprintf("현재 상태(%s)에서는 캠페인을 삭제할 수 없습니다.", cur.Status.Label()),
			).WithDetails(map[string]any{
				"current_status":   cur.Status,
				"allowed_statuses": DeletableStatuses,
			})
		}
		name = cur.Name

		if _, err := s.history.Append(ctx, tx, history.Entry{
			CampaignID:     id,
			CampaignName:   cur.Name,
			ActionType:     history.ActionDeleted,
			ChangedBy:      actorRef(actorID),
			PreviousStatus: string(cur.Status),
			Comment:        fmt.Sprintf("캠페인 삭제 (%s)", cur.Status.Label()),
			CreatedAt:      s.now().UTC(),
		}); err != nil {
			return err
		}

		if err := s.deleteJoins(ctx, tx, id); err != nil {
			return err
		}
		if _, err := database.Exec(ctx, tx, s.db.Builder().Delete(table).Where(entsql.EQ("id", id))); err != nil {
			return fmt.Errorf("failed to delete campaign: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Wrap(err)
	}

	s.publish(ctx, events.Event{Type: events.CampaignDeleted, CampaignID: id, ActorID: actorID})
	s.log.Info("campaign deleted", "campaign_id", id, "name", name, "actor_id", actorID)
	return nil
}

// StatusCounts returns the number of campaigns per status, zero-filled
func (s *Service) StatusCounts(ctx context.Context) (map[Status]int, error) {
	b := s.db.Builder()
	c := b.Table(table).As("c")
	rows, err := database.Query(ctx, s.db.DB, b.Select(c.C("status"), entsql.Count("*")).
		From(c).
		GroupBy(c.C("status")))
	if err != nil {
		return nil, domain.Wrap(fmt.Errorf("failed to count campaigns by status: %w", err))
	}
	defer rows.Close()

	counts := make(map[Status]int, len(AllStatuses))
	for _, st := range AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, domain.Wrap(fmt.Errorf("failed to scan status count: %w", err))
		}
		counts[Status(st)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(err)
	}
	return counts, nil
}

// Lock reads a campaign inside tx. On postgres the row is locked until the
// transaction ends so concurrent writers serialise on it.
func (s *Service) Lock(ctx context.Context, q database.Querier, id int) (*Snapshot, error) {
	b := s.db.Builder()
	sel := b.Select("id", "name", "status").From(b.Table(table)).Where(entsql.EQ("id", id))
	if s.db.Dialect() == dialect.Postgres {
		sel.ForUpdate()
	}

	var snap Snapshot
	var status string
	err := database.QueryRow(ctx, q, sel).Scan(&snap.ID, &snap.Name, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	snap.Status = Status(status)
	return &snap, nil
}

// SetStatus writes a new status through q, normally the caller's transaction
func (s *Service) SetStatus(ctx context.Context, q database.Querier, id int, to Status, at time.Time) error {
	if _, ok := labels[to]; !ok {
		return domain.NewValidationError("유효하지 않은 캠페인 상태입니다.")
	}
	_, err := database.Exec(ctx, q, s.db.Builder().Update(table).
		Set("status", string(to)).
		Set("updated_at", at.UTC()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	return nil
}

func joinFor(refTable string) (jt, col string, err error) {
	for _, j := range joinTables {
		if j.ref == refTable {
			return j.table, j.column, nil
		}
	}
	return "", "", fmt.Errorf("unknown campaign reference table %q", refTable)
}

// ActiveReferences returns the non-terminal campaigns linked to row id of
// refTable (customer_groups, offers or scripts) through its join table.
func (s *Service) ActiveReferences(ctx context.Context, q database.Querier, refTable string, refID int) ([]Snapshot, error) {
	jt, col, err := joinFor(refTable)
	if err != nil {
		return nil, err
	}

	b := s.db.Builder()
	c := b.Table(table).As("c")
	j := b.Table(jt).As("j")
	rows, err := database.Query(ctx, q, b.Select(c.C("id"), c.C("name"), c.C("status")).
		From(c).
		Join(j).On(c.C("id"), j.C("campaign_id")).
		Where(entsql.And(
			entsql.EQ(j.C(col), refID),
			entsql.NotIn(c.C("status"), string(StatusCompleted), string(StatusCancelled)),
		)).
		OrderBy(c.C("id")))
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign references: %w", err)
	}
	defer rows.Close()

	var refs []Snapshot
	for rows.Next() {
		var snap Snapshot
		var status string
		if err := rows.Scan(&snap.ID, &snap.Name, &status); err != nil {
			return nil, fmt.Errorf("failed to scan campaign reference: %w", err)
		}
		snap.Status = Status(status)
		refs = append(refs, snap)
	}
	return refs, rows.Err()
}

// Unlink removes every campaign link to row id of refTable so the row can be
// deleted. Callers check ActiveReferences first; what remains are links from
// completed or cancelled campaigns.
func (s *Service) Unlink(ctx context.Context, q database.Querier, refTable string, refID int) error {
	jt, col, err := joinFor(refTable)
	if err != nil {
		return err
	}
	if _, err := database.Exec(ctx, q, s.db.Builder().Delete(jt).Where(entsql.EQ(col, refID))); err != nil {
		return fmt.Errorf("failed to unlink %s: %w", jt, err)
	}
	return nil
}

func (s *Service) selectCampaigns(c *entsql.SelectTable) *entsql.Selector {
	b := s.db.Builder()
	u := b.Table("users").As("u")
	return b.Select(c.C("id"), c.C("name"), c.C("type"), c.C("status"), c.C("budget"),
		c.C("start_date"), c.C("end_date"), c.C("channels"), c.C("audience"), c.C("description"),
		c.C("created_by"), u.C("name"), c.C("created_at"), c.C("updated_at")).
		From(c).
		LeftJoin(u).On(c.C("created_by"), u.C("id"))
}

func (s *Service) queryCampaigns(ctx context.Context, sel *entsql.Selector) ([]Campaign, error) {
	rows, err := database.Query(ctx, s.db.DB, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}

	list := []Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadJoins(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func scanCampaign(rows *sql.Rows) (Campaign, error) {
	var (
		c                  Campaign
		status             string
		start, end         sql.NullTime
		channels, audience string
		createdBy          sql.NullInt64
		createdByName      sql.NullString
	)
	if err := rows.Scan(&c.ID, &c.Name, &c.Type, &status, &c.Budget, &start, &end, &channels,
		&audience, &c.Description, &createdBy, &createdByName, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Campaign{}, fmt.Errorf("failed to scan campaign: %w", err)
	}

	c.Status = Status(status)
	c.StatusLabel = c.Status.Label()
	if start.Valid {
		t := start.Time.UTC()
		c.StartDate = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		c.EndDate = &t
	}
	if err := json.Unmarshal([]byte(channels), &c.Channels); err != nil || c.Channels == nil {
		c.Channels = []string{}
	}
	if err := json.Unmarshal([]byte(audience), &c.Audience); err != nil || c.Audience == nil {
		c.Audience = map[string]any{}
	}
	if createdBy.Valid {
		id := int(createdBy.Int64)
		c.CreatedBy = &id
	}
	c.CreatedByName = createdByName.String
	return c, nil
}

// loadJoins fills the join id slices of every campaign in list, one query per join table
func (s *Service) loadJoins(ctx context.Context, list []Campaign) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]any, len(list))
	index := make(map[int]int, len(list))
	for i := range list {
		ids[i] = list[i].ID
		index[list[i].ID] = i
		list[i].CustomerGroupIDs = []int{}
		list[i].OfferIDs = []int{}
		list[i].ScriptIDs = []int{}
	}

	b := s.db.Builder()
	for n, jt := range joinTables {
		rows, err := database.Query(ctx, s.db.DB, b.Select("campaign_id", jt.column).
			From(b.Table(jt.table)).
			Where(entsql.In("campaign_id", ids...)).
			OrderBy("campaign_id", jt.column))
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", jt.table, err)
		}
		for rows.Next() {
			var campaignID, refID int
			if err := rows.Scan(&campaignID, &refID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan %s: %w", jt.table, err)
			}
			c := &list[index[campaignID]]
			switch n {
			case 0:
				c.CustomerGroupIDs = append(c.CustomerGroupIDs, refID)
			case 1:
				c.OfferIDs = append(c.OfferIDs, refID)
			default:
				c.ScriptIDs = append(c.ScriptIDs, refID)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ensureRefs checks that every linked group, offer and script exists
func (s *Service) ensureRefs(ctx context.Context, q database.Querier, p *prepared) error {
	b := s.db.Builder()
	for i, jt := range joinTables {
		ids := p.joinIDs(i)
		if len(ids) == 0 {
			continue
		}
		n, err := database.Count(ctx, q, b.Select(entsql.Count("*")).
			From(b.Table(jt.ref)).
			Where(entsql.In("id", toAny(ids)...)))
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", jt.ref, err)
		}
		if n != len(ids) {
			return domain.NewValidationError(fmt.Sprintf("존재하지 않는 %s이(가) 포함되어 있습니다.", jt.label)).
				WithDetails(map[string]any{jt.column: ids})
		}
	}
	return nil
}

func (s *Service) insertJoins(ctx context.Context, q database.Querier, id int, p *prepared) error {
	b := s.db.Builder()
	for i, jt := range joinTables {
		ids := p.joinIDs(i)
		if len(ids) == 0 {
			continue
		}
		ins := b.Insert(jt.table).Columns("campaign_id", jt.column)
		for _, ref := range ids {
			ins.Values(id, ref)
		}
		if _, err := database.Exec(ctx, q, ins); err != nil {
			return fmt.Errorf("failed to link %s: %w", jt.table, err)
		}
	}
	return nil
}

func (s *Service) deleteJoins(ctx context.Context, q database.Querier, id int) error {
	b := s.db.Builder()
	for _, jt := range joinTables {
		if _, err := database.Exec(ctx, q, b.Delete(jt.table).Where(entsql.EQ("campaign_id", id))); err != nil {
			return fmt.Errorf("failed to unlink %s: %w", jt.table, err)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish campaign event", "type", e.Type, "campaign_id", e.CampaignID, "error", err)
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// parseDate accepts a calendar date or a timestamp. Empty means unset.
func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", v)
}

func notFound(id int) *domain.DomainError {
	return domain.NewNotFoundError("캠페인을 찾을 수 없습니다.").WithDetails(map[string]any{"campaign_id": id})
}

func actorRef(id int) *int {
	if id <= 0 {
		return nil
	}
	return &id
}

func actorValue(id int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id > 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func uniqueIDs(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func toAny(ids []int) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
