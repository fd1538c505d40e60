// Package approval implements the two-party campaign approval workflow.
//
// A requester submits a campaign, which opens a PENDING request and moves the
// campaign to APPROVAL_PENDING. The assigned approver then resolves the
// request, moving the campaign to APPROVED or REJECTED. Each step runs in a
// single transaction together with its campaign history row.
package approval

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/database"
	"github.com/jordanlanch/campaigndesk/pkg/domain"
	"github.com/jordanlanch/campaigndesk/pkg/events"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/listing"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/metrics"
)

const table = "campaign_approval_requests"

// RequestStatus is the state of an approval request
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

// ParseRequestStatus accepts any case
func ParseRequestStatus(s string) (RequestStatus, error) {
	switch RequestStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	}
	return "", domain.NewValidationError("유효하지 않은 승인 상태입니다.")
}

// Request is an approval request joined with campaign and user names
type Request struct {
	ID              int           `json:"id"`
	CampaignID      int           `json:"campaign_id"`
	CampaignName    string        `json:"campaign_name"`
	CampaignStatus  string        `json:"campaign_status,omitempty"`
	RequesterID     int           `json:"requester_id"`
	RequesterName   string        `json:"requester_name"`
	ApproverID      int           `json:"approver_id"`
	ApproverName    string        `json:"approver_name"`
	RequestMessage  string        `json:"request_message"`
	Status          RequestStatus `json:"status"`
	ResponseMessage string        `json:"response_message"`
	CreatedAt       time.Time     `json:"created_at"`
	RespondedAt     *time.Time    `json:"responded_at,omitempty"`
}

// SubmitInput opens a request
type SubmitInput struct {
	CampaignID     int    `json:"campaign_id" validate:"required,gt=0"`
	RequesterID    int    `json:"requester_id" validate:"required,gt=0"`
	ApproverID     int    `json:"approver_id" validate:"required,gt=0"`
	RequestMessage string `json:"request_message" validate:"max=2000"`
}

// ResolveInput closes a request. The approver is named by ApproverID or
// ApproverEmail; when both are empty the actor is the approver.
type ResolveInput struct {
	RequestID       int    `json:"id"`
	Status          string `json:"status" validate:"required"`
	ResponseMessage string `json:"response_message" validate:"max=2000"`
	ApproverID      int    `json:"approver_id"`
	ApproverEmail   string `json:"approver_email" validate:"omitempty,email"`

	// Set from the authenticated caller, never from the body
	ActorID      int  `json:"-"`
	ActorIsAdmin bool `json:"-"`
}

// ListFilter narrows a request listing. Status defaults to all.
type ListFilter struct {
	Page        int
	Limit       int
	Status      string
	ApproverID  int
	RequesterID int
	CampaignID  int
}

// Mailer notifies the people involved in a request
type Mailer interface {
	SendApprovalRequested(ctx context.Context, n Notice) error
	SendApprovalResolved(ctx context.Context, n Notice) error
}

// Notice carries what a notification email needs
type Notice struct {
	RequestID    int
	CampaignID   int
	CampaignName string
	ToEmail      string
	ToName       string
	FromName     string
	Message      string
	Status       RequestStatus
}

// Service runs the approval workflow
type Service struct {
	db        *database.Client
	campaigns *campaign.Service
	history   *history.Service
	events    events.Publisher
	mailer    Mailer
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithEvents sets the publisher notified after commits
func WithEvents(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithMailer enables email notifications
func WithMailer(m Mailer) Option { return func(s *Service) { s.mailer = m } }

// WithMetrics enables business metrics
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates an approval service
func NewService(db *database.Client, campaigns *campaign.Service, hist *history.Service, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		db:        db,
		campaigns: campaigns,
		history:   hist,
		events:    events.Nop{},
		log:       log.With("component", "approval"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type userRef struct {
	ID     int
	Email  string
	Name   string
	Role   string
	Status string
}

// Submit opens a PENDING request and moves the campaign to APPROVAL_PENDING.
// A second submission while one is pending is a conflict. The partial
// unique index on pending requests rejects whichever of two concurrent
// submissions commits second.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Request, error) {
	if in.CampaignID <= 0 || in.RequesterID <= 0 || in.ApproverID <= 0 {
		return nil, domain.NewValidationError("캠페인, 요청자, 승인자는 필수입니다.")
	}
	if in.RequesterID == in.ApproverID {
		return nil, domain.NewValidationError("본인에게 승인을 요청할 수 없습니다.")
	}

	now := s.now().UTC()
	var (
		id                  int
		snap                *campaign.Snapshot
		requester, approver *userRef
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if requester, err = s.activeUser(ctx, tx, in.RequesterID, "요청자"); err != nil {
			return err
		}
		if approver, err = s.activeUser(ctx, tx, in.ApproverID, "승인자"); err != nil {
			return err
		}
		if !canApprove(approver.Role) {
			return domain.NewValidationError("지정한 사용자는 승인 권한이 없습니다.")
		}

		if snap, err = s.campaigns.Lock(ctx, tx, in.CampaignID); err != nil {
			return err
		}

		pending, err := s.pendingFor(ctx, tx, in.CampaignID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return duplicatePending(in.CampaignID, pending)
		}
		if !snap.Status.Submittable() {
			return domain.NewConflictError(
				fmt.Sprintf("현재 상태(%s)에서는 승인을 요청할 수 없습니다.", snap.Status.Label()),
			).WithDetails(map[string]any{
				"current_status":   snap.Status,
				"allowed_statuses": campaign.SubmittableStatuses,
			})
		}

		id, err = s.db.InsertID(ctx, tx, s.db.Builder().Insert(table).
			Columns("campaign_id", "requester_id", "approver_id", "request_message", "status", "created_at").
			Values(in.CampaignID, in.RequesterID, in.ApproverID, in.RequestMessage, string(StatusPending), now))
		if database.IsUniqueViolation(err) {
			return duplicatePending(in.CampaignID, 0)
		}
		if err != nil {
			return fmt.Errorf("failed to insert approval request: %w", err)
		}

		if err := s.campaigns.SetStatus(ctx, tx, in.CampaignID, campaign.StatusApprovalPending, now); err != nil {
			return err
		}

		comment := "승인 요청: " + campaign.TransitionComment(snap.Status, campaign.StatusApprovalPending)
		if msg := strings.TrimSpace(in.RequestMessage); msg != "" {
			comment += " | 요청 메시지: " + msg
		}
		_, err = s.history.Append(ctx, tx, history.Entry{
			CampaignID:     in.CampaignID,
			CampaignName:   snap.Name,
			ActionType:     history.ActionUpdated,
			ChangedBy:      &in.RequesterID,
			PreviousStatus: string(snap.Status),
			NewStatus:      string(campaign.StatusApprovalPending),
			Comment:        comment,
			CreatedAt:      now,
		})
		return err
	})
	if err != nil {
		if domain.IsConflict(err) {
			s.metrics.RecordApproval("duplicate")
		}
		return nil, domain.Wrap(err)
	}

	s.metrics.RecordApproval("submitted")
	s.metrics.RecordCampaignTransition(string(campaign.StatusApprovalPending))
	s.log.Info("approval requested", "request_id", id, "campaign_id", in.CampaignID,
		"requester_id", in.RequesterID, "approver_id", in.ApproverID)

	s.publish(ctx, events.Event{
		Type:       events.ApprovalRequested,
		CampaignID: in.CampaignID,
		ActorID:    in.RequesterID,
		Payload:    map[string]any{"request_id": id, "approver_id": in.ApproverID},
	})
	s.notify(ctx, s.mailerRequested, Notice{
		RequestID:    id,
		CampaignID:   in.CampaignID,
		CampaignName: snap.Name,
		ToEmail:      approver.Email,
		ToName:       approver.Name,
		FromName:     requester.Name,
		Message:      in.RequestMessage,
		Status:       StatusPending,
	})

	return s.Get(ctx, id)
}

// Resolve approves or rejects a PENDING request. The request update, the
// campaign status change and exactly one history row commit together.
// Resolving a request that is no longer pending is a conflict.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*Request, error) {
	target, err := ParseRequestStatus(in.Status)
	if err != nil || target == StatusPending {
		return nil, domain.NewValidationError("승인 결과는 approved 또는 rejected 이어야 합니다.")
	}
	if in.RequestID <= 0 {
		return nil, domain.NewValidationError("승인 요청 ID는 필수입니다.")
	}

	now := s.now().UTC()
	to := campaign.StatusApproved
	action := history.ActionApproved
	if target == StatusRejected {
		to = campaign.StatusRejected
		action = history.ActionRejected
	}

	var (
		req       *Request
		snap      *campaign.Snapshot
		requester *userRef
	)
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if req, err = s.lockRequest(ctx, tx, in.RequestID); err != nil {
			return err
		}
		if req.Status != StatusPending {
			return domain.NewConflictError("이미 처리된 승인 요청입니다.").
				WithDetails(map[string]any{"request_status": req.Status})
		}

		resolverID, err := s.resolverID(ctx, tx, in)
		if err != nil {
			return err
		}
		if !in.ActorIsAdmin {
			if in.ActorID > 0 && resolverID != in.ActorID {
				return domain.NewForbiddenError("다른 사용자의 이름으로 승인할 수 없습니다.")
			}
			if resolverID != req.ApproverID {
				return domain.NewForbiddenError("지정된 승인자만 요청을 처리할 수 있습니다.")
			}
		}
		changedBy := resolverID
		if in.ActorID > 0 {
			changedBy = in.ActorID
		}

		if snap, err = s.campaigns.Lock(ctx, tx, req.CampaignID); err != nil {
			return err
		}
		if snap.Status != campaign.StatusApprovalPending {
			return domain.NewConflictError(
				fmt.Sprintf("캠페인이 승인대기 상태가 아닙니다(현재 %s).", snap.Status.Label()),
			).WithDetails(map[string]any{
				"request_id":     req.ID,
				"current_status": snap.Status,
			})
		}

		res, err := database.Exec(ctx, tx, s.db.Builder().Update(table).
			Set("status", string(target)).
			Set("response_message", in.ResponseMessage).
			Set("responded_at", now).
			Where(entsql.And(
				entsql.EQ("id", req.ID),
				entsql.EQ("status", string(StatusPending)),
			)))
		if err != nil {
			return fmt.Errorf("failed to update approval request: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return domain.NewConflictError("이미 처리된 승인 요청입니다.")
		}

		if err := s.campaigns.SetStatus(ctx, tx, req.CampaignID, to, now); err != nil {
			return err
		}

		_, err = s.history.Append(ctx, tx, history.Entry{
			CampaignID:     req.CampaignID,
			CampaignName:   snap.Name,
			ActionType:     action,
			ChangedBy:      &changedBy,
			PreviousStatus: string(snap.Status),
			NewStatus:      string(to),
			Comment:        resolutionComment(snap.Status, to, in.ResponseMessage),
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}

		requester, err = s.lookupUser(ctx, tx, entsql.EQ("id", req.RequesterID))
		if errors.Is(err, sql.ErrNoRows) {
			requester, err = nil, nil
		}
		return err
	})
	if err != nil {
		return nil, domain.Wrap(err)
	}

	s.metrics.RecordApproval(strings.ToLower(string(target)))
	s.metrics.RecordCampaignTransition(string(to))
	s.log.Info("approval resolved", "request_id", req.ID, "campaign_id", req.CampaignID,
		"status", target, "actor_id", in.ActorID)

	s.publish(ctx, events.Event{
		Type:       events.ApprovalResolved,
		CampaignID: req.CampaignID,
		ActorID:    in.ActorID,
		Payload:    map[string]any{"request_id": req.ID, "status": target, "from": snap.Status, "to": to},
	})
	if requester != nil {
		s.notify(ctx, s.mailerResolved, Notice{
			RequestID:    req.ID,
			CampaignID:   req.CampaignID,
			CampaignName: snap.Name,
			ToEmail:      requester.Email,
			ToName:       requester.Name,
			FromName:     req.ApproverName,
			Message:      in.ResponseMessage,
			Status:       target,
		})
	}

	return s.Get(ctx, req.ID)
}

// resolutionComment joins the status change and the approver's message
func resolutionComment(from, to campaign.Status, message string) string {
	comment := "상태 변경: " + campaign.TransitionComment(from, to)
	if msg := strings.TrimSpace(message); msg != "" {
		comment += " | 응답 메시지: " + msg
	}
	return comment
}

// Get returns one request
func (s *Service) Get(ctx context.Context, id int) (*Request, error) {
	b := s.db.Builder()
	r := b.Table(table).As("r")
	list, err := s.queryRequests(ctx, s.db.DB, s.selectRequests(r).Where(entsql.EQ(r.C("id"), id)))
	if err != nil {
		return nil, domain.Wrap(err)
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("승인 요청을 찾을 수 없습니다.")
	}
	return &list[0], nil
}

// List returns one page of requests, newest first, plus the total count
func (s *Service) List(ctx context.Context, f ListFilter) ([]Request, int, error) {
	var status RequestStatus
	if strings.TrimSpace(f.Status) != "" && !strings.EqualFold(f.Status, "all") {
		st, err := ParseRequestStatus(f.Status)
		if err != nil {
			return nil, 0, err
		}
		status = st
	}
	page := listing.NewPage(f.Page, f.Limit)
	b := s.db.Builder()

	filter := func(sel *entsql.Selector, r *entsql.SelectTable) *entsql.Selector {
		if status != "" {
			sel.Where(entsql.EQ(r.C("status"), string(status)))
		}
		if f.ApproverID > 0 {
			sel.Where(entsql.EQ(r.C("approver_id"), f.ApproverID))
		}
		if f.RequesterID > 0 {
			sel.Where(entsql.EQ(r.C("requester_id"), f.RequesterID))
		}
		if f.CampaignID > 0 {
			sel.Where(entsql.EQ(r.C("campaign_id"), f.CampaignID))
		}
		return sel
	}

	ct := b.Table(table).As("r")
	total, err := database.Count(ctx, s.db.DB, filter(b.Select(entsql.Count("*")).From(ct), ct))
	if err != nil {
		return nil, 0, domain.Wrap(fmt.Errorf("failed to count approval requests: %w", err))
	}

	r := b.Table(table).As("r")
	sel := filter(s.selectRequests(r), r).
		OrderBy(entsql.Desc(r.C("created_at")), entsql.Desc(r.C("id"))).
		Limit(page.Limit).
		Offset(page.Offset())
	list, err := s.queryRequests(ctx, s.db.DB, sel)
	if err != nil {
		return nil, 0, domain.Wrap(err)
	}
	return list, total, nil
}

// PendingCount returns the number of open requests
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	b := s.db.Builder()
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).
		From(b.Table(table)).
		Where(entsql.EQ("status", string(StatusPending))))
	if err != nil {
		return 0, domain.Wrap(fmt.Errorf("failed to count pending approvals: %w", err))
	}
	return n, nil
}

func (s *Service) pendingFor(ctx context.Context, q database.Querier, campaignID int) (int, error) {
	b := s.db.Builder()
	var id int
	err := database.QueryRow(ctx, q, b.Select("id").
		From(b.Table(table)).
		Where(entsql.And(
			entsql.EQ("campaign_id", campaignID),
			entsql.EQ("status", string(StatusPending)),
		)).
		Limit(1)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check pending approval: %w", err)
	}
	return id, nil
}

func (s *Service) lockRequest(ctx context.Context, q database.Querier, id int) (*Request, error) {
	b := s.db.Builder()
	r := b.Table(table).As("r")
	sel := s.selectRequests(r).Where(entsql.EQ(r.C("id"), id))
	if s.db.Dialect() == dialect.Postgres {
		sel.ForUpdate(entsql.WithLockTables("r"))
	}
	list, err := s.queryRequests(ctx, q, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("승인 요청을 찾을 수 없습니다.")
	}
	return &list[0], nil
}

// resolverID works out who is resolving: explicit id, then email, then the actor
func (s *Service) resolverID(ctx context.Context, q database.Querier, in ResolveInput) (int, error) {
	switch {
	case in.ApproverID > 0:
		return in.ApproverID, nil
	case strings.TrimSpace(in.ApproverEmail) != "":
		u, err := s.lookupUser(ctx, q, entsql.EQ("email", strings.ToLower(strings.TrimSpace(in.ApproverEmail))))
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.NewValidationError("승인자 이메일에 해당하는 사용자가 없습니다.")
		}
		if err != nil {
			return 0, err
		}
		return u.ID, nil
	case in.ActorID > 0:
		return in.ActorID, nil
	}
	return 0, domain.NewValidationError("승인자 정보가 필요합니다.")
}

func (s *Service) activeUser(ctx context.Context, q database.Querier, id int, role string) (*userRef, error) {
	u, err := s.lookupUser(ctx, q, entsql.EQ("id", id))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && u.Status != "active") {
		return nil, domain.NewValidationError(fmt.Sprintf("%s 정보를 찾을 수 없습니다.", role)).
			WithDetails(map[string]any{"user_id": id})
	}
	return u, err
}

func (s *Service) lookupUser(ctx context.Context, q database.Querier, where *entsql.Predicate) (*userRef, error) {
	b := s.db.Builder()
	var u userRef
	err := database.QueryRow(ctx, q, b.Select("id", "email", "name", "role", "status").
		From(b.Table("users")).
		Where(where)).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func canApprove(role string) bool {
	switch role {
	case "admin", "manager", "approver":
		return true
	}
	return false
}

func duplicatePending(campaignID, requestID int) *domain.DomainError {
	details := map[string]any{"campaign_id": campaignID}
	if requestID > 0 {
		details["pending_request_id"] = requestID
	}
	return domain.NewConflictError("이미 승인 대기 중인 요청이 있습니다.").WithDetails(details)
}

func (s *Service) selectRequests(r *entsql.SelectTable) *entsql.Selector {
	b := s.db.Builder()
	c := b.Table("campaigns").As("c")
	ru := b.Table("users").As("ru")
	au := b.Table("users").As("au")
	return b.Select(r.C("id"), r.C("campaign_id"), c.C("name"), c.C("status"),
		r.C("requester_id"), ru.C("name"), r.C("approver_id"), au.C("name"),
		r.C("request_message"), r.C("status"), r.C("response_message"),
		r.C("created_at"), r.C("responded_at")).
		From(r).
		LeftJoin(c).On(r.C("campaign_id"), c.C("id")).
		LeftJoin(ru).On(r.C("requester_id"), ru.C("id")).
		LeftJoin(au).On(r.C("approver_id"), au.C("id"))
}

func (s *Service) queryRequests(ctx context.Context, q database.Querier, sel *entsql.Selector) ([]Request, error) {
	rows, err := database.Query(ctx, q, sel)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}
	defer rows.Close()

	list := []Request{}
	for rows.Next() {
		var (
			r                            Request
			campaignName, campaignStatus sql.NullString
			requesterName, approverName  sql.NullString
			status                       string
			respondedAt                  sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.CampaignID, &campaignName, &campaignStatus,
			&r.RequesterID, &requesterName, &r.ApproverID, &approverName,
			&r.RequestMessage, &status, &r.ResponseMessage, &r.CreatedAt, &respondedAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		r.CampaignName = campaignName.String
		r.CampaignStatus = campaignStatus.String
		r.RequesterName = requesterName.String
		r.ApproverName = approverName.String
		r.Status = RequestStatus(status)
		if respondedAt.Valid {
			t := respondedAt.Time.UTC()
			r.RespondedAt = &t
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish approval event", "type", e.Type, "campaign_id", e.CampaignID, "error", err)
	}
}

func (s *Service) mailerRequested(ctx context.Context, n Notice) error {
	return s.mailer.SendApprovalRequested(ctx, n)
}

func (s *Service) mailerResolved(ctx context.Context, n Notice) error {
	return s.mailer.SendApprovalResolved(ctx, n)
}

// notify sends after commit; a mail failure is logged and never surfaces
func (s *Service) notify(ctx context.Context, send func(context.Context, Notice) error, n Notice) {
	if s.mailer == nil || n.ToEmail == "" {
		return
	}
	if err := send(ctx, n); err != nil {
		s.log.Warn("failed to send approval notification", "request_id", n.RequestID, "to", n.ToEmail, "error", err)
	}
}
