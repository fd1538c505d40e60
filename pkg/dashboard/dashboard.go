// Package dashboard assembles the landing-page summary. It never fails: when
// a data source is unavailable it serves placeholder content marked degraded.
package dashboard

import (
	"context"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/cache"
	"github.com/jordanlanch/campaigndesk/pkg/campaign"
	"github.com/jordanlanch/campaigndesk/pkg/events"
	"github.com/jordanlanch/campaigndesk/pkg/history"
	"github.com/jordanlanch/campaigndesk/pkg/logger"
	"github.com/jordanlanch/campaigndesk/pkg/metrics"
)

const (
	cacheKey     = "dashboard:summary"
	cachePattern = "dashboard:*"
	cacheTTL  = 60 * time.Second
	cacheType = "dashboard"

	recentLimit  = 10
	queryTimeout = 5 * time.Second
)

// StatusCounter counts campaigns per status
type StatusCounter interface {
	StatusCounts(ctx context.Context) (map[campaign.Status]int, error)
}

// PendingCounter counts open approval requests
type PendingCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// HistoryReader reads the audit trail
type HistoryReader interface {
	Statistics(ctx context.Context) (*history.Statistics, error)
	List(ctx context.Context, f history.Filter) ([]history.Entry, int, error)
}

// StatusCount is one bar of the status chart
type StatusCount struct {
	Status campaign.Status `json:"status"`
	Label  string          `json:"label"`
	Count  int             `json:"count"`
}

// Summary is the dashboard payload
type Summary struct {
	TotalCampaigns   int                `json:"total_campaigns"`
	StatusCounts     []StatusCount      `json:"status_counts"`
	PendingApprovals int                `json:"pending_approvals"`
	History          history.Statistics `json:"history"`
	RecentActivity   []history.Entry    `json:"recent_activity"`
	GeneratedAt      time.Time          `json:"generated_at"`
	Degraded         bool               `json:"degraded"`
}

// Service builds summaries
type Service struct {
	campaigns StatusCounter
	approvals PendingCounter
	history   HistoryReader
	cache     *cache.Client
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time
}

// NewService creates a dashboard service. cacheClient and m may be nil.
func NewService(campaigns StatusCounter, approvals PendingCounter, hist HistoryReader, cacheClient *cache.Client, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		campaigns: campaigns,
		approvals: approvals,
		history:   hist,
		cache:     cacheClient,
		metrics:   m,
		log:       log.With("component", "dashboard"),
		now:       time.Now,
	}
}

// Summary returns the cached summary when fresh, otherwise rebuilds it. A
// degraded summary is never cached.
func (s *Service) Summary(ctx context.Context) *Summary {
	if s.cache != nil {
		var cached Summary
		err := s.cache.GetJSON(ctx, cacheKey, &cached)
		switch {
		case err == nil:
			s.metrics.RecordCache(cacheType, true)
			return &cached
		case cache.IsMiss(err):
			s.metrics.RecordCache(cacheType, false)
		default:
			s.log.Warn("dashboard cache read failed", "error", err)
		}
	}

	sum, err := s.build(ctx)
	if err != nil {
		s.log.Error("dashboard summary degraded", "error", err)
		s.metrics.RecordDashboardDegraded()
		return s.placeholder()
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, sum, cacheTTL); err != nil {
			s.log.Warn("dashboard cache write failed", "error", err)
		}
	}
	return sum
}

// InvalidateOn wraps next so that every campaign or approval event drops the
// cached dashboard before it is forwarded. With no cache next is returned as is.
func InvalidateOn(next events.Publisher, c *cache.Client, log logger.Logger) events.Publisher {
	if c == nil {
		return next
	}
	if next == nil {
		next = events.Nop{}
	}
	return &invalidatingPublisher{next: next, cache: c, log: log.With("component", "dashboard")}
}

type invalidatingPublisher struct {
	next  events.Publisher
	cache *cache.Client
	log   logger.Logger
}

func (p *invalidatingPublisher) Publish(ctx context.Context, e events.Event) error {
	if err := p.cache.DeletePattern(ctx, cachePattern); err != nil {
		p.log.Warn("dashboard cache invalidation failed", "event", e.Type, "error", err)
	}
	return p.next.Publish(ctx, e)
}

func (s *Service) build(ctx context.Context) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	counts, err := s.campaigns.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.approvals.PendingCount(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.history.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.history.List(ctx, history.Filter{Limit: recentLimit})
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		StatusCounts:     statusCounts(counts),
		PendingApprovals: pending,
		History:          *stats,
		RecentActivity:   recent,
		GeneratedAt:      s.now().UTC(),
	}
	for _, c := range sum.StatusCounts {
		sum.TotalCampaigns += c.Count
	}
	return sum, nil
}

func (s *Service) placeholder() *Summary {
	return &Summary{
		StatusCounts:   statusCounts(nil),
		RecentActivity: []history.Entry{},
		GeneratedAt:    s.now().UTC(),
		Degraded:       true,
	}
}

// statusCounts orders counts by the lifecycle order of AllStatuses
func statusCounts(counts map[campaign.Status]int) []StatusCount {
	out := make([]StatusCount, len(campaign.AllStatuses))
	for i, st := range campaign.AllStatuses {
		out[i] = StatusCount{Status: st, Label: st.Label(), Count: counts[st]}
	}
	return out
}
