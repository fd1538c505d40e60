package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Business metrics
	CampaignTransitions *prometheus.CounterVec
	ApprovalRequests    *prometheus.CounterVec
	LoginAttempts       *prometheus.CounterVec
	SessionsExpired     prometheus.Counter
	DashboardDegraded   prometheus.Counter
	HistoryArchives     *prometheus.CounterVec

	// Database metrics
	DBConnections *prometheus.GaugeVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance registered on reg. Pass
// prometheus.DefaultRegisterer in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		CampaignTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_status_transitions_total",
				Help: "Campaign status changes by destination status",
			},
			[]string{"to"},
		),
		ApprovalRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_approval_requests_total",
				Help: "Approval workflow events",
			},
			[]string{"outcome"}, // submitted, approved, rejected, duplicate
		),
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"}, // success, failed
		),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "sessions_expired_total",
			Help: "Sessions ended by inactivity",
		}),
		DashboardDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_degraded_total",
			Help: "Dashboard responses served with placeholder content",
		}),
		HistoryArchives: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_history_archives_total",
				Help: "Monthly history archive runs",
			},
			[]string{"status"},
		),

		DBConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "db_connections",
				Help: "Database pool connections by state",
			},
			[]string{"state"}, // open, in_use, idle
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /api/v1/campaigns/:id

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// RecordCampaignTransition counts a campaign status change
func (m *Metrics) RecordCampaignTransition(to string) {
	if m == nil {
		return
	}
	m.CampaignTransitions.WithLabelValues(to).Inc()
}

// RecordApproval counts an approval workflow event
func (m *Metrics) RecordApproval(outcome string) {
	if m == nil {
		return
	}
	m.ApprovalRequests.WithLabelValues(outcome).Inc()
}

// RecordLoginAttempt increments login attempts counter
func (m *Metrics) RecordLoginAttempt(success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(status).Inc()
}

// RecordSessionExpired counts a session ended by inactivity
func (m *Metrics) RecordSessionExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

// RecordDashboardDegraded counts a placeholder dashboard response
func (m *Metrics) RecordDashboardDegraded() {
	if m == nil {
		return
	}
	m.DashboardDegraded.Inc()
}

// RecordHistoryArchive counts an archive run
func (m *Metrics) RecordHistoryArchive(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.HistoryArchives.WithLabelValues(status).Inc()
}

// RecordCache counts a cache lookup
func (m *Metrics) RecordCache(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// UpdateDBStats copies pool statistics into the connection gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}
