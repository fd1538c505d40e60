package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/jordanlanch/campaigndesk/pkg/metrics"
	"github.com/robfig/cron/v3"
)

// SessionCleaner deletes persisted sessions past their expiry
type SessionCleaner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// TrackerSweeper drops idle inactivity trackers
type TrackerSweeper interface {
	Sweep() int
}

// HistoryArchiver uploads last month's campaign history
type HistoryArchiver interface {
	ArchivePreviousMonth(ctx context.Context) (string, int, error)
}

// StatsSource exposes connection pool statistics
type StatsSource interface {
	Stats() sql.DBStats
}

// Deps are the services the scheduled jobs act on. Nil fields disable the
// matching job.
type Deps struct {
	Sessions SessionCleaner
	Trackers TrackerSweeper
	Archiver HistoryArchiver
	DB       StatsSource
	Metrics  *metrics.Metrics
}

// Schedules
const (
	SessionCleanupSpec = "*/15 * * * *" // every 15 minutes
	HistoryArchiveSpec = "0 3 1 * *"    // 03:00 on the first of the month
	DBStatsSpec        = "@every 30s"
)

type job struct {
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron   *cron.Cron
	deps   Deps
	jobs   map[string]job
	logger *log.Logger
}

// NewCronManager creates a new cron manager. Schedules are evaluated in loc.
func NewCronManager(deps Deps, loc *time.Location, logger *log.Logger) *CronManager {
	if logger == nil {
		logger = log.Default()
	}
	if loc == nil {
		loc = time.Local
	}

	cm := &CronManager{
		cron:   cron.New(cron.WithLocation(loc)),
		deps:   deps,
		jobs:   make(map[string]job),
		logger: logger,
	}

	if deps.Sessions != nil || deps.Trackers != nil {
		cm.jobs["session-cleanup"] = job{SessionCleanupSpec, time.Minute, cm.cleanupSessions}
	}
	if deps.Archiver != nil {
		cm.jobs["history-archive"] = job{HistoryArchiveSpec, 30 * time.Minute, cm.archiveHistory}
	}
	if deps.DB != nil && deps.Metrics != nil {
		cm.jobs["db-stats"] = job{DBStatsSpec, 5 * time.Second, cm.reportDBStats}
	}
	return cm
}

// SetupJobs registers every configured job with the scheduler
func (cm *CronManager) SetupJobs() error {
	cm.logger.Println("Setting up cron jobs...")

	for _, name := range cm.Jobs() {
		j := cm.jobs[name]
		name := name
		if _, err := cm.cron.AddFunc(j.spec, func() {
			if err := cm.Run(context.Background(), name); err != nil {
				cm.logger.Printf("❌ Job %s failed: %v", name, err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", name, err)
		}
		cm.logger.Printf("  - %s: %s", name, j.spec)
	}

	cm.logger.Println("✅ Cron jobs configured successfully")
	return nil
}

// Jobs returns the configured job names in order
func (cm *CronManager) Jobs() []string {
	names := make([]string, 0, len(cm.jobs))
	for name := range cm.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job immediately, for manual triggers and tests
func (cm *CronManager) Run(ctx context.Context, name string) error {
	j, ok := cm.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.run(ctx)
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Println("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish
func (cm *CronManager) Stop() {
	cm.logger.Println("🛑 Stopping cron scheduler...")
	<-cm.cron.Stop().Done()
}

func (cm *CronManager) cleanupSessions(ctx context.Context) error {
	if cm.deps.Trackers != nil {
		if n := cm.deps.Trackers.Sweep(); n > 0 {
			cm.logger.Printf("🧹 Dropped %d idle session trackers", n)
		}
	}
	if cm.deps.Sessions == nil {
		return nil
	}
	n, err := cm.deps.Sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		cm.logger.Printf("🧹 Deleted %d expired sessions", n)
	}
	return nil
}

func (cm *CronManager) archiveHistory(ctx context.Context) error {
	cm.logger.Println("🕐 Archiving last month's campaign history...")
	key, n, err := cm.deps.Archiver.ArchivePreviousMonth(ctx)
	cm.deps.Metrics.RecordHistoryArchive(err)
	if err != nil {
		return err
	}
	cm.logger.Printf("✅ Archived %d history rows to %s", n, key)
	return nil
}

func (cm *CronManager) reportDBStats(context.Context) error {
	cm.deps.Metrics.UpdateDBStats(cm.deps.DB.Stats())
	return nil
}
