package aggregation

import (
	"context"
	"sync"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Scheduler drives the aggregation jobs on a wall-clock schedule: the
// daily rollup at a configured UTC hour, the monthly rollup on a
// configured day of month, and the monthly billing report shortly
// after. Job failures are logged and retried on the next scheduled
// occurrence, never escalated.
type Scheduler struct {
	daily   *DailyJob
	monthly *MonthlyJob
	reports *ReportJob
	config  models.SchedulerConfig

	stopChan chan struct{}
	stopOnce sync.Once

	// last-run guards so a tick interval shorter than an hour does not
	// rerun a job within the same scheduling window
	lastDailyRun   string
	lastMonthlyRun string
	lastReportRun  string
}

func NewScheduler(daily *DailyJob, monthly *MonthlyJob, reports *ReportJob, config models.SchedulerConfig) *Scheduler {
	return &Scheduler{
		daily:    daily,
		monthly:  monthly,
		reports:  reports,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or the context is cancelled.
// Intended to run in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	interval := time.Duration(s.config.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	fiberlog.Infof("Scheduler started: daily at %02d:00 UTC, monthly on day %d at %02d:00 UTC",
		s.config.DailyHour, s.config.MonthlyDay, s.config.MonthlyHour)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fiberlog.Info("Scheduler stopped: context cancelled")
			return
		case <-s.stopChan:
			fiberlog.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, time.Now().UTC())
		}
	}
}

// Stop signals the scheduler loop to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	today := now.Format("2006-01-02")
	thisMonth := now.Format("2006-01")

	if now.Hour() == s.config.DailyHour && s.lastDailyRun != today {
		s.lastDailyRun = today
		if _, err := s.daily.Run(ctx, time.Time{}); err != nil {
			fiberlog.Errorf("Scheduled daily aggregation failed: %v", err)
		}
	}

	if now.Day() == s.config.MonthlyDay && now.Hour() == s.config.MonthlyHour && s.lastMonthlyRun != thisMonth {
		s.lastMonthlyRun = thisMonth
		if _, err := s.monthly.Run(ctx, 0, 0); err != nil {
			fiberlog.Errorf("Scheduled monthly aggregation failed: %v", err)
		}
	}

	if s.reports != nil && now.Day() == s.config.ReportDay && now.Hour() == s.config.ReportHour && s.lastReportRun != thisMonth {
		s.lastReportRun = thisMonth
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		if _, err := s.reports.GenerateMonthlyReport(ctx, prev.Year(), int(prev.Month()), ""); err != nil {
			fiberlog.Errorf("Scheduled billing report failed: %v", err)
		}
	}
}
