package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/config"
	"github.com/mamadbah2/asigest/internal/domain/models"
	"github.com/mamadbah2/asigest/internal/service/dashboard"
)

const (
	refreshTimeout = 25 * time.Second
	archiveTimeout = 2 * time.Minute
	stopTimeout    = 30 * time.Second
)

// Refresher runs one dashboard refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context) (dashboard.State, error)
}

// DailyReporter builds today's archive record.
type DailyReporter interface {
	Daily(ctx context.Context) (*models.DailyReport, error)
}

// ReportStore persists daily reports.
type ReportStore interface {
	SaveDailyReport(ctx context.Context, report models.DailyReport) error
}

// ReportSheet appends daily reports to a spreadsheet.
type ReportSheet interface {
	AppendDailySummary(ctx context.Context, report models.DailyReport) error
}

// Scheduler manages scheduled tasks: the periodic dashboard refresh and the
// end-of-day archive.
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.Config
	refresher Refresher
	reporter  DailyReporter
	store     ReportStore
	sheet     ReportSheet
	logger    *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler instance. store and sheet are optional.
func NewScheduler(cfg config.Config, refresher Refresher, reporter DailyReporter, store ReportStore, sheet ReportSheet, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithLocation(cfg.Reporting.Location()))

	return &Scheduler{
		cron:      c,
		cfg:       cfg,
		refresher: refresher,
		reporter:  reporter,
		store:     store,
		sheet:     sheet,
		logger:    logger,
	}
}

// Start registers the jobs, runs the initial dashboard load and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("refresh_schedule", s.cfg.Dashboard.RefreshSchedule),
		zap.String("archive_schedule", s.cfg.Reporting.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.Dashboard.RefreshSchedule, s.refreshDashboard); err != nil {
		return fmt.Errorf("schedule dashboard refresh: %w", err)
	}

	if s.store != nil || s.sheet != nil {
		if _, err := s.cron.AddFunc(s.cfg.Reporting.CronSchedule, s.archiveDailyReport); err != nil {
			return fmt.Errorf("schedule daily archive: %w", err)
		}
	} else {
		s.logger.Warn("no daily archive configured, end-of-day job disabled")
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	go s.refreshDashboard()
	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(stopTimeout):
		s.logger.Warn("scheduler jobs still running after stop timeout")
	}
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Scheduler) refreshDashboard() {
	ctx, cancel := context.WithTimeout(s.baseContext(), refreshTimeout)
	defer cancel()

	// failures are logged by the dashboard service and leave the previous figures in place
	_, _ = s.refresher.Refresh(ctx)
}

func (s *Scheduler) archiveDailyReport() {
	ctx, cancel := context.WithTimeout(s.baseContext(), archiveTimeout)
	defer cancel()

	if err := s.archive(ctx); err != nil {
		s.logger.Error("daily archive failed", zap.Error(err))
	}
}

// archive builds today's report and writes it to every configured sink. A
// failing sink does not prevent the others from being written.
func (s *Scheduler) archive(ctx context.Context) error {
	s.logger.Info("generating daily production report")

	report, err := s.reporter.Daily(ctx)
	if err != nil {
		return fmt.Errorf("build daily report: %w", err)
	}

	var failed []string
	if s.store != nil {
		if err := s.store.SaveDailyReport(ctx, *report); err != nil {
			s.logger.Error("failed to store daily report", zap.Error(err))
			failed = append(failed, "mongodb")
		}
	}
	if s.sheet != nil {
		if err := s.sheet.AppendDailySummary(ctx, *report); err != nil {
			s.logger.Error("failed to append daily report to sheet", zap.Error(err))
			failed = append(failed, "sheets")
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("daily report not archived to %v", failed)
	}

	s.logger.Info("daily report archived",
		zap.Time("date", report.Date),
		zap.Int("batches", report.Batches),
		zap.Int("total_output", report.TotalOutput))
	return nil
}
