package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/inhapress/stockledger/internal/config"
	"github.com/inhapress/stockledger/internal/domain/models"
	"github.com/inhapress/stockledger/internal/service/alerts"
)

// ReportSource builds archived monthly reports.
type ReportSource interface {
	MonthlyReport(ctx context.Context, month string) (models.MonthlyReport, error)
}

// ReportArchive stores monthly reports.
type ReportArchive interface {
	SaveMonthlyReport(ctx context.Context, report models.MonthlyReport) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	reports  ReportSource
	archive  ReportArchive
	notifier alerts.Notifier
	cfg      config.ReportingConfig
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance. A nil archive or a
// disabled notifier skips the matching job.
func NewScheduler(cfg config.ReportingConfig, loc *time.Location, reports ReportSource, archive ReportArchive, notifier alerts.Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		reports:  reports,
		archive:  archive,
		notifier: notifier,
		cfg:      cfg,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("timezone", s.loc.String()))

	if s.notifier != nil && s.notifier.Enabled() {
		if _, err := s.cron.AddFunc(s.cfg.AlertSchedule, s.sendAlerts); err != nil {
			return fmt.Errorf("schedule alerts %q: %w", s.cfg.AlertSchedule, err)
		}
	} else {
		s.logger.Info("alerts disabled, digest job not scheduled")
	}

	if s.archive != nil {
		if _, err := s.cron.AddFunc(s.cfg.ArchiveSchedule, s.archivePreviousMonth); err != nil {
			return fmt.Errorf("schedule archive %q: %w", s.cfg.ArchiveSchedule, err)
		}
	} else {
		s.logger.Info("report archive disabled, archive job not scheduled")
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sendAlerts() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.notifier.SendDigest(ctx); err != nil {
		s.logger.Error("failed to send alert digest", zap.Error(err))
	}
}

func (s *Scheduler) archivePreviousMonth() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	month := PreviousMonth(s.now().In(s.loc))
	if err := s.Archive(ctx, month); err != nil {
		s.logger.Error("failed to archive monthly report", zap.String("month", month), zap.Error(err))
	}
}

// Archive builds the report of month and stores it.
func (s *Scheduler) Archive(ctx context.Context, month string) error {
	if s.archive == nil {
		return fmt.Errorf("report archive is not configured")
	}

	report, err := s.reports.MonthlyReport(ctx, month)
	if err != nil {
		return fmt.Errorf("build report %s: %w", month, err)
	}
	if err := s.archive.SaveMonthlyReport(ctx, report); err != nil {
		return err
	}

	s.logger.Info("monthly report archived",
		zap.String("month", report.Month),
		zap.Int64("net_profit", report.NetProfit))
	return nil
}

// PreviousMonth returns the YYYY-MM month before t.
func PreviousMonth(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, -1, 0).Format(models.MonthLayout)
}
