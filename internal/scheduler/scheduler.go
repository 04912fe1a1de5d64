package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/reporting"
)

// Workflow is the part of the counting workflow the jobs drive.
type Workflow interface {
	Dashboard() models.Dashboard
	SyncPending(ctx context.Context) (counting.SyncReport, error)
}

// Sender delivers the progress summary. A nil Sender disables the summary job.
type Sender interface {
	Send(ctx context.Context, body string) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	workflow Workflow
	sender   Sender
	cfg      config.ReportingConfig
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance running in the configured timezone.
func NewScheduler(cfg config.ReportingConfig, workflow Workflow, sender Sender, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		workflow: workflow,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, s.syncPending); err != nil {
		return fmt.Errorf("schedule pending sync: %w", err)
	}

	if s.sender != nil && s.cfg.SummarySchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SummarySchedule, s.sendSummary); err != nil {
			return fmt.Errorf("schedule progress summary: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) syncPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.workflow.SyncPending(ctx)
	if err != nil {
		s.logger.Warn("pending sync incomplete", zap.Error(err), zap.Int("pending", report.Pending))
		return
	}
	if report.Synced > 0 || report.Dropped > 0 {
		s.logger.Info("pending writes synced",
			zap.Int("synced", report.Synced),
			zap.Int("dropped", report.Dropped))
	}
}

func (s *Scheduler) sendSummary() {
	s.logger.Info("sending progress summary")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	summary := reporting.ProgressSummary(s.workflow.Dashboard())
	if err := s.sender.Send(ctx, summary); err != nil {
		s.logger.Error("failed to send progress summary", zap.Error(err))
		return
	}
	s.logger.Info("progress summary sent successfully")
}
