// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"stocksync/internal/domain/orphan"
	"stocksync/pkg/logger"
)

// Scheduler owns the cron runner and the jobs registered on it.
type Scheduler struct {
	cron     *cron.Cron
	detector *orphan.Detector
	log      *logger.Logger
}

// New creates a scheduler with second-granularity disabled (standard five
// field cron expressions).
func New(detector *orphan.Detector, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		detector: detector,
		log:      log.WithComponent("scheduler"),
	}
}

// RegisterOrphanScan schedules the orphan detection job.
func (s *Scheduler) RegisterOrphanScan(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := context.Background()
		report, err := s.detector.FindOrphans(ctx, nil)
		if err != nil {
			s.log.Errorw("scheduled orphan scan failed", "error", err)
			return
		}
		if report.Total() > 0 {
			s.log.Warnw("orphaned units detected",
				"no_supplier", len(report.NoSupplier),
				"no_transaction", len(report.NoTransaction),
				"cutoff", report.Cutoff,
			)
		}
	})
	if err != nil {
		return err
	}
	s.log.Infow("orphan scan scheduled", "spec", spec)
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
