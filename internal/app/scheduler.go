package app

import (
	"context"
	"log/slog"
	"time"
)

// Syncer is the part of SyncService the scheduler drives.
type Syncer interface {
	Sync(ctx context.Context) (Report, error)
}

// Scheduler triggers a sync immediately and then on every tick of the interval.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler. A non-positive interval runs a single sync.
func NewScheduler(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{syncer: syncer, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. Failed syncs are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tick(ctx)

	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sync scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	report, err := s.syncer.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		s.logger.WarnContext(ctx, "scheduled sync failed",
			slog.String("outcome", string(report.Outcome)),
			slog.Any("error", err),
		)

		return
	}

	s.logger.DebugContext(ctx, "scheduled sync finished",
		slog.String("outcome", string(report.Outcome)),
		slog.Int("added", report.Added),
		slog.Int("conflicts", len(report.Conflicts)),
	)
}
