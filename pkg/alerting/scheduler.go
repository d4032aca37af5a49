package alerting

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ogulcanaydogan/aeris/pkg/model"
)

// DefaultInterval is the time between scheduled alert cycles.
const DefaultInterval = 240 * time.Minute

// CycleRunner runs a single alert cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) (model.CycleReport, error)
}

// Scheduler triggers alert cycles at a fixed interval.
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. A nil clock uses the real clock.
func NewScheduler(runner CycleRunner, interval time.Duration, runOnStart bool, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
		clock:      clock,
		logger:     logger,
	}
}

// Run blocks, firing a cycle on every tick until ctx is cancelled. Cycle
// errors are logged and the scheduler waits for the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("alert scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert scheduler stopped")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.runner.RunCycle(ctx, s.clock.Now())
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Info("scheduled cycle skipped, previous cycle still running")
	case ctx.Err() != nil:
		s.logger.Info("scheduled cycle interrupted by shutdown")
	default:
		s.logger.Error("scheduled cycle failed", "error", err)
	}
}
