package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const retentionEvery = 24 * time.Hour

// Launcher starts a background run whose start time is at.
type Launcher interface {
	Launch(ctx context.Context, at time.Time, trigger string) error
}

// Sweeper performs the periodic retention cleanup.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Scheduler wakes every tick and launches a run when the interval in effect
// has elapsed since the last run started. The first tick only records the
// baseline. Pause is a guard checked on every tick.
type Scheduler struct {
	state    *RunState
	launcher Launcher
	sweeper  Sweeper
	tick     time.Duration
	logger   *zap.Logger
	now      func() time.Time

	started   bool
	lastSweep time.Time
	sweeps    sync.WaitGroup
}

func NewScheduler(state *RunState, launcher Launcher, sweeper Sweeper, tick time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Scheduler{
		state:    state,
		launcher: launcher,
		sweeper:  sweeper,
		tick:     tick,
		logger:   logger,
		now:      time.Now,
	}
}

// Run drives Tick until ctx is cancelled. It returns once any retention sweep
// it started has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.sweeps.Wait()
	s.logger.Info("Scheduler started", zap.Duration("tick", s.tick), zap.Duration("interval", s.state.Interval()))
	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick evaluates the schedule at now and reports whether a run was launched.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) bool {
	if !s.started {
		s.started = true
		s.lastSweep = now
		s.state.SetBaseline(now)
		return false
	}

	s.maybeSweep(ctx, now)

	if s.state.Paused() {
		return false
	}
	if now.Sub(s.state.LastRunAt()) < s.state.Interval() {
		return false
	}
	if s.state.Running() {
		return false
	}

	err := s.launcher.Launch(ctx, now, "schedule")
	if errors.Is(err, ErrRunInProgress) {
		return false
	}
	if err != nil {
		s.logger.Error("Scheduled run failed to start", zap.Error(err))
		return false
	}
	s.logger.Info("Scheduled run launched", zap.Bool("turbo", s.state.Turbo()))
	return true
}

func (s *Scheduler) maybeSweep(ctx context.Context, now time.Time) {
	if s.sweeper == nil || now.Sub(s.lastSweep) < retentionEvery {
		return
	}
	s.lastSweep = now
	s.sweeps.Add(1)
	go func() {
		defer s.sweeps.Done()
		n, err := s.sweeper.Sweep(ctx)
		if err != nil {
			s.logger.Error("Retention sweep failed", zap.Error(err))
			return
		}
		s.logger.Info("Retention sweep finished", zap.Int64("deleted", n))
	}()
}
