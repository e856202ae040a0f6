package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepScheduler runs the reconciliation sweep on a cron schedule.
// A run that is still going when the next one is due causes that tick to be skipped.
type SweepScheduler struct {
	sweeper SweepService
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	running bool

	// ctxMu is separate from mu: Stop holds mu while waiting for a job that reads ctx.
	ctxMu  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweepScheduler validates the schedule and registers the sweep job.
// Both standard 5-field expressions and descriptors such as "@every 1h" work.
func NewSweepScheduler(sweeper SweepService, schedule string, timeout time.Duration, logger *zap.Logger) (*SweepScheduler, error) {
	s := &SweepScheduler{
		sweeper: sweeper,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		timeout: timeout,
		logger:  logger.Named("scheduler"),
		ctx:     context.Background(),
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduling. A stopped scheduler can be started again.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.ctxMu.Lock()
	s.ctx, s.cancel = ctx, cancel
	s.ctxMu.Unlock()

	s.cron.Start()
	s.running = true
	s.logger.Info("Sweep scheduler started", zap.Duration("timeout", s.timeout))
}

// Stop cancels an in-flight sweep and waits for it to return.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.ctxMu.Lock()
	s.cancel()
	s.ctxMu.Unlock()
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Sweep scheduler stopped")
}

// RunOnce executes a single sweep bounded by the configured timeout.
func (s *SweepScheduler) RunOnce() *SweepReport {
	s.ctxMu.Lock()
	base := s.ctx
	s.ctxMu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	report, err := s.sweeper.RunSweep(ctx)
	if err != nil {
		s.logger.Error("Scheduled sweep failed", zap.Error(err))
		return nil
	}
	return report
}
