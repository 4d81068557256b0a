package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SweepFunc performs one clearance sweep over stale transactions.
type SweepFunc func(ctx context.Context) error

// SweepConfig holds configuration for the daily sweep
type SweepConfig struct {
	// Hour and Minute are the local time to run, 24h format
	Hour   int
	Minute int

	// CheckInterval is how often to check whether the run time has passed
	CheckInterval time.Duration
}

// DefaultSweepConfig returns default sweep configuration
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Hour:          2,
		Minute:        0,
		CheckInterval: time.Minute,
	}
}

// DailySweep runs a clearance sweep once per day at a configured time.
// Voucher edits made outside the reconciliation API leave clearance dates
// stale; the sweep repairs them without waiting for the next allocation.
type DailySweep struct {
	config SweepConfig
	fn     SweepFunc
	logger *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
}

// NewDailySweep creates a new daily sweep
func NewDailySweep(config SweepConfig, fn SweepFunc, logger *zap.Logger) *DailySweep {
	return &DailySweep{
		config: config,
		fn:     fn,
		logger: logger,
	}
}

// Start starts the sweep loop
func (s *DailySweep) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Clearance sweep scheduler started",
		zap.Int("hour", s.config.Hour),
		zap.Int("minute", s.config.Minute),
		zap.Duration("check_interval", s.config.CheckInterval),
	)
	return nil
}

// Stop stops the sweep loop and waits for an in-flight run to finish
func (s *DailySweep) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Clearance sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DailySweep) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TriggerIfDue(ctx, time.Now())
		}
	}
}

// TriggerIfDue runs the sweep when the configured time of day has been
// reached and no run has happened yet today.
func (s *DailySweep) TriggerIfDue(ctx context.Context, now time.Time) {
	currentDate := now.Format("2006-01-02")

	s.mu.Lock()
	alreadyRan := s.lastRunDate == currentDate
	s.mu.Unlock()
	if alreadyRan {
		return
	}

	scheduled := time.Date(now.Year(), now.Month(), now.Day(),
		s.config.Hour, s.config.Minute, 0, 0, now.Location())
	if now.Before(scheduled) {
		return
	}

	s.mu.Lock()
	s.lastRunDate = currentDate
	s.mu.Unlock()

	s.logger.Info("Running scheduled clearance sweep", zap.String("date", currentDate))
	if err := s.fn(ctx); err != nil {
		s.logger.Error("Scheduled clearance sweep failed", zap.Error(err))
	}
}
