package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a function on a fixed interval until stopped. Overlap
// within one process is prevented by running ticks sequentially; overlap
// across processes is the job's own concern (the expiry reaper holds a
// distributed lease for that).
type Scheduler struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler builds a scheduler for the given job.
func NewScheduler(name string, interval time.Duration, run func(context.Context) error, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{name: name, interval: interval, run: run, logger: logger}
}

// Start launches the tick loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.run(ctx); err != nil {
					s.logger.Warn("scheduled job failed", zap.String("job", s.name), zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("scheduler started", zap.String("job", s.name), zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", zap.String("job", s.name))
}
