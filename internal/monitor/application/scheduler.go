package application

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler drives the monitor on a fixed interval.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration
	logger   *log.Logger
	wg       sync.WaitGroup
}

// NewScheduler constructs a Scheduler. A non-positive interval defaults to one hour.
func NewScheduler(monitor *Monitor, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		monitor:  monitor,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the polling loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.monitor == nil {
		return
	}
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the loop has exited and the last cycle has finished.
func (s *Scheduler) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logf("epoch scheduler started: interval=%s", s.interval)
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logf("epoch scheduler stopped: last_epoch=%d", s.monitor.LastKnownEpoch())
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			s.tick(ctx)
		}
	}
}

// tick runs one scheduled check. A tick that lands on a manual report is
// not dropped: it runs once the report has released the monitor.
func (s *Scheduler) tick(ctx context.Context) CycleResult {
	result := s.monitor.RunCycle(ctx)
	if result.Outcome != OutcomeSkipped {
		return result
	}
	s.logf("epoch check deferred until the running report finishes")
	return s.monitor.AwaitCycle(ctx)
}

func (s *Scheduler) logf(format string, args ...any) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
