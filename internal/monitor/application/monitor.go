package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	monitor "strongbot/internal/monitor/domain"
	"strongbot/internal/observability/metrics"
)

// Collector produces a snapshot of current state.
type Collector interface {
	Collect(ctx context.Context) monitor.Snapshot
}

// Publisher delivers a formatted report for a snapshot.
type Publisher interface {
	Publish(ctx context.Context, snapshot monitor.Snapshot, broadcast bool) error
}

// FirstCyclePolicy decides what happens when the first epoch is observed.
type FirstCyclePolicy string

const (
	// FirstCycleSeed records the first epoch silently.
	FirstCycleSeed FirstCyclePolicy = "seed"
	// FirstCycleNotify treats the first epoch as a transition.
	FirstCycleNotify FirstCyclePolicy = "notify"
)

// ParseFirstCyclePolicy normalizes a policy name, defaulting to seed.
func ParseFirstCyclePolicy(value string) (FirstCyclePolicy, error) {
	switch FirstCyclePolicy(value) {
	case "", FirstCycleSeed:
		return FirstCycleSeed, nil
	case FirstCycleNotify:
		return FirstCycleNotify, nil
	default:
		return "", fmt.Errorf("monitor: unknown first cycle policy %q", value)
	}
}

// State is the monitor's coarse state.
type State string

const (
	StateIdle     State = "idle"
	StateChecking State = "checking"
)

// Outcome describes what a cycle did.
type Outcome string

const (
	OutcomeNotified       Outcome = "notified"
	OutcomeSeeded         Outcome = "seeded"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeEpochMissing   Outcome = "epoch_missing"
	OutcomeAnomaly        Outcome = "anomaly"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeManual         Outcome = "manual"
)

// CycleResult reports one epoch check.
type CycleResult struct {
	Outcome  Outcome
	Epoch    int64
	Previous int64
	Err      error
}

// Monitor polls for epoch transitions and publishes a report once per transition.
type Monitor struct {
	collector       Collector
	publisher       Publisher
	policy          FirstCyclePolicy
	dispatchTimeout time.Duration
	logger          *log.Logger

	inflight chan struct{}

	mu        sync.Mutex
	lastEpoch int64
}

// MonitorOption configures the monitor.
type MonitorOption func(*Monitor)

// WithFirstCyclePolicy sets the first-observation policy.
func WithFirstCyclePolicy(policy FirstCyclePolicy) MonitorOption {
	return func(m *Monitor) {
		if policy != "" {
			m.policy = policy
		}
	}
}

// WithDispatchTimeout bounds a single publish call, including retries.
func WithDispatchTimeout(timeout time.Duration) MonitorOption {
	return func(m *Monitor) {
		if timeout > 0 {
			m.dispatchTimeout = timeout
		}
	}
}

// WithMonitorLogger assigns a logger.
func WithMonitorLogger(logger *log.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor constructs a Monitor.
func NewMonitor(collector Collector, publisher Publisher, opts ...MonitorOption) (*Monitor, error) {
	if collector == nil {
		return nil, errors.New("monitor: nil collector")
	}
	if publisher == nil {
		return nil, errors.New("monitor: nil publisher")
	}
	m := &Monitor{
		collector:       collector,
		publisher:       publisher,
		policy:          FirstCycleSeed,
		dispatchTimeout: 2 * time.Minute,
		inflight:        make(chan struct{}, 1),
		lastEpoch:       monitor.UnknownEpoch,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// LastKnownEpoch returns the most recently notified epoch.
func (m *Monitor) LastKnownEpoch() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEpoch
}

// State reports whether a cycle is running.
func (m *Monitor) State() State {
	if len(m.inflight) > 0 {
		return StateChecking
	}
	return StateIdle
}

// RunCycle performs one timer-driven check.
func (m *Monitor) RunCycle(ctx context.Context) CycleResult {
	if !m.acquire() {
		m.logf("epoch check skipped: cycle in flight")
		return m.record(CycleResult{Outcome: OutcomeSkipped, Err: monitor.ErrCycleInFlight})
	}
	defer m.release()
	return m.record(m.check(ctx))
}

// AwaitCycle waits for the running cycle to finish and then performs a
// timer-driven check. It gives up when ctx ends.
func (m *Monitor) AwaitCycle(ctx context.Context) CycleResult {
	select {
	case m.inflight <- struct{}{}:
	case <-ctx.Done():
		return m.record(CycleResult{Outcome: OutcomeSkipped, Err: ctx.Err()})
	}
	defer m.release()
	return m.record(m.check(ctx))
}

// Trigger runs a manual report immediately. It publishes without the broadcast
// mention and never advances LastKnownEpoch. The polling ticker is unaffected.
func (m *Monitor) Trigger(ctx context.Context) (CycleResult, error) {
	if !m.acquire() {
		return CycleResult{Outcome: OutcomeSkipped}, monitor.ErrCycleInFlight
	}
	defer m.release()

	snapshot := m.collector.Collect(ctx)
	epoch, _ := snapshot.Epoch()
	result := CycleResult{Outcome: OutcomeManual, Epoch: epoch, Previous: m.LastKnownEpoch()}
	if err := m.publish(ctx, snapshot, false); err != nil {
		result.Outcome = OutcomeDispatchFailed
		result.Err = err
		m.record(result)
		return result, err
	}
	return m.record(result), nil
}

func (m *Monitor) check(ctx context.Context) CycleResult {
	snapshot := m.collector.Collect(ctx)
	previous := m.LastKnownEpoch()

	epoch, ok := snapshot.Epoch()
	if !ok {
		m.logf("epoch check: epoch unavailable, skipping (all_missing=%t)", snapshot.AllMissing())
		return CycleResult{Outcome: OutcomeEpochMissing, Epoch: monitor.UnknownEpoch, Previous: previous, Err: monitor.ErrEpochMissing}
	}
	result := CycleResult{Epoch: epoch, Previous: previous}

	switch {
	case previous == monitor.UnknownEpoch && m.policy == FirstCycleSeed:
		m.setLastEpoch(epoch)
		m.logf("initial epoch: %d", epoch)
		result.Outcome = OutcomeSeeded
		return result
	case previous == monitor.UnknownEpoch:
	case epoch == previous:
		m.logf("current epoch: %d", epoch)
		result.Outcome = OutcomeUnchanged
		return result
	case epoch < previous:
		m.logf("epoch anomaly: observed=%d last=%d", epoch, previous)
		result.Outcome = OutcomeAnomaly
		result.Err = fmt.Errorf("%w: epoch %d below %d", monitor.ErrDataAnomaly, epoch, previous)
		return result
	}

	m.logf("new epoch detected: %d (previous: %d)", epoch, previous)
	if err := m.publish(ctx, snapshot, true); err != nil {
		m.logf("epoch report failed: epoch=%d err=%v", epoch, err)
		result.Outcome = OutcomeDispatchFailed
		result.Err = err
		return result
	}
	m.setLastEpoch(epoch)
	result.Outcome = OutcomeNotified
	return result
}

// publish detaches from ctx so shutdown does not abort a send mid-flight.
func (m *Monitor) publish(ctx context.Context, snapshot monitor.Snapshot, broadcast bool) error {
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.dispatchTimeout)
	defer cancel()
	return m.publisher.Publish(dispatchCtx, snapshot, broadcast)
}

func (m *Monitor) setLastEpoch(epoch int64) {
	m.mu.Lock()
	if epoch > m.lastEpoch {
		m.lastEpoch = epoch
	}
	m.mu.Unlock()
	metrics.SetLastEpoch(epoch)
}

func (m *Monitor) acquire() bool {
	select {
	case m.inflight <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Monitor) release() {
	<-m.inflight
}

func (m *Monitor) record(result CycleResult) CycleResult {
	metrics.IncMonitorCycle(string(result.Outcome))
	return result
}

func (m *Monitor) logf(format string, args ...any) {
	if m == nil || m.logger == nil {
		return
	}
	m.logger.Printf(format, args...)
}
