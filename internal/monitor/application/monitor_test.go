package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	monitor "strongbot/internal/monitor/domain"
)

type scriptedCollector struct {
	mu     sync.Mutex
	epochs []float64
	block  chan struct{}
}

func (c *scriptedCollector) Collect(_ context.Context) monitor.Snapshot {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	readings := map[monitor.MetricName]monitor.Reading{}
	if len(c.epochs) > 0 {
		epoch := c.epochs[0]
		if len(c.epochs) > 1 {
			c.epochs = c.epochs[1:]
		}
		if epoch >= 0 {
			readings[monitor.MetricEpoch] = okReading(epoch)
		}
	}
	return monitor.NewSnapshot(readings, time.Now())
}

type recordingPublisher struct {
	mu        sync.Mutex
	calls     []bool
	epochs    []int64
	failTimes int
}

func (p *recordingPublisher) Publish(_ context.Context, snapshot monitor.Snapshot, broadcast bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTimes > 0 {
		p.failTimes--
		return errors.New("channel unavailable")
	}
	epoch, _ := snapshot.Epoch()
	p.calls = append(p.calls, broadcast)
	p.epochs = append(p.epochs, epoch)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestMonitor(t *testing.T, collector Collector, publisher Publisher, opts ...MonitorOption) *Monitor {
	t.Helper()
	m, err := NewMonitor(collector, publisher, opts...)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func TestRunCycleSeedsThenNotifies(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{499, 500, 500}}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)
	ctx := context.Background()

	if res := m.RunCycle(ctx); res.Outcome != OutcomeSeeded || m.LastKnownEpoch() != 499 {
		t.Fatalf("expected seed at 499, got %+v last=%d", res, m.LastKnownEpoch())
	}
	if publisher.count() != 0 {
		t.Fatalf("seed must not publish")
	}

	res := m.RunCycle(ctx)
	if res.Outcome != OutcomeNotified || res.Epoch != 500 || res.Previous != 499 {
		t.Fatalf("expected notify 499->500, got %+v", res)
	}
	if m.LastKnownEpoch() != 500 {
		t.Fatalf("expected last epoch 500, got %d", m.LastKnownEpoch())
	}
	if publisher.count() != 1 || !publisher.calls[0] {
		t.Fatalf("expected one broadcast publish, got %v", publisher.calls)
	}

	if res := m.RunCycle(ctx); res.Outcome != OutcomeUnchanged {
		t.Fatalf("expected unchanged, got %+v", res)
	}
	if publisher.count() != 1 {
		t.Fatalf("repeated epoch must not publish again")
	}
}

func TestRunCycleNotifyPolicyPublishesFirstEpoch(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{500}}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher, WithFirstCyclePolicy(FirstCycleNotify))

	if res := m.RunCycle(context.Background()); res.Outcome != OutcomeNotified {
		t.Fatalf("expected notify, got %+v", res)
	}
	if m.LastKnownEpoch() != 500 {
		t.Fatalf("expected 500, got %d", m.LastKnownEpoch())
	}
}

func TestRunCycleRegressionIsAnomaly(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{500, 498}}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)
	ctx := context.Background()

	m.RunCycle(ctx)
	res := m.RunCycle(ctx)
	if res.Outcome != OutcomeAnomaly || !errors.Is(res.Err, monitor.ErrDataAnomaly) {
		t.Fatalf("expected anomaly, got %+v", res)
	}
	if m.LastKnownEpoch() != 500 {
		t.Fatalf("epoch must not regress, got %d", m.LastKnownEpoch())
	}
	if publisher.count() != 0 {
		t.Fatalf("anomaly must not publish")
	}
}

func TestRunCycleMissingEpochSkips(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{-1}}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)

	res := m.RunCycle(context.Background())
	if res.Outcome != OutcomeEpochMissing || !errors.Is(res.Err, monitor.ErrEpochMissing) {
		t.Fatalf("expected epoch missing, got %+v", res)
	}
	if m.LastKnownEpoch() != monitor.UnknownEpoch || publisher.count() != 0 {
		t.Fatalf("missing epoch must not change state")
	}
}

func TestRunCycleDispatchFailureRetriesNextCycle(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{499, 500, 500}}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)
	ctx := context.Background()

	m.RunCycle(ctx)
	publisher.failTimes = 1
	if res := m.RunCycle(ctx); res.Outcome != OutcomeDispatchFailed {
		t.Fatalf("expected dispatch failure, got %+v", res)
	}
	if m.LastKnownEpoch() != 499 {
		t.Fatalf("failed dispatch must not advance, got %d", m.LastKnownEpoch())
	}
	if res := m.RunCycle(ctx); res.Outcome != OutcomeNotified {
		t.Fatalf("expected retry on next cycle, got %+v", res)
	}
	if m.LastKnownEpoch() != 500 || publisher.count() != 1 {
		t.Fatalf("expected single delivery for 500, last=%d count=%d", m.LastKnownEpoch(), publisher.count())
	}
}

func TestTriggerPublishesWithoutBroadcast(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{499, 505}}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)
	ctx := context.Background()

	m.RunCycle(ctx)
	res, err := m.Trigger(ctx)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if res.Outcome != OutcomeManual || res.Epoch != 505 {
		t.Fatalf("unexpected result %+v", res)
	}
	if publisher.count() != 1 || publisher.calls[0] {
		t.Fatalf("expected one non-broadcast publish, got %v", publisher.calls)
	}
	if m.LastKnownEpoch() != 499 {
		t.Fatalf("manual trigger must not move last epoch, got %d", m.LastKnownEpoch())
	}
}

func TestCycleInFlightRejectsConcurrentRuns(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{500}, block: make(chan struct{})}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)
	ctx := context.Background()

	done := make(chan CycleResult, 1)
	go func() { done <- m.RunCycle(ctx) }()

	deadline := time.Now().Add(time.Second)
	for m.State() != StateChecking {
		if time.Now().After(deadline) {
			t.Fatalf("cycle never started")
		}
		time.Sleep(time.Millisecond)
	}

	if res := m.RunCycle(ctx); res.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped tick, got %+v", res)
	}
	if _, err := m.Trigger(ctx); !errors.Is(err, monitor.ErrCycleInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}

	close(collector.block)
	if res := <-done; res.Outcome != OutcomeSeeded {
		t.Fatalf("expected first cycle to seed, got %+v", res)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after cycle")
	}
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{10}}
	m := newTestMonitor(t, collector, &recordingPublisher{})
	ctx, cancel := context.WithCancel(context.Background())

	s := NewScheduler(m, time.Hour, nil)
	s.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for m.LastKnownEpoch() != 10 {
		if time.Now().After(deadline) {
			t.Fatalf("expected immediate first cycle")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	s.Wait()
}

func TestSchedulerTickRunsAfterManualReport(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{500}, block: make(chan struct{})}
	publisher := &recordingPublisher{}
	m := newTestMonitor(t, collector, publisher)
	s := NewScheduler(m, time.Hour, nil)
	ctx := context.Background()

	triggered := make(chan error, 1)
	go func() {
		_, err := m.Trigger(ctx)
		triggered <- err
	}()
	deadline := time.Now().Add(time.Second)
	for m.State() != StateChecking {
		if time.Now().After(deadline) {
			t.Fatalf("report never started")
		}
		time.Sleep(time.Millisecond)
	}

	ticked := make(chan CycleResult, 1)
	go func() { ticked <- s.tick(ctx) }()
	time.Sleep(20 * time.Millisecond)
	close(collector.block)

	if err := <-triggered; err != nil {
		t.Fatalf("trigger: %v", err)
	}
	res := <-ticked
	if res.Outcome != OutcomeSeeded || m.LastKnownEpoch() != 500 {
		t.Fatalf("expected deferred tick to seed 500, got %+v last=%d", res, m.LastKnownEpoch())
	}
}

func TestAwaitCycleGivesUpWithContext(t *testing.T) {
	collector := &scriptedCollector{epochs: []float64{500}, block: make(chan struct{})}
	m := newTestMonitor(t, collector, &recordingPublisher{})
	go m.RunCycle(context.Background())
	deadline := time.Now().Add(time.Second)
	for m.State() != StateChecking {
		if time.Now().After(deadline) {
			t.Fatalf("cycle never started")
		}
		time.Sleep(time.Millisecond)
	}
	defer close(collector.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if res := m.AwaitCycle(ctx); res.Outcome != OutcomeSkipped || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected skipped on deadline, got %+v", res)
	}
}

func TestParseFirstCyclePolicy(t *testing.T) {
	if p, err := ParseFirstCyclePolicy(""); err != nil || p != FirstCycleSeed {
		t.Fatalf("expected seed default, got %q %v", p, err)
	}
	if _, err := ParseFirstCyclePolicy("loud"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
