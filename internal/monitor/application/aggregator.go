package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	monitor "strongbot/internal/monitor/domain"
	"strongbot/internal/observability/metrics"
)

// MetricSource fetches one or more typed readings from an external provider.
// Implementations must not retry; a failure marks every declared field missing.
type MetricSource interface {
	Name() string
	Fields() []monitor.MetricName
	Fetch(ctx context.Context) (map[monitor.MetricName]monitor.Reading, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Aggregator fans out to all sources and merges their readings into a snapshot.
type Aggregator struct {
	sources     []MetricSource
	derivations []monitor.Derivation
	timeout     time.Duration
	staleAfter  time.Duration
	clock       Clock
	logger      *log.Logger
}

// AggregatorOption configures the aggregator.
type AggregatorOption func(*Aggregator)

// WithSourceTimeout bounds each source call.
func WithSourceTimeout(timeout time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithStaleAfter marks readings older than window as stale.
func WithStaleAfter(window time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if window > 0 {
			a.staleAfter = window
		}
	}
}

// WithDerivations replaces the default derived metrics.
func WithDerivations(derivations ...monitor.Derivation) AggregatorOption {
	return func(a *Aggregator) {
		a.derivations = derivations
	}
}

// WithAggregatorClock overrides the default clock.
func WithAggregatorClock(clock Clock) AggregatorOption {
	return func(a *Aggregator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithAggregatorLogger assigns a logger.
func WithAggregatorLogger(logger *log.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator constructs an Aggregator.
func NewAggregator(sources []MetricSource, opts ...AggregatorOption) (*Aggregator, error) {
	if len(sources) == 0 {
		return nil, errors.New("aggregator: no sources")
	}
	for _, source := range sources {
		if source == nil {
			return nil, errors.New("aggregator: nil source")
		}
	}
	a := &Aggregator{
		sources:     sources,
		derivations: monitor.DefaultDerivations(),
		timeout:     15 * time.Second,
		clock:       systemClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type sourceResult struct {
	source   MetricSource
	readings map[monitor.MetricName]monitor.Reading
	err      error
}

// Collect fetches all sources concurrently and never fails; broken sources
// surface as missing fields.
func (a *Aggregator) Collect(ctx context.Context) monitor.Snapshot {
	results := make([]sourceResult, len(a.sources))
	var wg sync.WaitGroup
	for i, source := range a.sources {
		wg.Add(1)
		go func(i int, source MetricSource) {
			defer wg.Done()
			results[i] = a.fetch(ctx, source)
		}(i, source)
	}
	wg.Wait()

	now := a.clock.Now().UTC()
	merged := make(map[monitor.MetricName]monitor.Reading)
	for _, result := range results {
		for _, field := range result.source.Fields() {
			candidate := monitor.Missing(monitor.UnitOf(field))
			if result.err == nil {
				if reading, ok := result.readings[field]; ok {
					candidate = a.normalize(field, reading, now)
				}
			}
			if current, ok := merged[field]; !ok || rank(candidate) > rank(current) {
				merged[field] = candidate
			}
		}
	}
	for _, derivation := range a.derivations {
		merged[derivation.Name] = derivation.Apply(merged)
	}
	return monitor.NewSnapshot(merged, now)
}

func (a *Aggregator) fetch(ctx context.Context, source MetricSource) sourceResult {
	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	readings, err := source.Fetch(fetchCtx)
	if err == nil && fetchCtx.Err() != nil {
		err = fetchCtx.Err()
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		a.logf("source fetch failed: source=%s err=%v", source.Name(), err)
	}
	metrics.ObserveSourceFetch(source.Name(), result, time.Since(start))
	return sourceResult{source: source, readings: readings, err: err}
}

func (a *Aggregator) normalize(field monitor.MetricName, reading monitor.Reading, now time.Time) monitor.Reading {
	if reading.Unit == "" {
		reading.Unit = monitor.UnitOf(field)
	}
	if reading.Status == "" {
		reading.Status = monitor.StatusOK
	}
	if reading.ObservedAt.IsZero() {
		reading.ObservedAt = now
	}
	if reading.Status == monitor.StatusOK && a.staleAfter > 0 && now.Sub(reading.ObservedAt) > a.staleAfter {
		reading.Status = monitor.StatusStale
	}
	return reading
}

func rank(reading monitor.Reading) int {
	switch reading.Status {
	case monitor.StatusOK:
		return 2
	case monitor.StatusStale:
		return 1
	default:
		return 0
	}
}

func (a *Aggregator) logf(format string, args ...any) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.Printf(format, args...)
}
