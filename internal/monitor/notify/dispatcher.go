package notify

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"strongbot/internal/chat"
	monitor "strongbot/internal/monitor/domain"
	"strongbot/internal/observability/metrics"
)

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at   time.Time
	hash uint64
}

// Dispatcher renders snapshots and delivers them once per epoch.
type Dispatcher struct {
	channel      Channel
	template     *Template
	layout       []ReportField
	maxAttempts  int
	backoff      time.Duration
	dedupeWindow time.Duration
	clock        Clock
	logger       *log.Logger
	sleep        func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	delivered map[int64]sendRecord
	manual    map[uint64]time.Time
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithMaxAttempts bounds delivery attempts per publish.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts. It doubles per attempt.
func WithBackoff(base time.Duration) Option {
	return func(d *Dispatcher) {
		if base > 0 {
			d.backoff = base
		}
	}
}

// WithDedupeWindow suppresses identical manual reports within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(d *Dispatcher) {
		if window > 0 {
			d.dedupeWindow = window
		}
	}
}

// WithLayout overrides the report field order.
func WithLayout(layout []ReportField) Option {
	return func(d *Dispatcher) {
		if len(layout) > 0 {
			d.layout = layout
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(channel Channel, template *Template, opts ...Option) (*Dispatcher, error) {
	if channel == nil {
		return nil, errors.New("report dispatcher: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	d := &Dispatcher{
		channel:     channel,
		template:    template,
		layout:      DefaultLayout(),
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
		clock:       systemClock{},
		sleep:       sleepContext,
		delivered:   make(map[int64]sendRecord),
		manual:      make(map[uint64]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Render builds the report for snapshot without delivering it.
func (d *Dispatcher) Render(snapshot monitor.Snapshot, broadcast bool) (Report, error) {
	report := BuildReport(snapshot, d.layout, broadcast)
	description, err := d.template.Render(templateData(report))
	if err != nil {
		return Report{}, fmt.Errorf("render report: %w", err)
	}
	report.Description = description
	return report, nil
}

// Publish renders and delivers snapshot. A broadcast for an epoch that was
// already delivered is a no-op.
func (d *Dispatcher) Publish(ctx context.Context, snapshot monitor.Snapshot, broadcast bool) error {
	kind := "manual"
	if broadcast {
		kind = "epoch"
	}
	report, err := d.Render(snapshot, broadcast)
	if err != nil {
		metrics.IncReport(kind, metrics.ResultError)
		return err
	}
	hash := contentHash(report)
	if d.suppressed(report, hash) {
		d.logf("report suppressed: kind=%s epoch=%d", kind, report.Epoch)
		metrics.IncReport(kind, "suppressed")
		return nil
	}
	report.Nonce = deliveryNonce(hash, d.clock.Now())

	if err := d.deliver(ctx, report); err != nil {
		metrics.IncReport(kind, metrics.ResultError)
		d.logf("report delivery failed: kind=%s epoch=%d err=%v", kind, report.Epoch, err)
		return err
	}
	d.markSent(report, hash)
	metrics.IncReport(kind, metrics.ResultSuccess)
	d.logf("report delivered: kind=%s epoch=%d unavailable=%d", kind, report.Epoch, len(report.Unavailable()))
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, report Report) error {
	var lastErr error
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, d.backoff*time.Duration(1<<(attempt-1))); err != nil {
				return errors.Join(lastErr, err)
			}
		}
		err := d.channel.Deliver(ctx, report)
		if err == nil {
			metrics.IncReportAttempt(metrics.ResultSuccess)
			return nil
		}
		metrics.IncReportAttempt(metrics.ResultError)
		lastErr = err
		if !chat.IsRetryable(err) {
			return err
		}
		d.logf("report attempt failed: attempt=%d/%d err=%v", attempt+1, d.maxAttempts, err)
	}
	return fmt.Errorf("report delivery: %d attempts: %w", d.maxAttempts, lastErr)
}

func (d *Dispatcher) suppressed(report Report, hash uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if report.Broadcast {
		if report.Epoch == monitor.UnknownEpoch {
			return false
		}
		_, ok := d.delivered[report.Epoch]
		return ok
	}
	if d.dedupeWindow <= 0 {
		return false
	}
	at, ok := d.manual[hash]
	return ok && d.clock.Now().Sub(at) < d.dedupeWindow
}

func (d *Dispatcher) markSent(report Report, hash uint64) {
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if report.Broadcast && report.Epoch != monitor.UnknownEpoch {
		d.delivered[report.Epoch] = sendRecord{at: now, hash: hash}
		return
	}
	if d.dedupeWindow > 0 {
		for key, at := range d.manual {
			if now.Sub(at) >= d.dedupeWindow {
				delete(d.manual, key)
			}
		}
		d.manual[hash] = now
	}
}

// Delivered reports whether a broadcast for epoch has been delivered.
func (d *Dispatcher) Delivered(epoch int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.delivered[epoch]
	return ok
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d != nil && d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

func contentHash(report Report) uint64 {
	var b strings.Builder
	b.WriteString(report.Title)
	for _, line := range report.Lines {
		b.WriteByte('\n')
		b.WriteString(line.String())
	}
	return xxh3.HashString(b.String())
}

// deliveryNonce identifies one publish of a report. Discord caps nonces at 25
// characters; this is 16 hex digits.
func deliveryNonce(hash uint64, at time.Time) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], hash)
	binary.BigEndian.PutUint64(buf[8:], uint64(at.UnixNano()))
	return fmt.Sprintf("%016x", xxh3.Hash(buf[:]))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
