package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"strongbot/internal/audit"
	"strongbot/internal/chat"
	expense "strongbot/internal/expense/domain"
	"strongbot/internal/observability/metrics"
)

// Recorder appends confirmed entries to the ledger and mirrors a confirmation.
type Recorder struct {
	ledger    expense.Ledger
	chat      chat.Client
	channelID string
	backend   string
	audit     audit.Logger
	logger    *log.Logger
}

// RecorderOption configures the recorder.
type RecorderOption func(*Recorder)

// WithOutgoings posts a confirmation embed to channelID after each append.
func WithOutgoings(client chat.Client, channelID string) RecorderOption {
	return func(r *Recorder) {
		r.chat = client
		r.channelID = channelID
	}
}

// WithBackendName labels ledger metrics.
func WithBackendName(name string) RecorderOption {
	return func(r *Recorder) {
		if name != "" {
			r.backend = name
		}
	}
}

// WithAudit records each append in the audit log.
func WithAudit(logger audit.Logger) RecorderOption {
	return func(r *Recorder) {
		r.audit = logger
	}
}

// WithRecorderLogger assigns a logger.
func WithRecorderLogger(logger *log.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// NewRecorder constructs a Recorder.
func NewRecorder(ledger expense.Ledger, opts ...RecorderOption) (*Recorder, error) {
	if ledger == nil {
		return nil, errors.New("expense recorder: nil ledger")
	}
	r := &Recorder{ledger: ledger, backend: "ledger"}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends entry. A failed confirmation post after a successful append is
// logged and does not fail the call.
func (r *Recorder) Record(ctx context.Context, entry expense.Entry) error {
	start := time.Now()
	err := r.ledger.Append(ctx, entry)
	metrics.ObserveLedgerAppend(r.backend, time.Since(start))
	if err != nil {
		metrics.IncExpenseRecord(metrics.ResultError)
		r.logf("expense append failed: session=%s backend=%s err=%v", entry.SessionID, r.backend, err)
		return fmt.Errorf("record expense: %w", err)
	}
	metrics.IncExpenseRecord(metrics.ResultSuccess)
	r.logf("expense recorded: session=%s category=%s amount=%s %s epoch=%d", entry.SessionID, entry.Category, entry.Amount, entry.Currency, entry.Epoch)

	if r.audit != nil {
		meta, _ := json.Marshal(entry)
		if err := r.audit.Log(ctx, audit.Entry{
			Actor:        entry.UserID,
			Role:         "member",
			Action:       "expense.record",
			ResourceType: "expense",
			ResourceID:   entry.SessionID,
			Metadata:     meta,
		}); err != nil {
			r.logf("expense audit failed: session=%s err=%v", entry.SessionID, err)
		}
	}

	if r.chat != nil && r.channelID != "" {
		if _, err := r.chat.Send(ctx, ConfirmationMessage(r.channelID, entry)); err != nil {
			r.logf("expense confirmation post failed: session=%s err=%v", entry.SessionID, err)
		}
	}
	return nil
}

func (r *Recorder) logf(format string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
