package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	expense "strongbot/internal/expense/domain"
)

// Ledger keeps entries in memory.
type Ledger struct {
	mu      sync.RWMutex
	entries []expense.Entry
	index   map[string]struct{}
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{index: make(map[string]struct{})}
}

// Append stores entry once per session.
func (l *Ledger) Append(_ context.Context, entry expense.Entry) error {
	if entry.SessionID == "" {
		return errors.New("expense ledger: empty session id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.index[entry.SessionID]; ok {
		return nil
	}
	l.index[entry.SessionID] = struct{}{}
	l.entries = append(l.entries, entry)
	return nil
}

// List returns matching entries ordered by time.
func (l *Ledger) List(_ context.Context, filter expense.ListFilter) ([]expense.Entry, error) {
	l.mu.RLock()
	out := make([]expense.Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		if filter.Matches(entry) {
			out = append(out, entry)
		}
	}
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Ping always succeeds.
func (l *Ledger) Ping(context.Context) error { return nil }
