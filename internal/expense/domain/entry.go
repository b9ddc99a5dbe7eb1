package expense

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownEpoch marks an entry whose epoch could not be read at confirm time.
const UnknownEpoch int64 = -1

// Entry is one immutable ledger row.
type Entry struct {
	SessionID   string          `json:"session_id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	TxHash      string          `json:"tx_hash,omitempty"`
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name"`
	ChannelID   string          `json:"channel_id"`
	Epoch       int64           `json:"epoch"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// EpochLabel renders the epoch or N/A.
func (e Entry) EpochLabel() string {
	if e.Epoch == UnknownEpoch {
		return "N/A"
	}
	return strconv.FormatInt(e.Epoch, 10)
}

// ShortTxHash abbreviates long hashes as first8...last8.
func (e Entry) ShortTxHash() string {
	if len(e.TxHash) > 16 {
		return e.TxHash[:8] + "..." + e.TxHash[len(e.TxHash)-8:]
	}
	return e.TxHash
}

// Ledger appends confirmed entries. Append must be idempotent on SessionID.
type Ledger interface {
	Append(ctx context.Context, entry Entry) error
}

// ListFilter narrows ledger queries.
type ListFilter struct {
	From     time.Time
	To       time.Time
	Category string
	Limit    int
}

// Matches reports whether entry passes the filter.
func (f ListFilter) Matches(entry Entry) bool {
	if !f.From.IsZero() && entry.RecordedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !entry.RecordedAt.Before(f.To) {
		return false
	}
	if f.Category != "" && entry.Category != f.Category {
		return false
	}
	return true
}

// Lister reads back ledger entries.
type Lister interface {
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
}
