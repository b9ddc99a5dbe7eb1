package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	expense "strongbot/internal/expense/domain"
)

const defaultLedgerTable = "expense_entries"

// Ledger stores expense entries in Postgres.
type Ledger struct {
	db    *sql.DB
	table string
}

// NewLedger constructs a ledger.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, table: defaultLedgerTable}
}

// Append inserts entry. A second append for the same session is a no-op.
func (l *Ledger) Append(ctx context.Context, entry expense.Entry) error {
	if l == nil || l.db == nil {
		return errors.New("expense ledger: nil db")
	}
	if entry.SessionID == "" {
		return errors.New("expense ledger: empty session id")
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO `+l.table+` (
	session_id, category, amount, currency, description, tx_hash,
	user_id, user_name, channel_id, epoch, recorded_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11
)
ON CONFLICT (session_id) DO NOTHING`,
		entry.SessionID, entry.Category, entry.Amount.String(), entry.Currency, entry.Description, entry.TxHash,
		entry.UserID, entry.UserName, entry.ChannelID, entry.Epoch, entry.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("expense ledger: insert: %w", err)
	}
	return nil
}

// List returns entries ordered by time.
func (l *Ledger) List(ctx context.Context, filter expense.ListFilter) ([]expense.Entry, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("expense ledger: nil db")
	}
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		where = append(where, fmt.Sprintf("recorded_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		where = append(where, fmt.Sprintf("recorded_at < $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	query := `
SELECT session_id, category, amount::text, currency, description, tx_hash,
	user_id, user_name, channel_id, epoch, recorded_at
FROM ` + l.table
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY recorded_at ASC, session_id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []expense.Entry
	for rows.Next() {
		var (
			entry  expense.Entry
			amount string
		)
		if err := rows.Scan(&entry.SessionID, &entry.Category, &amount, &entry.Currency, &entry.Description, &entry.TxHash,
			&entry.UserID, &entry.UserName, &entry.ChannelID, &entry.Epoch, &entry.RecordedAt); err != nil {
			return nil, err
		}
		entry.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("expense ledger: amount %q: %w", amount, err)
		}
		entry.RecordedAt = entry.RecordedAt.UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Ping checks connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	if l == nil || l.db == nil {
		return errors.New("expense ledger: nil db")
	}
	return l.db.PingContext(ctx)
}
