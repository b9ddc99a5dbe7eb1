package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	expense "strongbot/internal/expense/domain"
)

// DefaultSheet is the worksheet entries are appended to.
const DefaultSheet = "Expenses"

const timestampLayout = "2006-01-02 15:04:05"

// Headers is the column layout of the ledger sheet.
var Headers = []string{
	"Category",
	"Amount",
	"Currency",
	"Solana Epoch",
	"Transaction Hash",
	"Timestamp",
	"Discord User",
	"Notes",
}

// sessionHeader follows the visible columns and keys idempotent appends.
const sessionHeader = "Session ID"

// Ledger appends entries to an xlsx workbook on disk.
type Ledger struct {
	path  string
	sheet string
	mu    sync.Mutex
}

// Option configures the ledger.
type Option func(*Ledger)

// WithSheet overrides the worksheet name.
func WithSheet(name string) Option {
	return func(l *Ledger) {
		if name != "" {
			l.sheet = name
		}
	}
}

// NewLedger constructs a ledger writing to path. The workbook is created on
// first append when missing.
func NewLedger(path string, opts ...Option) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sheet ledger: empty path")
	}
	l := &Ledger{path: path, sheet: DefaultSheet}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append writes entry as a new row unless its session is already present.
func (l *Ledger) Append(_ context.Context, entry expense.Entry) error {
	if entry.SessionID == "" {
		return errors.New("sheet ledger: empty session id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := l.ensureHeaders(f); err != nil {
		return err
	}
	rows, err := f.GetRows(l.sheet)
	if err != nil {
		return fmt.Errorf("sheet ledger: read rows: %w", err)
	}
	sessionCol := len(Headers)
	for i, row := range rows {
		if i > 0 && len(row) > sessionCol && row[sessionCol] == entry.SessionID {
			return nil
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(l.sheet, cell, &[]any{
		entry.Category,
		entry.Amount.String(),
		entry.Currency,
		entry.EpochLabel(),
		entry.TxHash,
		entry.RecordedAt.UTC().Format(timestampLayout),
		displayUser(entry),
		entry.Description,
		entry.SessionID,
	}); err != nil {
		return fmt.Errorf("sheet ledger: write row: %w", err)
	}
	if err := f.SaveAs(l.path); err != nil {
		return fmt.Errorf("sheet ledger: save: %w", err)
	}
	return nil
}

// List reads entries back from the workbook.
func (l *Ledger) List(_ context.Context, filter expense.ListFilter) ([]expense.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("sheet ledger: open: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(l.sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet ledger: read rows: %w", err)
	}
	var out []expense.Entry
	for i, row := range rows {
		if i == 0 {
			continue
		}
		entry, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("sheet ledger: row %d: %w", i+1, err)
		}
		if filter.Matches(entry) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Ping checks that the workbook can be opened or created.
func (l *Ledger) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.open()
	if err != nil {
		return err
	}
	return f.Close()
}

func (l *Ledger) open() (*excelize.File, error) {
	if _, err := os.Stat(l.path); errors.Is(err, os.ErrNotExist) {
		f := excelize.NewFile()
		if err := f.SetSheetName("Sheet1", l.sheet); err != nil {
			_ = f.Close()
			return nil, err
		}
		return f, nil
	}
	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("sheet ledger: open: %w", err)
	}
	index, err := f.GetSheetIndex(l.sheet)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if index < 0 {
		if _, err := f.NewSheet(l.sheet); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// ensureHeaders writes the header row when it is missing, shorter than the
// current layout or different from it.
func (l *Ledger) ensureHeaders(f *excelize.File) error {
	rows, err := f.GetRows(l.sheet)
	if err != nil {
		return err
	}
	if len(rows) > 0 && headersCurrent(rows[0]) {
		return nil
	}
	header := make([]any, 0, len(Headers)+1)
	for _, h := range Headers {
		header = append(header, h)
	}
	header = append(header, sessionHeader)
	return f.SetSheetRow(l.sheet, "A1", &header)
}

func headersCurrent(row []string) bool {
	if len(row) < len(Headers)+1 {
		return false
	}
	for i, h := range Headers {
		if row[i] != h {
			return false
		}
	}
	return row[len(Headers)] == sessionHeader
}

func parseRow(row []string) (expense.Entry, error) {
	col := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	entry := expense.Entry{
		Category:    col(0),
		Currency:    col(2),
		TxHash:      col(4),
		UserName:    col(6),
		Description: col(7),
		SessionID:   col(8),
		Epoch:       expense.UnknownEpoch,
	}
	amount, err := decimal.NewFromString(col(1))
	if err != nil {
		return expense.Entry{}, fmt.Errorf("amount %q: %w", col(1), err)
	}
	entry.Amount = amount
	if epoch, err := strconv.ParseInt(col(3), 10, 64); err == nil {
		entry.Epoch = epoch
	}
	if ts, err := time.ParseInLocation(timestampLayout, col(5), time.UTC); err == nil {
		entry.RecordedAt = ts
	}
	return entry, nil
}

func displayUser(entry expense.Entry) string {
	if entry.UserName != "" {
		return entry.UserName
	}
	return entry.UserID
}

// WriteWorkbook renders entries as a standalone xlsx document.
func WriteWorkbook(w io.Writer, entries []expense.Entry) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", DefaultSheet); err != nil {
		return err
	}
	header := make([]any, 0, len(Headers))
	for _, h := range Headers {
		header = append(header, h)
	}
	if err := f.SetSheetRow(DefaultSheet, "A1", &header); err != nil {
		return err
	}
	for i, entry := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		amount, _ := entry.Amount.Float64()
		if err := f.SetSheetRow(DefaultSheet, cell, &[]any{
			entry.Category,
			amount,
			entry.Currency,
			entry.EpochLabel(),
			entry.TxHash,
			entry.RecordedAt.UTC().Format(timestampLayout),
			displayUser(entry),
			entry.Description,
		}); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}
