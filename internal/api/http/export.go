package apihttp

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	expense "strongbot/internal/expense/domain"
	"strongbot/internal/expense/infrastructure/sheet"
)

// BuildExpensesXLSX renders entries with the ledger sheet layout.
func BuildExpensesXLSX(entries []expense.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := sheet.WriteWorkbook(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildExpensesPDF renders a minimal expense report with per-currency totals.
func BuildExpensesPDF(entries []expense.Entry, filter expense.ListFilter) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "StrongBot Expense Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Range: %s", rangeLabel(filter)))
	pdf.Ln(5)
	if filter.Category != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Category: %s", filter.Category))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Entries: %d", len(entries)))
	pdf.Ln(5)
	for _, line := range totalsByCurrency(entries) {
		pdf.Cell(0, 6, line)
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(38, 6, "Recorded", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Category", "1", 0, "C", false, 0, "")
	pdf.CellFormat(36, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(18, 6, "Epoch", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "User", "1", 0, "C", false, 0, "")
	pdf.CellFormat(44, 6, "Transaction", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 6, "Notes", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, e := range entries {
		user := e.UserName
		if user == "" {
			user = e.UserID
		}
		pdf.CellFormat(38, 6, e.RecordedAt.UTC().Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(36, 6, clip(e.Category, 20), "1", 0, "L", false, 0, "")
		pdf.CellFormat(36, 6, e.Amount.String()+" "+e.Currency, "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, e.EpochLabel(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, clip(user, 22), "1", 0, "L", false, 0, "")
		pdf.CellFormat(44, 6, e.ShortTxHash(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(65, 6, clip(e.Description, 38), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func totalsByCurrency(entries []expense.Entry) []string {
	totals := make(map[string]decimal.Decimal)
	for _, e := range entries {
		totals[e.Currency] = totals[e.Currency].Add(e.Amount)
	}
	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	lines := make([]string, 0, len(currencies))
	for _, c := range currencies {
		lines = append(lines, fmt.Sprintf("Total (%s): %s", c, totals[c].String()))
	}
	return lines
}

func rangeLabel(filter expense.ListFilter) string {
	from, to := "start", "now"
	if !filter.From.IsZero() {
		from = filter.From.Format(time.RFC3339)
	}
	if !filter.To.IsZero() {
		to = filter.To.Format(time.RFC3339)
	}
	return from + " to " + to
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
