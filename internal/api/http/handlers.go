package apihttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"strongbot/internal/audit"
	"strongbot/internal/auth"
	expense "strongbot/internal/expense/domain"
	monitorapp "strongbot/internal/monitor/application"
	monitor "strongbot/internal/monitor/domain"
)

const timeLayout = time.RFC3339

const maxListLimit = 1000

// Triggerer runs a manual report.
type Triggerer interface {
	Trigger(ctx context.Context) (monitorapp.CycleResult, error)
	LastKnownEpoch() int64
	State() monitorapp.State
}

// AuditReader lists recent audit entries.
type AuditReader interface {
	Recent(ctx context.Context, action string, limit int) ([]audit.Entry, error)
}

// MonitorTriggerHandler serves POST /api/v1/monitor/trigger.
type MonitorTriggerHandler struct {
	monitor Triggerer
	audit   audit.Logger
	logger  *log.Logger
}

// NewMonitorTriggerHandler constructs a MonitorTriggerHandler.
func NewMonitorTriggerHandler(m Triggerer, auditLogger audit.Logger, logger *log.Logger) *MonitorTriggerHandler {
	return &MonitorTriggerHandler{monitor: m, audit: auditLogger, logger: logger}
}

type cycleResponse struct {
	Outcome  string `json:"outcome"`
	Epoch    int64  `json:"epoch"`
	Previous int64  `json:"previous_epoch"`
	Error    string `json:"error,omitempty"`
}

func (h *MonitorTriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.monitor == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	result, err := h.monitor.Trigger(r.Context())
	h.recordAudit(r, result)
	resp := cycleResponse{Outcome: string(result.Outcome), Epoch: result.Epoch, Previous: result.Previous}
	status := http.StatusOK
	switch {
	case errors.Is(err, monitor.ErrCycleInFlight):
		status = http.StatusConflict
		resp.Error = err.Error()
	case err != nil:
		status = http.StatusBadGateway
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func (h *MonitorTriggerHandler) recordAudit(r *http.Request, result monitorapp.CycleResult) {
	if h.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"outcome": result.Outcome, "epoch": result.Epoch})
	caller, _ := auth.IdentityFromContext(r.Context())
	if err := h.audit.Log(r.Context(), audit.Entry{
		Actor:        caller.Subject,
		Role:         string(caller.Role),
		Action:       "monitor.trigger",
		ResourceType: "report",
		ResourceID:   strconv.FormatInt(result.Epoch, 10),
		Metadata:     meta,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}); err != nil && h.logger != nil {
		h.logger.Printf("audit monitor.trigger failed: %v", err)
	}
}

// MonitorStatusHandler serves GET /api/v1/monitor/status.
type MonitorStatusHandler struct {
	monitor Triggerer
}

// NewMonitorStatusHandler constructs a MonitorStatusHandler.
func NewMonitorStatusHandler(m Triggerer) *MonitorStatusHandler {
	return &MonitorStatusHandler{monitor: m}
}

func (h *MonitorStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.monitor == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      h.monitor.State(),
		"last_epoch": h.monitor.LastKnownEpoch(),
	})
}

// ExpensesHandler serves GET /api/v1/expenses.
type ExpensesHandler struct {
	lister expense.Lister
}

// NewExpensesHandler constructs an ExpensesHandler.
func NewExpensesHandler(lister expense.Lister) *ExpensesHandler {
	return &ExpensesHandler{lister: lister}
}

func (h *ExpensesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.lister == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.lister.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "query expenses error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []expense.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ExportExpensesHandler serves GET /api/v1/expenses/export.{csv,xlsx,pdf}.
type ExportExpensesHandler struct {
	lister expense.Lister
	format string
}

// NewExportExpensesHandler constructs an export handler for format.
func NewExportExpensesHandler(lister expense.Lister, format string) *ExportExpensesHandler {
	return &ExportExpensesHandler{lister: lister, format: format}
}

func (h *ExportExpensesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.lister == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.lister.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "query expenses error", http.StatusInternalServerError)
		return
	}

	switch h.format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		writeExpensesCSV(w, entries)
	case "xlsx":
		data, err := BuildExpensesXLSX(entries)
		if err != nil {
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.xlsx"`)
		_, _ = w.Write(data)
	case "pdf":
		data, err := BuildExpensesPDF(entries, filter)
		if err != nil {
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="expenses.pdf"`)
		_, _ = w.Write(data)
	default:
		http.Error(w, "unsupported format", http.StatusNotFound)
	}
}

func writeExpensesCSV(w http.ResponseWriter, entries []expense.Entry) {
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"session_id",
		"category",
		"amount",
		"currency",
		"epoch",
		"tx_hash",
		"recorded_at",
		"user_id",
		"user_name",
		"description",
	})
	for _, entry := range entries {
		_ = writer.Write([]string{
			entry.SessionID,
			entry.Category,
			entry.Amount.String(),
			entry.Currency,
			entry.EpochLabel(),
			entry.TxHash,
			formatTime(entry.RecordedAt),
			entry.UserID,
			entry.UserName,
			entry.Description,
		})
	}
	writer.Flush()
}

// AuditHandler serves GET /api/v1/audit.
type AuditHandler struct {
	reader AuditReader
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.reader.Recent(r.Context(), r.URL.Query().Get("action"), limit)
	if err != nil {
		http.Error(w, "query audit error", http.StatusInternalServerError)
		return
	}
	type auditRow struct {
		ID           string          `json:"id"`
		Actor        string          `json:"actor"`
		Role         string          `json:"role"`
		Action       string          `json:"action"`
		ResourceType string          `json:"resource_type"`
		ResourceID   string          `json:"resource_id"`
		Metadata     json.RawMessage `json:"metadata,omitempty"`
		CreatedAt    string          `json:"created_at"`
	}
	rows := make([]auditRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, auditRow{
			ID:           e.ID,
			Actor:        e.Actor,
			Role:         e.Role,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Metadata:     e.Metadata,
			CreatedAt:    formatTime(e.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseListFilter(r *http.Request) (expense.ListFilter, error) {
	var filter expense.ListFilter
	var err error
	if filter.From, err = parseOptionalTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseOptionalTime(r, "to"); err != nil {
		return filter, err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return filter, errors.New("to must be after from")
	}
	filter.Category = r.URL.Query().Get("category")
	if filter.Limit, err = parseLimit(r); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseOptionalTime(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
