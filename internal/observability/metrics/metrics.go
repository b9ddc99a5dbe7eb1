package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "strongbot_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	sourceFetchTotal   *prometheus.CounterVec
	sourceFetchLatency *prometheus.HistogramVec

	monitorCycles *prometheus.CounterVec
	lastEpoch     prometheus.Gauge

	reportAttempts *prometheus.CounterVec
	reportsTotal   *prometheus.CounterVec

	expenseEvents    *prometheus.CounterVec
	expenseRecords   *prometheus.CounterVec
	expenseSessions  prometheus.Gauge
	ledgerAppendTime *prometheus.HistogramVec

	interactionsTotal *prometheus.CounterVec
)

// Init registers metrics. db may be nil; when set, connection pool gauges are exported.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		sourceFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "source_fetch_total",
				Help: "Total metric source fetches by source and result",
			},
			[]string{"source", "result"},
		)
		sourceFetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "source_fetch_latency_seconds",
				Help:    "Metric source fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		)

		monitorCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "monitor_cycles_total",
				Help: "Total epoch checks by outcome",
			},
			[]string{"outcome"},
		)
		lastEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_notified_epoch",
			Help: "Most recently notified epoch",
		})

		reportAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_attempts_total",
				Help: "Total report delivery attempts by result",
			},
			[]string{"result"},
		)
		reportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reports_total",
				Help: "Total reports by kind and result",
			},
			[]string{"kind", "result"},
		)

		expenseEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "expense_events_total",
				Help: "Total expense form events by type and result",
			},
			[]string{"event", "result"},
		)
		expenseRecords = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "expense_records_total",
				Help: "Total expense ledger writes by result",
			},
			[]string{"result"},
		)
		expenseSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "expense_sessions_active",
			Help: "Active expense form sessions",
		})
		ledgerAppendTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_append_latency_seconds",
				Help:    "Ledger append latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		)

		interactionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "interactions_total",
				Help: "Inbound chat interactions by type and result",
			},
			[]string{"type", "result"},
		)

		prometheus.MustRegister(
			sourceFetchTotal,
			sourceFetchLatency,
			monitorCycles,
			lastEpoch,
			reportAttempts,
			reportsTotal,
			expenseEvents,
			expenseRecords,
			expenseSessions,
			ledgerAppendTime,
			interactionsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSourceFetch records a source call.
func ObserveSourceFetch(source, result string, duration time.Duration) {
	if source == "" {
		source = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if sourceFetchTotal != nil {
		sourceFetchTotal.WithLabelValues(source, result).Inc()
	}
	if sourceFetchLatency != nil {
		sourceFetchLatency.WithLabelValues(source).Observe(duration.Seconds())
	}
}

// IncMonitorCycle counts an epoch check outcome.
func IncMonitorCycle(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if monitorCycles != nil {
		monitorCycles.WithLabelValues(outcome).Inc()
	}
}

// SetLastEpoch exports the last notified epoch.
func SetLastEpoch(epoch int64) {
	if lastEpoch != nil {
		lastEpoch.Set(float64(epoch))
	}
}

// IncReportAttempt counts one delivery attempt.
func IncReportAttempt(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reportAttempts != nil {
		reportAttempts.WithLabelValues(result).Inc()
	}
}

// IncReport counts a finished publish.
func IncReport(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if reportsTotal != nil {
		reportsTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncExpenseEvent counts a form interaction.
func IncExpenseEvent(event, result string) {
	if event == "" {
		event = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if expenseEvents != nil {
		expenseEvents.WithLabelValues(event, result).Inc()
	}
}

// IncExpenseRecord counts a ledger write.
func IncExpenseRecord(result string) {
	if result == "" {
		result = resultSuccess
	}
	if expenseRecords != nil {
		expenseRecords.WithLabelValues(result).Inc()
	}
}

// SetActiveSessions exports the number of non-terminal form sessions.
func SetActiveSessions(count int) {
	if expenseSessions != nil {
		expenseSessions.Set(float64(count))
	}
}

// ObserveLedgerAppend records ledger append latency.
func ObserveLedgerAppend(backend string, duration time.Duration) {
	if backend == "" {
		backend = "unknown"
	}
	if ledgerAppendTime != nil {
		ledgerAppendTime.WithLabelValues(backend).Observe(duration.Seconds())
	}
}

// IncInteraction counts an inbound interaction.
func IncInteraction(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if interactionsTotal != nil {
		interactionsTotal.WithLabelValues(kind, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
