package notify

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	monitor "strongbot/internal/monitor/domain"
)

// ReportTitle is the heading of every epoch report.
const ReportTitle = "Daily Stronghold & StrongSOL Update"

// NotAvailable is shown for metrics without a usable value.
const NotAvailable = "N/A"

// Format selects how a metric value is rendered.
type Format string

const (
	FormatEpoch  Format = "epoch"
	FormatUSD    Format = "usd"
	FormatSOL    Format = "sol"
	FormatVolume Format = "volume"
	FormatCount  Format = "count"
)

// ReportField places one metric in the report.
type ReportField struct {
	Metric monitor.MetricName
	Label  string
	Format Format
}

// DefaultLayout is the fixed field order of the report.
func DefaultLayout() []ReportField {
	return []ReportField{
		{Metric: monitor.MetricEpoch, Label: "Current Epoch", Format: FormatEpoch},
		{Metric: monitor.MetricSOLPrice, Label: "SOL Price", Format: FormatUSD},
		{Metric: monitor.MetricStake, Label: "Stake", Format: FormatSOL},
		{Metric: monitor.MetricLeaderRewards, Label: "Leader Rewards (Previous Epoch)", Format: FormatSOL},
		{Metric: monitor.MetricCommission, Label: "Commission Earned (Previous Epoch)", Format: FormatSOL},
		{Metric: monitor.MetricVotingFee, Label: "Voting Fee", Format: FormatSOL},
		{Metric: monitor.MetricNetToLST, Label: "SOL Amount to LST", Format: FormatSOL},
		{Metric: monitor.MetricPreviousEpochTotal, Label: "Previous Epoch Total", Format: FormatSOL},
		{Metric: monitor.MetricIdentityBalance, Label: "Current Identity Balance", Format: FormatSOL},
		{Metric: monitor.MetricVoteBalance, Label: "Current Vote Balance", Format: FormatSOL},
		{Metric: monitor.MetricVolume24h, Label: "StrongSOL 24h Volume (K/M)", Format: FormatVolume},
		{Metric: monitor.MetricHolders, Label: "StrongSOL Holders", Format: FormatCount},
		{Metric: monitor.MetricSupply, Label: "StrongSOL Current Supply", Format: FormatCount},
	}
}

// LayoutFor orders the default fields by names. Unknown names are skipped; an
// empty list returns DefaultLayout.
func LayoutFor(names []monitor.MetricName) []ReportField {
	defaults := DefaultLayout()
	if len(names) == 0 {
		return defaults
	}
	byName := make(map[monitor.MetricName]ReportField, len(defaults))
	for _, f := range defaults {
		byName[f.Metric] = f
	}
	out := make([]ReportField, 0, len(names))
	for _, name := range names {
		if f, ok := byName[name]; ok {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

// ReportLine is one rendered field.
type ReportLine struct {
	Metric monitor.MetricName `json:"metric"`
	Label  string             `json:"label"`
	Value  string             `json:"value"`
	Status monitor.Status     `json:"status"`
}

// Report is the channel-neutral rendering of a snapshot.
type Report struct {
	Title       string       `json:"title"`
	Epoch       int64        `json:"epoch"`
	Broadcast   bool         `json:"broadcast"`
	Description string       `json:"description,omitempty"`
	Lines       []ReportLine `json:"lines"`
	CapturedAt  time.Time    `json:"captured_at"`
	// Nonce is fixed for one Publish call and shared by its retries.
	Nonce string `json:"-"`
}

// Unavailable lists the labels rendered as N/A.
func (r Report) Unavailable() []string {
	var out []string
	for _, line := range r.Lines {
		if line.Status == monitor.StatusMissing {
			out = append(out, line.Label)
		}
	}
	return out
}

// BuildReport renders snapshot using layout. Missing metrics stay in place as N/A.
func BuildReport(snapshot monitor.Snapshot, layout []ReportField, broadcast bool) Report {
	if len(layout) == 0 {
		layout = DefaultLayout()
	}
	epoch, ok := snapshot.Epoch()
	if !ok {
		epoch = monitor.UnknownEpoch
	}
	report := Report{
		Title:      ReportTitle,
		Epoch:      epoch,
		Broadcast:  broadcast,
		CapturedAt: snapshot.CapturedAt(),
		Lines:      make([]ReportLine, 0, len(layout)),
	}
	for _, field := range layout {
		reading := snapshot.Get(field.Metric)
		report.Lines = append(report.Lines, ReportLine{
			Metric: field.Metric,
			Label:  field.Label,
			Value:  formatReading(reading, field.Format),
			Status: reading.Status,
		})
	}
	return report
}

func formatReading(r monitor.Reading, format Format) string {
	switch r.Status {
	case monitor.StatusOK:
		return formatValue(r.Value, format)
	case monitor.StatusStale:
		return formatValue(r.Value, format) + " (stale)"
	default:
		return NotAvailable
	}
}

func formatValue(v float64, format Format) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NotAvailable
	}
	switch format {
	case FormatEpoch, FormatCount:
		return humanize.Comma(int64(math.Round(v)))
	case FormatUSD:
		return "$" + humanize.FormatFloat("#,###.##", v)
	case FormatVolume:
		return FormatVolumeKM(v)
	default:
		return humanize.CommafWithDigits(v, 4) + " SOL"
	}
}

// FormatVolumeKM renders a dollar amount with K or M suffixes.
func FormatVolumeKM(v float64) string {
	switch {
	case v >= 1_000_000:
		return "$" + humanize.FormatFloat("#,###.#", v/1_000_000) + "M"
	case v >= 1_000:
		return "$" + humanize.FormatFloat("#,###.#", v/1_000) + "K"
	default:
		return "$" + humanize.FormatFloat("#,###.##", v)
	}
}

func (l ReportLine) String() string {
	return fmt.Sprintf("%s: %s", l.Label, l.Value)
}
