package monitor

import (
	"sort"
	"time"
)

// Status tags how trustworthy a reading is.
type Status string

const (
	StatusOK      Status = "ok"
	StatusStale   Status = "stale"
	StatusMissing Status = "missing"
)

// UnknownEpoch is the sentinel for "no epoch observed yet".
const UnknownEpoch int64 = -1

// MetricName identifies a tracked metric.
type MetricName string

const (
	MetricEpoch              MetricName = "epoch"
	MetricSOLPrice           MetricName = "sol_price"
	MetricStake              MetricName = "stake"
	MetricLeaderRewards      MetricName = "leader_rewards"
	MetricCommission         MetricName = "commission"
	MetricVotingFee          MetricName = "voting_fee"
	MetricNetToLST           MetricName = "net_to_lst"
	MetricPreviousEpochTotal MetricName = "previous_epoch_total"
	MetricIdentityBalance    MetricName = "identity_balance"
	MetricVoteBalance        MetricName = "vote_balance"
	MetricVolume24h          MetricName = "volume_24h"
	MetricHolders            MetricName = "holders"
	MetricSupply             MetricName = "supply"
)

// Units used by readings.
const (
	UnitSOL   = "SOL"
	UnitUSD   = "USD"
	UnitCount = "count"
	UnitEpoch = "epoch"
)

// Reading is a single typed value with its status.
type Reading struct {
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Status     Status    `json:"status"`
	ObservedAt time.Time `json:"observed_at,omitempty"`
}

// OK reports whether the reading can be used for derivations.
func (r Reading) OK() bool { return r.Status == StatusOK }

// Missing returns a missing reading with the given unit.
func Missing(unit string) Reading {
	return Reading{Unit: unit, Status: StatusMissing}
}

// Snapshot is one immutable polling cycle result.
type Snapshot struct {
	epoch      Reading
	metrics    map[MetricName]Reading
	capturedAt time.Time
}

// NewSnapshot copies metrics into a new snapshot. The epoch reading is taken from
// metrics[MetricEpoch] when present.
func NewSnapshot(metrics map[MetricName]Reading, capturedAt time.Time) Snapshot {
	copied := make(map[MetricName]Reading, len(metrics))
	for name, reading := range metrics {
		copied[name] = reading
	}
	epoch, ok := copied[MetricEpoch]
	if !ok {
		epoch = Missing(UnitEpoch)
		copied[MetricEpoch] = epoch
	}
	return Snapshot{epoch: epoch, metrics: copied, capturedAt: capturedAt.UTC()}
}

// Epoch returns the observed epoch and whether it is usable.
func (s Snapshot) Epoch() (int64, bool) {
	if !s.epoch.OK() {
		return UnknownEpoch, false
	}
	return int64(s.epoch.Value), true
}

// Get returns the reading for name; unknown names are missing.
func (s Snapshot) Get(name MetricName) Reading {
	if reading, ok := s.metrics[name]; ok {
		return reading
	}
	return Missing("")
}

// CapturedAt returns when the snapshot was assembled.
func (s Snapshot) CapturedAt() time.Time { return s.capturedAt }

// Names returns metric names in sorted order.
func (s Snapshot) Names() []MetricName {
	names := make([]MetricName, 0, len(s.metrics))
	for name := range s.metrics {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Metrics returns a copy of all readings.
func (s Snapshot) Metrics() map[MetricName]Reading {
	out := make(map[MetricName]Reading, len(s.metrics))
	for name, reading := range s.metrics {
		out[name] = reading
	}
	return out
}

// AllMissing reports whether no source produced a usable reading.
func (s Snapshot) AllMissing() bool {
	for _, reading := range s.metrics {
		if reading.Status != StatusMissing {
			return false
		}
	}
	return true
}

// UnitOf returns the canonical unit for a known metric.
func UnitOf(name MetricName) string {
	switch name {
	case MetricEpoch:
		return UnitEpoch
	case MetricSOLPrice, MetricVolume24h:
		return UnitUSD
	case MetricHolders, MetricSupply:
		return UnitCount
	default:
		return UnitSOL
	}
}
