package monitor

// Derivation computes a metric from other readings.
type Derivation struct {
	Name    MetricName
	Unit    string
	Inputs  []MetricName
	Compute func(values map[MetricName]float64) float64
}

// NetToLST is the SOL amount routed to the LST for an epoch:
// leader rewards + commission - voting fee.
var NetToLST = Derivation{
	Name:   MetricNetToLST,
	Unit:   UnitSOL,
	Inputs: []MetricName{MetricLeaderRewards, MetricCommission, MetricVotingFee},
	Compute: func(v map[MetricName]float64) float64 {
		return v[MetricLeaderRewards] + v[MetricCommission] - v[MetricVotingFee]
	},
}

// DefaultDerivations are applied by the aggregator unless overridden.
func DefaultDerivations() []Derivation {
	return []Derivation{NetToLST}
}

// Apply evaluates d against readings. The result is missing unless every input is ok.
func (d Derivation) Apply(readings map[MetricName]Reading) Reading {
	values := make(map[MetricName]float64, len(d.Inputs))
	for _, input := range d.Inputs {
		reading, ok := readings[input]
		if !ok || !reading.OK() {
			return Missing(d.Unit)
		}
		values[input] = reading.Value
	}
	return Reading{Value: d.Compute(values), Unit: d.Unit, Status: StatusOK}
}
