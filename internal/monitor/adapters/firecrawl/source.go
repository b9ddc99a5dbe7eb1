package firecrawl

import (
	"context"
	"errors"
	"sort"
	"time"

	monitor "strongbot/internal/monitor/domain"
)

// DefaultPrompt asks for the validator dashboard values.
const DefaultPrompt = `From SVT.one - Extract the Stake, Commission, Leader Rewards, Voting Fee, SOL Price, ` +
	`Current-stats-val (the current income value next to the income 30 epochs graph), ` +
	`Current Identity Balance, and Vote Balance values.`

// DefaultFields maps extract schema properties onto tracked metrics.
func DefaultFields() map[string]monitor.MetricName {
	return map[string]monitor.MetricName{
		"sol_price":                monitor.MetricSOLPrice,
		"stake":                    monitor.MetricStake,
		"leader_rewards":           monitor.MetricLeaderRewards,
		"commission":               monitor.MetricCommission,
		"voting_fee":               monitor.MetricVotingFee,
		"current_stats_val":        monitor.MetricPreviousEpochTotal,
		"current_identity_balance": monitor.MetricIdentityBalance,
		"vote_balance":             monitor.MetricVoteBalance,
	}
}

// Source extracts validator metrics from dashboard pages.
type Source struct {
	client *Client
	urls   []string
	prompt string
	fields map[string]monitor.MetricName
}

// NewSource constructs a Source. A nil fields map uses DefaultFields.
func NewSource(client *Client, urls []string, prompt string, fields map[string]monitor.MetricName) (*Source, error) {
	if client == nil {
		return nil, errors.New("firecrawl: nil client")
	}
	if len(urls) == 0 {
		return nil, errors.New("firecrawl: no urls")
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if len(fields) == 0 {
		fields = DefaultFields()
	}
	return &Source{client: client, urls: urls, prompt: prompt, fields: fields}, nil
}

func (s *Source) Name() string { return "firecrawl_extract" }

func (s *Source) Fields() []monitor.MetricName {
	out := make([]monitor.MetricName, 0, len(s.fields))
	for _, name := range s.fields {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fetch runs one extract job. Properties that are absent or unparsable are omitted
// so the aggregator reports them as missing.
func (s *Source) Fetch(ctx context.Context) (map[monitor.MetricName]monitor.Reading, error) {
	data, err := s.client.Extract(ctx, ExtractRequest{
		URLs:   s.urls,
		Prompt: s.prompt,
		Schema: s.schema(),
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make(map[monitor.MetricName]monitor.Reading, len(s.fields))
	for key, name := range s.fields {
		raw, ok := data[key]
		if !ok {
			continue
		}
		value, err := monitor.ParseNumber(raw)
		if err != nil {
			continue
		}
		out[name] = monitor.Reading{Value: value, Unit: monitor.UnitOf(name), Status: monitor.StatusOK, ObservedAt: now}
	}
	return out, nil
}

func (s *Source) schema() map[string]any {
	properties := make(map[string]any, len(s.fields))
	for key := range s.fields {
		properties[key] = map[string]any{"type": "number"}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
	}
}
