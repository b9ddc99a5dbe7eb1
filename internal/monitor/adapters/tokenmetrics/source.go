package tokenmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	monitor "strongbot/internal/monitor/domain"
)

const (
	defaultBaseURL = "https://public-api.birdeye.so"
	sourceName     = "token_metrics"
)

// DefaultFields maps token overview keys onto tracked metrics.
func DefaultFields() map[string]monitor.MetricName {
	return map[string]monitor.MetricName{
		"v24hUSD": monitor.MetricVolume24h,
		"holder":  monitor.MetricHolders,
		"supply":  monitor.MetricSupply,
	}
}

// Source reads LST market metrics from a token overview endpoint.
type Source struct {
	baseURL string
	apiKey  string
	mint    string
	chain   string
	fields  map[string]monitor.MetricName
	client  *http.Client
}

// Option configures the source.
type Option func(*Source)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(s *Source) {
		if baseURL != "" {
			s.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithFields overrides the response key mapping.
func WithFields(fields map[string]monitor.MetricName) Option {
	return func(s *Source) {
		if len(fields) > 0 {
			s.fields = fields
		}
	}
}

// NewSource constructs a Source for the token mint address.
func NewSource(apiKey, mint string, opts ...Option) (*Source, error) {
	if mint == "" {
		return nil, errors.New("tokenmetrics: empty mint")
	}
	s := &Source{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		mint:    mint,
		chain:   "solana",
		fields:  DefaultFields(),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Name() string { return sourceName }

func (s *Source) Fields() []monitor.MetricName {
	out := make([]monitor.MetricName, 0, len(s.fields))
	for _, name := range s.fields {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type overviewResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// Fetch reads the token overview.
func (s *Source) Fetch(ctx context.Context) (map[monitor.MetricName]monitor.Reading, error) {
	endpoint := s.baseURL + "/defi/token_overview?address=" + url.QueryEscape(s.mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-chain", s.chain)
	if s.apiKey != "" {
		req.Header.Set("X-API-KEY", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, monitor.NewTransportError(sourceName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, monitor.NewTransportError(sourceName, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokenmetrics: unexpected status %d", resp.StatusCode)
	}

	var decoded overviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", monitor.ErrMalformedResponse, err)
	}
	if !decoded.Success || decoded.Data == nil {
		return nil, fmt.Errorf("%w: unsuccessful overview: %s", monitor.ErrMalformedResponse, decoded.Message)
	}

	now := time.Now().UTC()
	out := make(map[monitor.MetricName]monitor.Reading, len(s.fields))
	for key, name := range s.fields {
		raw, ok := lookup(decoded.Data, key)
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

// lookup resolves dotted keys such as "extensions.holders".
func lookup(data map[string]any, key string) (any, bool) {
	current := any(data)
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
