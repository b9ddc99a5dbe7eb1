package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	monitor "strongbot/internal/monitor/domain"
)

// EpochSource reports the current epoch.
type EpochSource struct {
	client *Client
}

// NewEpochSource constructs an EpochSource.
func NewEpochSource(client *Client) (*EpochSource, error) {
	if client == nil {
		return nil, errors.New("solanarpc: nil client")
	}
	return &EpochSource{client: client}, nil
}

func (s *EpochSource) Name() string { return "solana_epoch" }

func (s *EpochSource) Fields() []monitor.MetricName {
	return []monitor.MetricName{monitor.MetricEpoch}
}

// Fetch implements the aggregator source contract.
func (s *EpochSource) Fetch(ctx context.Context) (map[monitor.MetricName]monitor.Reading, error) {
	epoch, err := s.client.CurrentEpoch(ctx)
	if err != nil {
		return nil, err
	}
	return map[monitor.MetricName]monitor.Reading{
		monitor.MetricEpoch: {
			Value:      float64(epoch),
			Unit:       monitor.UnitEpoch,
			Status:     monitor.StatusOK,
			ObservedAt: time.Now().UTC(),
		},
	}, nil
}

// BalanceSource reports the validator identity and vote account balances.
type BalanceSource struct {
	client   *Client
	identity *solana.PublicKey
	vote     *solana.PublicKey
}

// NewBalanceSource constructs a BalanceSource. Either account may be empty, but not both.
func NewBalanceSource(client *Client, identity, vote string) (*BalanceSource, error) {
	if client == nil {
		return nil, errors.New("solanarpc: nil client")
	}
	if identity == "" && vote == "" {
		return nil, errors.New("solanarpc: no accounts configured")
	}
	s := &BalanceSource{client: client}
	var err error
	if s.identity, err = parseAccount("identity", identity); err != nil {
		return nil, err
	}
	if s.vote, err = parseAccount("vote", vote); err != nil {
		return nil, err
	}
	return s, nil
}

func parseAccount(role, value string) (*solana.PublicKey, error) {
	if value == "" {
		return nil, nil
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: %s account %q: %w", role, value, err)
	}
	return &key, nil
}

func (s *BalanceSource) Name() string { return "solana_balances" }

func (s *BalanceSource) Fields() []monitor.MetricName {
	var fields []monitor.MetricName
	if s.identity != nil {
		fields = append(fields, monitor.MetricIdentityBalance)
	}
	if s.vote != nil {
		fields = append(fields, monitor.MetricVoteBalance)
	}
	return fields
}

// Fetch returns whichever balances could be read; it fails only when none could.
func (s *BalanceSource) Fetch(ctx context.Context) (map[monitor.MetricName]monitor.Reading, error) {
	out := make(map[monitor.MetricName]monitor.Reading, 2)
	var errs []error
	accounts := []struct {
		name   monitor.MetricName
		pubkey *solana.PublicKey
	}{
		{monitor.MetricIdentityBalance, s.identity},
		{monitor.MetricVoteBalance, s.vote},
	}
	for _, account := range accounts {
		if account.pubkey == nil {
			continue
		}
		sol, err := s.client.Balance(ctx, *account.pubkey)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[account.name] = monitor.Reading{
			Value:      sol.InexactFloat64(),
			Unit:       monitor.UnitSOL,
			Status:     monitor.StatusOK,
			ObservedAt: time.Now().UTC(),
		}
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
