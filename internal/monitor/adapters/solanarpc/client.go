package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"

	monitor "strongbot/internal/monitor/domain"
)

// solDecimals is the lamport exponent of one SOL.
const solDecimals = 9

const sourceName = "solana_rpc"

// Client reads epoch and balance data through a Solana RPC node.
type Client struct {
	rpc *rpc.Client
}

// NewClient constructs a client for endpoint (e.g. a Helius mainnet URL).
func NewClient(endpoint string) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("solanarpc: empty endpoint")
	}
	return &Client{rpc: rpc.New(endpoint)}, nil
}

// HeliusEndpoint builds the Helius mainnet RPC URL for apiKey.
func HeliusEndpoint(apiKey string) string {
	return "https://mainnet.helius-rpc.com/?api-key=" + apiKey
}

// CurrentEpoch returns the finalized epoch number.
func (c *Client) CurrentEpoch(ctx context.Context) (int64, error) {
	info, err := c.rpc.GetEpochInfo(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return monitor.UnknownEpoch, classify("getEpochInfo", err)
	}
	if info == nil {
		return monitor.UnknownEpoch, fmt.Errorf("%w: getEpochInfo: empty result", monitor.ErrMalformedResponse)
	}
	if info.Epoch > math.MaxInt64 {
		return monitor.UnknownEpoch, fmt.Errorf("%w: epoch %d out of range", monitor.ErrMalformedResponse, info.Epoch)
	}
	return int64(info.Epoch), nil
}

// Balance returns the finalized balance of account in SOL.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (decimal.Decimal, error) {
	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentFinalized)
	if err != nil {
		return decimal.Zero, classify("getBalance", err)
	}
	if out == nil {
		return decimal.Zero, fmt.Errorf("%w: getBalance: empty result", monitor.ErrMalformedResponse)
	}
	return LamportsToSOL(out.Value), nil
}

// LamportsToSOL converts a lamport amount without float rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals)
}

// classify separates node-side rejections from transport failures.
func classify(method string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("solanarpc: %s: rpc error %d: %s", method, rpcErr.Code, rpcErr.Message)
	}
	return monitor.NewTransportError(sourceName, fmt.Errorf("%s: %w", method, err))
}
