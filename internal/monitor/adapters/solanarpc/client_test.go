package solanarpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	monitor "strongbot/internal/monitor/domain"
)

const (
	identityKey = "11111111111111111111111111111111"
	voteKey     = "Vote111111111111111111111111111111111111111"
)

type nodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcCall struct {
	Method string
	Params []any
}

func rpcServer(t *testing.T, handler func(call rpcCall) (any, *nodeError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []any           `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, rpcErr := handler(rpcCall{Method: req.Method, Params: req.Params})
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func commitment(params []any) string {
	for _, p := range params {
		if cfg, ok := p.(map[string]any); ok {
			if c, ok := cfg["commitment"].(string); ok {
				return c
			}
		}
	}
	return ""
}

func TestEpochSourceFetch(t *testing.T) {
	var seen rpcCall
	server := rpcServer(t, func(call rpcCall) (any, *nodeError) {
		seen = call
		if call.Method != "getEpochInfo" {
			return nil, &nodeError{Code: -32601, Message: "method not found"}
		}
		return map[string]any{"epoch": 612, "slotIndex": 10, "slotsInEpoch": 432000, "absoluteSlot": 1, "blockHeight": 1}, nil
	})
	defer server.Close()

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	source, err := NewEpochSource(client)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	readings, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := readings[monitor.MetricEpoch]; !got.OK() || got.Value != 612 {
		t.Fatalf("unexpected epoch reading %+v", got)
	}
	if commitment(seen.Params) != "finalized" {
		t.Fatalf("expected finalized commitment, got %v", seen.Params)
	}
}

func TestBalanceSourcePartialFailure(t *testing.T) {
	server := rpcServer(t, func(call rpcCall) (any, *nodeError) {
		if call.Method != "getBalance" || len(call.Params) == 0 {
			return nil, &nodeError{Code: -32602, Message: "invalid params"}
		}
		if call.Params[0] == voteKey {
			return nil, &nodeError{Code: -32000, Message: "account not found"}
		}
		return map[string]any{"context": map[string]any{"slot": 1}, "value": 2_500_000_001}, nil
	})
	defer server.Close()

	client, _ := NewClient(server.URL)
	source, err := NewBalanceSource(client, identityKey, voteKey)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	readings, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}
	if got := readings[monitor.MetricIdentityBalance]; got.Value != 2.500000001 {
		t.Fatalf("expected 2.500000001 SOL, got %+v", got)
	}
	if _, ok := readings[monitor.MetricVoteBalance]; ok {
		t.Fatalf("vote balance should be absent")
	}
}

func TestBalanceSourceRejectsBadAccount(t *testing.T) {
	client, _ := NewClient("http://127.0.0.1:1")
	if _, err := NewBalanceSource(client, "not-a-key!", ""); err == nil {
		t.Fatalf("expected invalid account error")
	}
	if _, err := NewBalanceSource(client, "", ""); err == nil {
		t.Fatalf("expected error without accounts")
	}
}

func TestLamportsToSOLIsExact(t *testing.T) {
	if got := LamportsToSOL(1).String(); got != "0.000000001" {
		t.Fatalf("unexpected one lamport %s", got)
	}
	if got := LamportsToSOL(18_446_744_073_709_551_615).String(); got != "18446744073.709551615" {
		t.Fatalf("unexpected max lamports %s", got)
	}
}

func TestServerErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	_, err := client.CurrentEpoch(context.Background())
	var transport *monitor.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNodeErrorIsNotTransport(t *testing.T) {
	server := rpcServer(t, func(rpcCall) (any, *nodeError) {
		return nil, &nodeError{Code: -32005, Message: "node is behind"}
	})
	defer server.Close()

	client, _ := NewClient(server.URL)
	_, err := client.CurrentEpoch(context.Background())
	var transport *monitor.TransportError
	if err == nil || errors.As(err, &transport) {
		t.Fatalf("expected rpc error, got %v", err)
	}
}

func TestEpochOutOfRangeIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"epoch":18446744073709551615}}`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	if _, err := client.CurrentEpoch(context.Background()); !errors.Is(err, monitor.ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
}
