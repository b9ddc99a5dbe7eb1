package tokenmetrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	monitor "strongbot/internal/monitor/domain"
)

func TestFetchTokenOverview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/defi/token_overview" || r.URL.Query().Get("address") != "mint-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-API-KEY") != "be-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"v24hUSD":"$45.3K","holder":1234,"supply":"1,000,000","extensions":{"holders":99}}}`))
	}))
	defer server.Close()

	source, err := NewSource("be-key", "mint-1", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	readings, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := readings[monitor.MetricVolume24h]; got.Value != 45300 {
		t.Fatalf("unexpected volume %+v", got)
	}
	if got := readings[monitor.MetricHolders]; got.Value != 1234 {
		t.Fatalf("unexpected holders %+v", got)
	}
	if got := readings[monitor.MetricSupply]; got.Value != 1_000_000 {
		t.Fatalf("unexpected supply %+v", got)
	}
}

func TestFetchDottedField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"extensions":{"holders":"2,500"}}}`))
	}))
	defer server.Close()

	source, _ := NewSource("", "mint-1", WithBaseURL(server.URL),
		WithFields(map[string]monitor.MetricName{"extensions.holders": monitor.MetricHolders}))
	readings, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := readings[monitor.MetricHolders]; got.Value != 2500 {
		t.Fatalf("unexpected holders %+v", got)
	}
}

func TestFetchUnsuccessful(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"invalid address"}`))
	}))
	defer server.Close()

	source, _ := NewSource("", "mint-1", WithBaseURL(server.URL))
	if _, err := source.Fetch(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
