package firecrawl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	monitor "strongbot/internal/monitor/domain"
)

func TestSourceFetchPollsJob(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fc-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/extract":
			var req ExtractRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"id":"job-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/extract/job-1":
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"success":true,"status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"status":"completed","data":{
				"sol_price":"$150.00","stake":250000,"leader_rewards":6,"commission":"4 SOL",
				"voting_fee":0.5,"current_stats_val":"n/a"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient("fc-key", WithBaseURL(server.URL), WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	source, err := NewSource(client, []string{"https://svt.one/dashboard/x"}, "", nil)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	readings, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := readings[monitor.MetricSOLPrice]; got.Value != 150 {
		t.Fatalf("unexpected price %+v", got)
	}
	if got := readings[monitor.MetricCommission]; got.Value != 4 {
		t.Fatalf("unexpected commission %+v", got)
	}
	if _, ok := readings[monitor.MetricPreviousEpochTotal]; ok {
		t.Fatalf("unparsable value should be omitted")
	}
	if polls.Load() < 2 {
		t.Fatalf("expected job polling, got %d polls", polls.Load())
	}
}

func TestExtractRateLimitedIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, _ := NewClient("fc-key", WithBaseURL(server.URL))
	_, err := client.Extract(context.Background(), ExtractRequest{URLs: []string{"https://example.com"}})
	var transport *monitor.TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestExtractFailedJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"success":true,"id":"job-2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"status":"failed","error":"blocked"}`))
	}))
	defer server.Close()

	client, _ := NewClient("fc-key", WithBaseURL(server.URL), WithPollInterval(time.Millisecond))
	if _, err := client.Extract(context.Background(), ExtractRequest{URLs: []string{"https://example.com"}}); err == nil {
		t.Fatalf("expected failed job error")
	}
}
