package monitor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{in: 12.5, want: 12.5},
		{in: json.Number("42"), want: 42},
		{in: "$1,234.50", want: 1234.5},
		{in: "45.3K", want: 45300},
		{in: "$2M", want: 2_000_000},
		{in: "250,000 SOL", want: 250000},
	}
	for _, tc := range cases {
		got, err := ParseNumber(tc.in)
		if err != nil {
			t.Fatalf("ParseNumber(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseNumber(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseNumberRejectsPlaceholders(t *testing.T) {
	for _, in := range []any{"N/A", "", nil, true} {
		if _, err := ParseNumber(in); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("ParseNumber(%v): expected malformed, got %v", in, err)
		}
	}
}

func TestSnapshotWithoutEpoch(t *testing.T) {
	s := NewSnapshot(nil, testTime)
	if _, ok := s.Epoch(); ok {
		t.Fatalf("expected no epoch")
	}
	if s.Get(MetricEpoch).Status != StatusMissing {
		t.Fatalf("expected missing epoch reading")
	}
	m := s.Metrics()
	m[MetricStake] = Reading{Value: 1, Status: StatusOK}
	if s.Get(MetricStake).OK() {
		t.Fatalf("snapshot must not change through Metrics copy")
	}
}

var testTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
