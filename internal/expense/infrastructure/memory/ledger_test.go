package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	expense "strongbot/internal/expense/domain"
)

func TestAppendIsIdempotentAndListFilters(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	entries := []expense.Entry{
		{SessionID: "b", Category: "Travel", Amount: decimal.NewFromInt(2), RecordedAt: base.Add(2 * time.Hour)},
		{SessionID: "a", Category: "Legal", Amount: decimal.NewFromInt(1), RecordedAt: base.Add(time.Hour)},
		{SessionID: "a", Category: "Legal", Amount: decimal.NewFromInt(99), RecordedAt: base.Add(time.Hour)},
	}
	for _, e := range entries {
		if err := ledger.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	all, err := ledger.List(ctx, expense.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].SessionID != "a" || !all[0].Amount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected entries %+v", all)
	}
	travel, _ := ledger.List(ctx, expense.ListFilter{Category: "Travel"})
	if len(travel) != 1 || travel[0].SessionID != "b" {
		t.Fatalf("unexpected filtered entries %+v", travel)
	}
	limited, _ := ledger.List(ctx, expense.ListFilter{From: base.Add(90 * time.Minute), Limit: 5})
	if len(limited) != 1 || limited[0].SessionID != "b" {
		t.Fatalf("unexpected ranged entries %+v", limited)
	}
	if err := ledger.Append(ctx, expense.Entry{}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}
