package postgres_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"strongbot/internal/audit"
	expense "strongbot/internal/expense/domain"
	"strongbot/internal/expense/infrastructure/postgres"
)

func TestLedger_AppendListIdempotent(t *testing.T) {
	db := openDB(t)
	defer db.Close()
	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM expense_entries")

	ledger := postgres.NewLedger(db)
	recorded := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	entry := expense.Entry{
		SessionID:  "pg-1",
		Category:   "RPC Services",
		Amount:     decimal.RequireFromString("0.123456789"),
		Currency:   "SOL",
		UserID:     "user-1",
		UserName:   "alice",
		ChannelID:  "chan-1",
		Epoch:      612,
		RecordedAt: recorded,
	}
	for i := 0; i < 2; i++ {
		if err := ledger.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	second := entry
	second.SessionID = "pg-2"
	second.Category = "Legal"
	second.Epoch = expense.UnknownEpoch
	second.RecordedAt = recorded.Add(time.Hour)
	if err := ledger.Append(ctx, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	all, err := ledger.List(ctx, expense.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if !all[0].Amount.Equal(entry.Amount) || all[0].Epoch != 612 || !all[0].RecordedAt.Equal(recorded) {
		t.Fatalf("unexpected entry %+v", all[0])
	}
	legal, err := ledger.List(ctx, expense.ListFilter{Category: "Legal", From: recorded.Add(time.Minute), Limit: 10})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(legal) != 1 || legal[0].Epoch != expense.UnknownEpoch {
		t.Fatalf("unexpected filtered entries %+v", legal)
	}
}

func TestAuditRepository_LogRecent(t *testing.T) {
	db := openDB(t)
	defer db.Close()
	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM audit_logs")

	repo := audit.NewRepository(db)
	if err := repo.Log(ctx, audit.Entry{Actor: "user-1", Action: "expense.record", ResourceID: "pg-1", Metadata: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries, err := repo.Recent(ctx, "expense.record", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].ResourceID != "pg-1" || entries[0].PayloadDigest == "" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return db
}

func applyMigrations(db *sql.DB) error {
	content, err := os.ReadFile(filepath.Join(projectRoot(), "migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(content))
	return err
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", "..", ".."))
}
