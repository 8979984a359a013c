//go:build integration

package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
)

// openTestPool connects to DATABASE_URL and applies the service migrations.
func openTestPool(t *testing.T) *db.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)

	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.sql"))
	if err != nil || len(files) == 0 {
		t.Fatalf("migrations not found: %v", err)
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("apply %s: %v", f, err)
		}
	}
	return pool
}

func posting(bookingID string) projection.Posting {
	now := time.Now().UTC()
	entry := func(typ projection.EntryType, amount, status string) projection.LedgerEntry {
		return projection.LedgerEntry{
			ID:         uuid.NewString(),
			BookingID:  bookingID,
			ResourceID: "r1",
			AccountID:  "acct-r1",
			Type:       typ,
			Amount:     decimal.RequireFromString(amount),
			Status:     status,
			EntryDate:  "2026-10-26",
			CreatedAt:  now,
		}
	}
	commission := entry(projection.EntryCommission, "4.50", projection.EntryPending)
	return projection.Posting{
		Revenue:    entry(projection.EntryRevenue, "45.00", projection.EntryCompleted),
		Commission: &commission,
		Record: &projection.CommissionRecord{
			ID:         uuid.NewString(),
			BookingID:  bookingID,
			ResourceID: "r1",
			Rate:       decimal.NewFromInt(10),
			Amount:     decimal.RequireFromString("4.50"),
			Status:     projection.EntryPending,
			CreatedAt:  now,
		},
	}
}

func TestPostCompletionIsIdempotent(t *testing.T) {
	pool := openTestPool(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()
	bookingID := uuid.NewString()

	first, err := repo.PostCompletion(ctx, posting(bookingID))
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	if first.Entries != 2 || first.Records != 1 {
		t.Fatalf("expected 2 entries and 1 record, got %+v", first)
	}
	// A redelivery builds fresh row ids; the natural keys still dedupe it.
	again, err := repo.PostCompletion(ctx, posting(bookingID))
	if err != nil {
		t.Fatalf("second post: %v", err)
	}
	if again.Entries != 0 || again.Records != 0 {
		t.Fatalf("expected replay to insert nothing, got %+v", again)
	}
	entries, err := repo.ListEntries(ctx, bookingID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestVoidCancelsEntriesAndCommissionRecord(t *testing.T) {
	pool := openTestPool(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()
	bookingID := uuid.NewString()

	if _, err := repo.PostCompletion(ctx, posting(bookingID)); err != nil {
		t.Fatalf("post: %v", err)
	}
	n, err := repo.VoidBookingEntries(ctx, bookingID, "refund issued at desk")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 voided, got %d err=%v", n, err)
	}
	var status string
	if err := pool.QueryRow(ctx, `SELECT status FROM commission_records WHERE booking_id = $1`, bookingID).Scan(&status); err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != projection.EntryCanceled {
		t.Fatalf("expected canceled commission record, got %s", status)
	}
	if n, err := repo.VoidBookingEntries(ctx, bookingID, "again"); err != nil || n != 0 {
		t.Fatalf("expected second void to touch nothing, got %d err=%v", n, err)
	}
}
