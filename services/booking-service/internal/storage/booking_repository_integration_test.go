//go:build integration

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/outbox"
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

func seedCatalog(t *testing.T, pool *db.Pool) (resourceID, serviceID string) {
	t.Helper()
	resourceID = "res-" + uuid.NewString()
	serviceID = "svc-" + uuid.NewString()
	ctx := context.Background()
	if _, err := pool.Exec(ctx, `INSERT INTO resources (id, name) VALUES ($1, 'chair')`, resourceID); err != nil {
		t.Fatalf("seed resource: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO services (id, name, duration_minutes, price) VALUES ($1, 'cut', 30, 45)`, serviceID); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return resourceID, serviceID
}

func TestCreateRejectsOverlapAtCommit(t *testing.T) {
	pool := openTestPool(t)
	repo := NewBookingRepository(pool, outbox.NewRepository())
	resourceID, serviceID := seedCatalog(t, pool)
	ctx := context.Background()

	book := func(start string, buffer int) (*model.Booking, error) {
		b := &model.Booking{
			ID:              uuid.NewString(),
			ResourceID:      resourceID,
			ClientID:        "c1",
			ServiceID:       serviceID,
			Date:            "2026-10-26",
			StartTime:       start,
			DurationMinutes: 30,
			BufferMinutes:   buffer,
			Status:          model.StatusScheduled,
		}
		return b, repo.Create(ctx, b)
	}

	first, err := book("10:00", 0)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("expected version 1, got %d", first.Version)
	}
	if _, err := book("10:15", 0); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken for overlap, got %v", err)
	}
	// Half-open intervals: ending at 10:30 leaves 10:30 free.
	if _, err := book("10:30", 15); err != nil {
		t.Fatalf("adjacent booking: %v", err)
	}
	// The trailing buffer blocks 11:00 to 11:15.
	if _, err := book("11:00", 0); !errors.Is(err, model.ErrSlotTaken) {
		t.Fatalf("expected buffer to block, got %v", err)
	}

	if _, err := repo.Transition(ctx, first.ID, model.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := book("10:00", 0); err != nil {
		t.Fatalf("cancelled booking should free its slot: %v", err)
	}

	var events int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE aggregate_id = $1`, first.ID).Scan(&events); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if events != 2 {
		t.Fatalf("expected created and status_changed events, got %d", events)
	}
}
