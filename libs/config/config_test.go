package config

import (
	"testing"
	"time"
)

func TestIntBounds(t *testing.T) {
	t.Setenv("SLOT_STEP_MINUTES", "15")
	n, err := Int("SLOT_STEP_MINUTES", 30, 1, 240)
	if err != nil || n != 15 {
		t.Fatalf("expected 15, got %d (%v)", n, err)
	}

	t.Setenv("SLOT_STEP_MINUTES", "0")
	if _, err := Int("SLOT_STEP_MINUTES", 30, 1, 240); err == nil {
		t.Fatal("expected error for value below min")
	}

	t.Setenv("SLOT_STEP_MINUTES", "")
	n, err = Int("SLOT_STEP_MINUTES", 30, 1, 240)
	if err != nil || n != 30 {
		t.Fatalf("expected fallback 30, got %d (%v)", n, err)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("RETRY_BACKOFF", "90s")
	d, err := Duration("RETRY_BACKOFF", time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("expected 90s, got %s (%v)", d, err)
	}
	t.Setenv("RETRY_BACKOFF", "soon")
	if _, err := Duration("RETRY_BACKOFF", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	if Bool("OTEL_ENABLED", true) {
		t.Fatal("expected false")
	}
	t.Setenv("OTEL_ENABLED", "")
	if !Bool("OTEL_ENABLED", true) {
		t.Fatal("expected fallback true")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8083"); err == nil {
		t.Fatal("expected invalid port error")
	}
}
