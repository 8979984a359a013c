package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
)

type failure struct {
	attempts  int
	status    string
	nextRunAt time.Time
	lastError string
}

type memStore struct {
	jobs   []Job
	done   []int64
	failed map[int64]failure
}

func (s *memStore) Claim(context.Context, int) ([]Job, error) {
	jobs := s.jobs
	s.jobs = nil
	return jobs, nil
}

func (s *memStore) MarkDone(_ context.Context, id int64) error {
	s.done = append(s.done, id)
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id int64, attempts int, status string, next time.Time, lastError string) error {
	if s.failed == nil {
		s.failed = map[int64]failure{}
	}
	s.failed[id] = failure{attempts: attempts, status: status, nextRunAt: next, lastError: lastError}
	return nil
}

type runnerFunc func(context.Context, projection.Step, projection.Event) error

func (f runnerFunc) RunStep(ctx context.Context, step projection.Step, evt projection.Event) error {
	return f(ctx, step, evt)
}

func newTestWorker(store Store, runner StepRunner) *Worker {
	w := NewWorker(store, runner, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{Backoff: time.Minute, MaxBackoff: 10 * time.Minute})
	w.now = func() time.Time { return time.Date(2026, 10, 26, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestProcessBatchSettlesJobs(t *testing.T) {
	store := &memStore{jobs: []Job{
		{ID: 1, Step: projection.StepMirror, Event: projection.Event{BookingID: "ok"}, Attempts: 0, MaxAttempts: 3},
		{ID: 2, Step: projection.StepLedger, Event: projection.Event{BookingID: "bad"}, Attempts: 0, MaxAttempts: 3},
		{ID: 3, Step: projection.StepLedger, Event: projection.Event{BookingID: "bad"}, Attempts: 2, MaxAttempts: 3},
	}}
	runner := runnerFunc(func(_ context.Context, _ projection.Step, evt projection.Event) error {
		if evt.BookingID == "bad" {
			return errors.New("catalog unavailable")
		}
		return nil
	})

	done, err := newTestWorker(store, runner).ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if done != 1 || len(store.done) != 1 || store.done[0] != 1 {
		t.Fatalf("expected job 1 done, got done=%d %v", done, store.done)
	}
	if f := store.failed[2]; f.status != StatusPending || f.attempts != 1 || f.lastError != "catalog unavailable" {
		t.Fatalf("job 2: unexpected failure %+v", f)
	}
	if f := store.failed[3]; f.status != StatusDead || f.attempts != 3 {
		t.Fatalf("job 3: expected dead, got %+v", f)
	}
	want := time.Date(2026, 10, 26, 12, 1, 0, 0, time.UTC)
	if !store.failed[2].nextRunAt.Equal(want) {
		t.Fatalf("job 2 next run: want %s got %s", want, store.failed[2].nextRunAt)
	}
}

func TestDelayBackoff(t *testing.T) {
	w := newTestWorker(&memStore{}, runnerFunc(func(context.Context, projection.Step, projection.Event) error { return nil }))
	cases := map[int]time.Duration{1: time.Minute, 2: 2 * time.Minute, 3: 4 * time.Minute, 4: 8 * time.Minute, 5: 10 * time.Minute, 12: 10 * time.Minute}
	for attempts, want := range cases {
		if got := w.delay(attempts); got != want {
			t.Fatalf("attempt %d: want %s got %s", attempts, want, got)
		}
	}
}
