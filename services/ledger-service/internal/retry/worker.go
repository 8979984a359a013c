// Package retry re-runs projection steps that failed on first delivery, with
// exponential backoff and a dead state after the attempt budget is spent.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
)

type Store interface {
	Claim(ctx context.Context, limit int) ([]Job, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, status string, nextRunAt time.Time, lastError string) error
}

type StepRunner interface {
	RunStep(ctx context.Context, step projection.Step, evt projection.Event) error
}

type Worker struct {
	store      Store
	runner     StepRunner
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

type WorkerConfig struct {
	Interval   time.Duration
	BatchSize  int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewWorker(store Store, runner StepRunner, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 10 * time.Second
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = 30 * time.Minute
	}
	return &Worker{
		store:      store,
		runner:     runner,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		now:        time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("projection retry batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch runs every due job once and returns how many succeeded.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.store.Claim(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, job := range jobs {
		jobCtx := job.Trace.Into(ctx)
		runErr := w.runner.RunStep(jobCtx, job.Step, job.Event)
		if runErr == nil {
			if err := w.store.MarkDone(ctx, job.ID); err != nil {
				return done, err
			}
			done++
			w.logger.Info("projection retry succeeded", "step", job.Step, "booking_id", job.Event.BookingID, "attempts", job.Attempts+1)
			continue
		}

		attempts := job.Attempts + 1
		status := StatusPending
		if attempts >= job.MaxAttempts {
			status = StatusDead
			w.logger.Error("projection retry exhausted", "step", job.Step, "booking_id", job.Event.BookingID, "attempts", attempts, "err", runErr)
		}
		if err := w.store.MarkFailed(ctx, job.ID, attempts, status, w.now().UTC().Add(w.delay(attempts)), runErr.Error()); err != nil {
			return done, err
		}
	}
	return done, nil
}

// delay doubles the base backoff per attempt, capped at maxBackoff.
func (w *Worker) delay(attempts int) time.Duration {
	d := w.backoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	return d
}
