package retry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	otelx "github.com/md-rashed-zaman/salonpos/libs/otel"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusDead    = "dead"
)

type Job struct {
	ID          int64              `json:"id"`
	Step        projection.Step    `json:"step"`
	Event       projection.Event   `json:"event"`
	Attempts    int                `json:"attempts"`
	MaxAttempts int                `json:"max_attempts"`
	NextRunAt   time.Time          `json:"next_run_at"`
	LastError   string             `json:"last_error,omitempty"`
	Status      string             `json:"status"`
	Trace       otelx.TraceContext `json:"-"`
}

// Repository stores projection_retries rows. Claiming a job pushes next_run_at
// forward by a lease, so a crashed worker's jobs become due again on their own.
type Repository struct {
	pool        *db.Pool
	maxAttempts int
	lease       time.Duration
}

func NewRepository(pool *db.Pool, maxAttempts int, lease time.Duration) *Repository {
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &Repository{pool: pool, maxAttempts: maxAttempts, lease: lease}
}

// Enqueue is idempotent per (event, step).
func (r *Repository) Enqueue(ctx context.Context, step projection.Step, evt projection.Event, cause error) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}
	tc := otelx.Capture(ctx)
	_, err = r.pool.Exec(ctx, `
		INSERT INTO projection_retries
			(event_id, step, booking_id, payload, max_attempts, last_error, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7, $8)
		ON CONFLICT (event_id, step) DO NOTHING
	`, evt.EventID, string(step), evt.BookingID, payload, r.maxAttempts, lastErr, tc.Parent, tc.State)
	return err
}

func (r *Repository) Claim(ctx context.Context, limit int) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE projection_retries
		SET next_run_at = now() + make_interval(secs => $2), updated_at = now()
		WHERE id IN (
			SELECT id FROM projection_retries
			WHERE status = 'pending' AND next_run_at <= now()
			ORDER BY next_run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, step, payload, attempts, max_attempts, next_run_at, COALESCE(last_error, ''), status, traceparent, tracestate
	`, limit, r.lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var step string
		var raw []byte
		if err := rows.Scan(&j.ID, &step, &raw, &j.Attempts, &j.MaxAttempts, &j.NextRunAt, &j.LastError, &j.Status, &j.Trace.Parent, &j.Trace.State); err != nil {
			return nil, err
		}
		j.Step = projection.Step(step)
		if err := json.Unmarshal(raw, &j.Event); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *Repository) MarkDone(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE projection_retries
		SET status = 'done', updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id int64, attempts int, status string, nextRunAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE projection_retries
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}

// List returns jobs in the given status, newest first.
func (r *Repository) List(ctx context.Context, status string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, step, payload, attempts, max_attempts, next_run_at, COALESCE(last_error, ''), status
		FROM projection_retries
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var step string
		var raw []byte
		if err := rows.Scan(&j.ID, &step, &raw, &j.Attempts, &j.MaxAttempts, &j.NextRunAt, &j.LastError, &j.Status); err != nil {
			return nil, err
		}
		j.Step = projection.Step(step)
		if err := json.Unmarshal(raw, &j.Event); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
