package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/libs/events"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/outbox"
)

// BookingRepository owns the bookings table. Every write appends a lifecycle event
// to the outbox inside the same transaction, and the exclusion constraint on
// bookings is the final word on overlaps.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

const bookingColumns = `
	id::text, resource_id, client_id, service_id, booking_date::text, start_time,
	duration_minutes, buffer_minutes, status, version, created_at, updated_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.ResourceID,
		&b.ClientID,
		&b.ServiceID,
		&b.Date,
		&b.StartTime,
		&b.DurationMinutes,
		&b.BufferMinutes,
		&b.Status,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func (r *BookingRepository) ListBlocking(ctx context.Context, resourceID, date string) ([]model.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE resource_id = $1
			AND booking_date = $2::date
			AND status IN ('scheduled', 'confirmed')
		ORDER BY start_time ASC
	`, resourceID, date)
}

// ListByResourceDate returns every booking of the day regardless of status.
func (r *BookingRepository) ListByResourceDate(ctx context.Context, resourceID, date string) ([]model.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE resource_id = $1 AND booking_date = $2::date
		ORDER BY start_time ASC
	`, resourceID, date)
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if db.IsNotFound(err) {
		return model.Booking{}, model.ErrNotFound
	}
	return b, err
}

func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	start, err := clock.ToMinutes(b.StartTime)
	if err != nil {
		return err
	}
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		created, err := scanBooking(tx.QueryRow(ctx, `
			INSERT INTO bookings
				(id, resource_id, client_id, service_id, booking_date, start_time,
				 duration_minutes, buffer_minutes, status, version, start_at, blocked_until)
			VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, 1,
				$5::date + make_interval(mins => $10),
				$5::date + make_interval(mins => $10 + $7 + $8))
			RETURNING `+bookingColumns,
			b.ID, b.ResourceID, b.ClientID, b.ServiceID, b.Date, b.StartTime,
			b.DurationMinutes, b.BufferMinutes, b.Status, start))
		if err != nil {
			return err
		}
		*b = created
		return r.appendEvent(ctx, tx, created, events.TypeBookingCreated, "")
	})
	return translate(err)
}

func (r *BookingRepository) Reschedule(ctx context.Context, id, date, startTime string, bufferMinutes int) (model.Booking, error) {
	start, err := clock.ToMinutes(startTime)
	if err != nil {
		return model.Booking{}, err
	}
	var updated model.Booking
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.Status.Blocking() {
			return fmt.Errorf("%w: %s cannot be moved", model.ErrInvalidTransition, current.Status)
		}
		updated, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings
			SET booking_date = $2::date,
				start_time = $3,
				buffer_minutes = $4,
				start_at = $2::date + make_interval(mins => $5),
				blocked_until = $2::date + make_interval(mins => $5 + duration_minutes + $4),
				version = version + 1,
				updated_at = now()
			WHERE id = $1
			RETURNING `+bookingColumns,
			id, date, startTime, bufferMinutes, start))
		if err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, updated, events.TypeBookingRescheduled, "")
	})
	return updated, translate(err)
}

// Transition is a no-op when the booking already has the target status, so a
// retried request does not emit a second event.
func (r *BookingRepository) Transition(ctx context.Context, id string, to model.Status) (model.Booking, error) {
	var updated model.Booking
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		from := current.Status
		if err := current.Transition(to); err != nil {
			return err
		}
		if from == to {
			updated = current
			return nil
		}
		updated, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2, version = version + 1, updated_at = now()
			WHERE id = $1
			RETURNING `+bookingColumns, id, to))
		if err != nil {
			return err
		}
		return r.appendEvent(ctx, tx, updated, events.TypeBookingStatusChanged, from)
	})
	return updated, translate(err)
}

func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := lockBooking(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
			return err
		}
		// The deletion event still needs a version above every earlier snapshot.
		current.Version++
		return r.appendEvent(ctx, tx, current, events.TypeBookingDeleted, "")
	})
	return translate(err)
}

func lockBooking(ctx context.Context, tx pgx.Tx, id string) (model.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
}

func (r *BookingRepository) appendEvent(ctx context.Context, tx pgx.Tx, b model.Booking, eventType string, previous model.Status) error {
	evt, err := LifecycleEvent(b, eventType, previous)
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, evt)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return model.ErrNotFound
	case db.HasCode(err, db.CodeExclusionViolation):
		return model.ErrSlotTaken
	}
	return err
}
