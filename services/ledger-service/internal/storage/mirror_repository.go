package storage

import (
	"context"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
)

type MirrorRepository struct {
	pool *db.Pool
}

func NewMirrorRepository(pool *db.Pool) *MirrorRepository {
	return &MirrorRepository{pool: pool}
}

// UpsertMirror keeps the snapshot with the highest source version. Equal versions
// overwrite so a replayed event rewrites identical data.
func (r *MirrorRepository) UpsertMirror(ctx context.Context, m projection.MirrorBooking) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO mirror_bookings
			(booking_id, resource_id, client_id, service_id, booking_date, start_time,
			 duration_minutes, status, voided, source_version, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::date, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (booking_id) DO UPDATE SET
			resource_id = EXCLUDED.resource_id,
			client_id = EXCLUDED.client_id,
			service_id = EXCLUDED.service_id,
			booking_date = EXCLUDED.booking_date,
			start_time = EXCLUDED.start_time,
			duration_minutes = EXCLUDED.duration_minutes,
			status = EXCLUDED.status,
			voided = EXCLUDED.voided,
			source_version = EXCLUDED.source_version,
			updated_at = EXCLUDED.updated_at
		WHERE mirror_bookings.source_version <= EXCLUDED.source_version
	`, m.BookingID, m.ResourceID, m.ClientID, m.ServiceID, m.Date, m.StartTime,
		m.DurationMinutes, m.Status, m.Voided, m.SourceVersion, m.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MirrorRepository) Get(ctx context.Context, bookingID string) (projection.MirrorBooking, bool, error) {
	var m projection.MirrorBooking
	err := r.pool.QueryRow(ctx, `
		SELECT booking_id, resource_id, client_id, service_id, COALESCE(booking_date::text, ''), start_time,
			duration_minutes, status, voided, source_version, updated_at
		FROM mirror_bookings
		WHERE booking_id = $1
	`, bookingID).Scan(&m.BookingID, &m.ResourceID, &m.ClientID, &m.ServiceID, &m.Date, &m.StartTime,
		&m.DurationMinutes, &m.Status, &m.Voided, &m.SourceVersion, &m.UpdatedAt)
	if db.IsNotFound(err) {
		return projection.MirrorBooking{}, false, nil
	}
	if err != nil {
		return projection.MirrorBooking{}, false, err
	}
	return m, true, nil
}
