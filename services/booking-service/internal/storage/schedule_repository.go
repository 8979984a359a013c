package storage

import (
	"context"

	"github.com/md-rashed-zaman/salonpos/libs/db"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/availability"
)

// ScheduleRepository reads per-resource weekly hours and dated overrides. Times are
// stored as "HH:MM" text; a NULL bound on an override means "whole day".
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) WorkingHours(ctx context.Context, resourceID string) ([]availability.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT resource_id, day_of_week, start_time, end_time, is_active
		FROM working_hours
		WHERE resource_id = $1
		ORDER BY day_of_week, start_time
	`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.WorkingHours
	for rows.Next() {
		var wh availability.WorkingHours
		if err := rows.Scan(&wh.ResourceID, &wh.DayOfWeek, &wh.StartTime, &wh.EndTime, &wh.Active); err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) Overrides(ctx context.Context, resourceID, date string) ([]availability.Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, resource_id, override_date::text,
			COALESCE(start_time, ''), COALESCE(end_time, ''), is_available
		FROM availability_overrides
		WHERE resource_id = $1 AND override_date = $2::date
		ORDER BY created_at
	`, resourceID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Override
	for rows.Next() {
		var o availability.Override
		if err := rows.Scan(&o.ID, &o.ResourceID, &o.Date, &o.StartTime, &o.EndTime, &o.Available); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
