package scheduling

import (
	"context"

	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
)

// ScheduleSource reads a resource's recurring hours and date overrides.
type ScheduleSource interface {
	WorkingHours(ctx context.Context, resourceID string) ([]availability.WorkingHours, error)
	Overrides(ctx context.Context, resourceID, date string) ([]availability.Override, error)
}

// BookingStore persists the primary booking record. Create and Reschedule must
// re-check overlaps atomically and return model.ErrSlotTaken on collision.
type BookingStore interface {
	ListBlocking(ctx context.Context, resourceID, date string) ([]model.Booking, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	Create(ctx context.Context, b *model.Booking) error
	Reschedule(ctx context.Context, id, date, startTime string, bufferMinutes int) (model.Booking, error)
	Transition(ctx context.Context, id string, to model.Status) (model.Booking, error)
	Delete(ctx context.Context, id string) error
}
