package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/salonpos/libs/events"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/outbox"
)

// LifecycleEvent snapshots b into an outbox row. The payload's event_id matches
// the row's so consumers can dedupe on either.
func LifecycleEvent(b model.Booking, eventType string, previous model.Status) (outbox.Event, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(events.BookingLifecycle{
		EventID:         id,
		Type:            eventType,
		BookingID:       b.ID,
		ResourceID:      b.ResourceID,
		ClientID:        b.ClientID,
		ServiceID:       b.ServiceID,
		Date:            b.Date,
		StartTime:       b.StartTime,
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		PreviousStatus:  string(previous),
		Version:         b.Version,
		Deleted:         eventType == events.TypeBookingDeleted,
		OccurredAt:      time.Now().UTC(),
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		EventID:     id,
		AggregateID: b.ID,
		EventType:   eventType,
		Payload:     payload,
	}, nil
}
