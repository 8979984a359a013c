// Package events holds the wire contract of the booking lifecycle stream shared by
// the producer (booking-service) and its consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const TopicBookingLifecycle = "booking.lifecycle.v1"

const (
	TypeBookingCreated       = "booking.created"
	TypeBookingRescheduled   = "booking.rescheduled"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeBookingDeleted       = "booking.deleted"
)

// BookingLifecycle is a full snapshot of the booking after the write that produced
// it. Version increases with every write, so consumers can drop stale snapshots.
type BookingLifecycle struct {
	EventID         string    `json:"event_id"`
	Type            string    `json:"type"`
	BookingID       string    `json:"booking_id"`
	ResourceID      string    `json:"resource_id"`
	ClientID        string    `json:"client_id"`
	ServiceID       string    `json:"service_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	Version         int64     `json:"version"`
	Deleted         bool      `json:"deleted,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func DecodeBookingLifecycle(payload []byte) (BookingLifecycle, error) {
	var evt BookingLifecycle
	if err := json.Unmarshal(payload, &evt); err != nil {
		return BookingLifecycle{}, fmt.Errorf("decode booking event: %w", err)
	}
	if evt.BookingID == "" {
		return BookingLifecycle{}, fmt.Errorf("decode booking event: missing booking_id")
	}
	if evt.Version <= 0 {
		return BookingLifecycle{}, fmt.Errorf("decode booking event %s: missing version", evt.BookingID)
	}
	return evt, nil
}
