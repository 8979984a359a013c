// Package conflict decides whether a candidate interval collides with bookings
// already holding the resource's calendar.
package conflict

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
)

// BookingLister returns the scheduled/confirmed bookings of a resource on a date.
type BookingLister interface {
	ListBlocking(ctx context.Context, resourceID, date string) ([]model.Booking, error)
}

type Candidate struct {
	Start            int
	Duration         int
	Buffer           int
	ExcludeBookingID string
}

type Request struct {
	ResourceID string
	Date       string
	Candidate
}

type Result struct {
	Available        bool
	ConflictingID    string
	ConflictingStart string
}

type Detector struct {
	bookings BookingLister
}

func NewDetector(bookings BookingLister) *Detector {
	return &Detector{bookings: bookings}
}

func (d *Detector) Check(ctx context.Context, req Request) (Result, error) {
	existing, err := d.bookings.ListBlocking(ctx, req.ResourceID, req.Date)
	if err != nil {
		return Result{}, fmt.Errorf("load bookings: %w", err)
	}
	return Find(existing, req.Candidate)
}

// Find compares the candidate against existing bookings, each side padded by its own
// trailing buffer. When several collide, the earliest one is reported.
func Find(existing []model.Booking, c Candidate) (Result, error) {
	candEnd := clock.BufferedEnd(c.Start, c.Duration, c.Buffer)
	res := Result{Available: true}
	earliest := -1
	for _, b := range existing {
		if !b.Status.Blocking() || (c.ExcludeBookingID != "" && b.ID == c.ExcludeBookingID) {
			continue
		}
		start, err := clock.ToMinutes(b.StartTime)
		if err != nil {
			return Result{}, fmt.Errorf("booking %s: %w", b.ID, err)
		}
		end := clock.BufferedEnd(start, b.DurationMinutes, b.BufferMinutes)
		if !clock.RangesOverlap(c.Start, candEnd, start, end) {
			continue
		}
		if earliest == -1 || start < earliest {
			earliest = start
			res = Result{Available: false, ConflictingID: b.ID, ConflictingStart: b.StartTime}
		}
	}
	return res, nil
}
