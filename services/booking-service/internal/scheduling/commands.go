package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/salonpos/libs/catalog"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
)

type BookRequest struct {
	ResourceID string
	ClientID   string
	ServiceID  string
	Date       string
	Time       string
}

// Outcome carries the validation result and, when Valid, the stored booking.
type Outcome struct {
	Result
	Booking *model.Booking `json:"booking,omitempty"`
}

// Book validates the request against the service's duration and persists it as
// scheduled. A collision caught by the store at commit is reported exactly like one
// found during validation.
func (e *Engine) Book(ctx context.Context, req BookRequest) (Outcome, error) {
	if req.ClientID == "" {
		return Outcome{}, fmt.Errorf("%w: client_id is required", ErrInvalidRequest)
	}
	svc, err := e.directory.Service(ctx, req.ServiceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return Outcome{Result: reject(KindUnknownResourceOrService, "service is unknown")}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("service lookup: %w", err)
	}
	if svc.DurationMinutes <= 0 {
		return Outcome{}, fmt.Errorf("service %s has no duration", svc.ID)
	}

	res, err := e.ValidateBooking(ctx, ValidateRequest{
		ResourceID:      req.ResourceID,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: svc.DurationMinutes,
	})
	if err != nil || !res.Valid {
		return Outcome{Result: res}, err
	}

	b := &model.Booking{
		ID:              uuid.NewString(),
		ResourceID:      req.ResourceID,
		ClientID:        req.ClientID,
		ServiceID:       svc.ID,
		Date:            req.Date,
		StartTime:       req.Time,
		DurationMinutes: svc.DurationMinutes,
		BufferMinutes:   e.cfg.BufferMinutes,
		Status:          model.StatusScheduled,
	}
	if err := e.bookings.Create(ctx, b); err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			return Outcome{Result: e.lostRace(ctx, b.ResourceID, b.Date, b.StartTime, b.DurationMinutes, "")}, nil
		}
		return Outcome{}, fmt.Errorf("create booking: %w", err)
	}
	e.logger.Info("booking created", "booking_id", b.ID, "resource_id", b.ResourceID, "date", b.Date, "time", b.StartTime)
	return Outcome{Result: valid(), Booking: b}, nil
}

type RescheduleRequest struct {
	BookingID string
	Date      string
	Time      string
}

// Reschedule moves an active booking, validating the new time while ignoring the
// booking's own current slot.
func (e *Engine) Reschedule(ctx context.Context, req RescheduleRequest) (Outcome, error) {
	current, err := e.bookings.Get(ctx, req.BookingID)
	if err != nil {
		return Outcome{}, err
	}
	if !current.Status.Blocking() {
		return Outcome{}, fmt.Errorf("%w: status %s", ErrNotReschedulable, current.Status)
	}

	res, err := e.ValidateBooking(ctx, ValidateRequest{
		ResourceID:       current.ResourceID,
		Date:             req.Date,
		Time:             req.Time,
		DurationMinutes:  current.DurationMinutes,
		ExcludeBookingID: current.ID,
	})
	if err != nil || !res.Valid {
		return Outcome{Result: res}, err
	}

	updated, err := e.bookings.Reschedule(ctx, current.ID, req.Date, req.Time, e.cfg.BufferMinutes)
	if err != nil {
		if errors.Is(err, model.ErrSlotTaken) {
			return Outcome{Result: e.lostRace(ctx, current.ResourceID, req.Date, req.Time, current.DurationMinutes, current.ID)}, nil
		}
		return Outcome{}, fmt.Errorf("reschedule booking: %w", err)
	}
	e.logger.Info("booking rescheduled", "booking_id", updated.ID, "date", updated.Date, "time", updated.StartTime)
	return Outcome{Result: valid(), Booking: &updated}, nil
}

// Transition applies a lifecycle step. Terminal statuses are final.
func (e *Engine) Transition(ctx context.Context, bookingID string, to model.Status) (model.Booking, error) {
	updated, err := e.bookings.Transition(ctx, bookingID, to)
	if err != nil {
		return model.Booking{}, err
	}
	e.logger.Info("booking status changed", "booking_id", updated.ID, "status", updated.Status)
	return updated, nil
}

func (e *Engine) Delete(ctx context.Context, bookingID string) error {
	if err := e.bookings.Delete(ctx, bookingID); err != nil {
		return err
	}
	e.logger.Info("booking deleted", "booking_id", bookingID)
	return nil
}

// lostRace builds the Conflict result after the store rejected a commit. It tries
// to name the booking that won; the result is a Conflict either way.
func (e *Engine) lostRace(ctx context.Context, resourceID, date, start string, duration int, exclude string) Result {
	minutes, err := clock.ToMinutes(start)
	if err != nil {
		return conflictResult("")
	}
	res, err := e.detector.Check(ctx, conflict.Request{
		ResourceID: resourceID,
		Date:       date,
		Candidate: conflict.Candidate{
			Start:            minutes,
			Duration:         duration,
			Buffer:           e.cfg.BufferMinutes,
			ExcludeBookingID: exclude,
		},
	})
	if err != nil || res.Available {
		return conflictResult("")
	}
	return conflictResult(res.ConflictingStart)
}

// ServiceDuration resolves a service's length in minutes.
func (e *Engine) ServiceDuration(ctx context.Context, serviceID string) (int, error) {
	svc, err := e.directory.Service(ctx, serviceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return 0, ErrUnknownService
	}
	if err != nil {
		return 0, fmt.Errorf("service lookup: %w", err)
	}
	return svc.DurationMinutes, nil
}
