// Package scheduling composes the availability resolver, slot generator and conflict
// detector into the validation pipeline and the booking commands built on it.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonpos/libs/catalog"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/conflict"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
)

const (
	DefaultSlotStep = 30
	DefaultMinLead  = 10
	DefaultBuffer   = 10
)

type Config struct {
	SlotStepMinutes int
	MinLeadMinutes  int
	BufferMinutes   int
	// Location is the business time zone that dates and wall clocks are read in.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if c.SlotStepMinutes <= 0 {
		c.SlotStepMinutes = DefaultSlotStep
	}
	if c.MinLeadMinutes < 0 {
		c.MinLeadMinutes = DefaultMinLead
	}
	if c.BufferMinutes < 0 {
		c.BufferMinutes = DefaultBuffer
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

type Engine struct {
	directory catalog.Directory
	schedule  ScheduleSource
	bookings  BookingStore
	detector  *conflict.Detector
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Engine)

// WithNow replaces the wall clock, mostly for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(directory catalog.Directory, schedule ScheduleSource, bookings BookingStore, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		directory: directory,
		schedule:  schedule,
		bookings:  bookings,
		detector:  conflict.NewDetector(bookings),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Reason    Kind   `json:"reason,omitempty"`
}

// ListAvailableSlots returns every candidate start for the date with its
// availability. Dates in the past and closed days yield an empty list.
func (e *Engine) ListAvailableSlots(ctx context.Context, resourceID, date string, durationMinutes int) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	day, err := e.parseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := e.activeResource(ctx, resourceID); err != nil {
		return nil, err
	}

	today, nowMinutes := e.today()
	if date < today {
		return []Slot{}, nil
	}
	earliest := 0
	if date == today {
		earliest = nowMinutes + e.cfg.MinLeadMinutes
	}

	windows, err := e.windows(ctx, resourceID, date, day.Weekday())
	if errors.Is(err, availability.ErrAmbiguousOverrides) {
		e.logger.Warn("ambiguous availability overrides", "resource_id", resourceID, "date", date)
		return []Slot{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []Slot{}, nil
	}

	existing, err := e.bookings.ListBlocking(ctx, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	slots := []Slot{}
	for start := range availability.Candidates(windows, durationMinutes, e.cfg.SlotStepMinutes, earliest) {
		res, err := conflict.Find(existing, conflict.Candidate{
			Start:    start,
			Duration: durationMinutes,
			Buffer:   e.cfg.BufferMinutes,
		})
		if err != nil {
			return nil, err
		}
		slot := Slot{Time: clock.ToClock(start), Available: res.Available}
		if !res.Available {
			slot.Reason = KindConflict
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

type ValidateRequest struct {
	ResourceID       string
	Date             string
	Time             string
	DurationMinutes  int
	ExcludeBookingID string
}

// ValidateBooking runs the pipeline and stops at the first failing stage. A
// returned error means the check itself could not run; business rejections come
// back in Result.
func (e *Engine) ValidateBooking(ctx context.Context, req ValidateRequest) (Result, error) {
	if req.DurationMinutes <= 0 {
		return Result{}, fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	day, err := e.parseDate(req.Date)
	if err != nil {
		return Result{}, err
	}
	start, err := clock.ToMinutes(req.Time)
	if err != nil {
		return Result{}, fmt.Errorf("%w: time: %v", ErrInvalidRequest, err)
	}

	if _, err := e.activeResource(ctx, req.ResourceID); err != nil {
		if errors.Is(err, ErrUnknownResource) {
			return reject(KindUnknownResourceOrService, "resource is unknown or inactive"), nil
		}
		return Result{}, err
	}

	today, nowMinutes := e.today()
	if req.Date < today || (req.Date == today && start < nowMinutes+e.cfg.MinLeadMinutes) {
		return reject(KindPastTime, fmt.Sprintf("bookings need at least %d minutes notice", e.cfg.MinLeadMinutes)), nil
	}

	windows, err := e.windows(ctx, req.ResourceID, req.Date, day.Weekday())
	if errors.Is(err, availability.ErrAmbiguousOverrides) {
		e.logger.Warn("ambiguous availability overrides", "resource_id", req.ResourceID, "date", req.Date)
		return reject(KindResourceUnavailableDay, "availability for this date is misconfigured"), nil
	}
	if err != nil {
		return Result{}, err
	}
	if len(windows) == 0 {
		return reject(KindResourceUnavailableDay, "resource does not work on this date"), nil
	}
	if !availability.Contains(windows, start, req.DurationMinutes) {
		return reject(KindOutsideBusinessHours, "requested time is outside working hours"), nil
	}

	res, err := e.detector.Check(ctx, conflict.Request{
		ResourceID: req.ResourceID,
		Date:       req.Date,
		Candidate: conflict.Candidate{
			Start:            start,
			Duration:         req.DurationMinutes,
			Buffer:           e.cfg.BufferMinutes,
			ExcludeBookingID: req.ExcludeBookingID,
		},
	})
	if err != nil {
		return Result{}, err
	}
	if !res.Available {
		return conflictResult(res.ConflictingStart), nil
	}
	return valid(), nil
}

func conflictResult(at string) Result {
	r := reject(KindConflict, "requested time overlaps another booking")
	r.ConflictingTime = at
	return r
}

func (e *Engine) parseDate(date string) (time.Time, error) {
	day, err := time.ParseInLocation(model.DateLayout, date, e.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidRequest, date)
	}
	return day, nil
}

// today returns the business-local date and minutes since midnight.
func (e *Engine) today() (string, int) {
	now := e.now().In(e.cfg.Location)
	return now.Format(model.DateLayout), now.Hour()*60 + now.Minute()
}

func (e *Engine) activeResource(ctx context.Context, id string) (catalog.Resource, error) {
	res, err := e.directory.Resource(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.Resource{}, ErrUnknownResource
	}
	if err != nil {
		return catalog.Resource{}, fmt.Errorf("resource lookup: %w", err)
	}
	if !res.Active {
		return catalog.Resource{}, ErrUnknownResource
	}
	return res, nil
}

func (e *Engine) windows(ctx context.Context, resourceID, date string, weekday time.Weekday) ([]availability.Window, error) {
	weekly, err := e.schedule.WorkingHours(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	overrides, err := e.schedule.Overrides(ctx, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	return availability.Resolve(weekly, overrides, weekday)
}
