package model

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidTransition = errors.New("booking: invalid status transition")
	ErrNotFound          = errors.New("booking: not found")
	// ErrSlotTaken is returned by the store when the commit-time check finds an
	// overlapping scheduled/confirmed booking.
	ErrSlotTaken = errors.New("booking: slot already taken")
)

// Booking is the primary record. Date is the business-local calendar day and
// StartTime its "HH:MM" wall clock; DurationMinutes and BufferMinutes are frozen
// when the booking is committed so later catalog edits do not move existing rows.
type Booking struct {
	ID              string
	ResourceID      string
	ClientID        string
	ServiceID       string
	Date            string
	StartTime       string
	DurationMinutes int
	BufferMinutes   int
	Status          Status
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	}
	return "", fmt.Errorf("booking: unknown status %q", s)
}

// Blocking reports whether the status occupies the calendar for conflict checks.
func (s Status) Blocking() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether from -> to is a legal lifecycle step. Repeating the
// current status is allowed so retried requests stay idempotent.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (b *Booking) Transition(to Status) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	b.Status = to
	return nil
}
