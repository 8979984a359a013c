package projection

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonpos/libs/events"
)

// Event is one booking lifecycle snapshot as published by booking-service.
type Event = events.BookingLifecycle

type Step string

const (
	StepMirror Step = "mirror"
	StepLedger Step = "ledger"
)

func ParseStep(s string) (Step, error) {
	switch st := Step(s); st {
	case StepMirror, StepLedger:
		return st, nil
	}
	return "", fmt.Errorf("projection: unknown step %q", s)
}

// StepError is the LedgerProjectionFailed condition: one step of one event failed.
// Other steps of the same event are unaffected.
type StepError struct {
	Step      Step
	BookingID string
	EventID   string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("ledger projection failed: step %s booking %s: %v", e.Step, e.BookingID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

var (
	ErrUnknownStatus   = errors.New("projection: unknown booking status")
	ErrServiceMissing  = errors.New("projection: service not found")
	ErrResourceMissing = errors.New("projection: resource not found")
)

// Mirror statuses use the secondary store's vocabulary.
const (
	MirrorBooked    = "booked"
	MirrorConfirmed = "confirmed"
	MirrorDone      = "done"
	MirrorCanceled  = "canceled"
	MirrorMissed    = "missed"
)

// MirrorStatus translates a primary booking status.
func MirrorStatus(primary string) (string, error) {
	switch primary {
	case "scheduled":
		return MirrorBooked, nil
	case "confirmed":
		return MirrorConfirmed, nil
	case "completed":
		return MirrorDone, nil
	case "cancelled":
		return MirrorCanceled, nil
	case "no_show":
		return MirrorMissed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, primary)
}

type MirrorBooking struct {
	BookingID       string    `json:"booking_id"`
	ResourceID      string    `json:"resource_id"`
	ClientID        string    `json:"client_id"`
	ServiceID       string    `json:"service_id"`
	Date            string    `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Voided          bool      `json:"voided"`
	SourceVersion   int64     `json:"source_version"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type EntryType string

const (
	EntryRevenue    EntryType = "revenue"
	EntryCommission EntryType = "commission"
)

const (
	EntryCompleted = "completed"
	EntryPending   = "pending"
	EntryCanceled  = "canceled"
)

type LedgerEntry struct {
	ID         string          `json:"id"`
	BookingID  string          `json:"booking_id"`
	ResourceID string          `json:"resource_id"`
	AccountID  string          `json:"account_id,omitempty"`
	Type       EntryType       `json:"entry_type"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	EntryDate  string          `json:"entry_date"`
	CreatedAt  time.Time       `json:"created_at"`
}

type CommissionRecord struct {
	ID         string          `json:"id"`
	BookingID  string          `json:"booking_id"`
	ResourceID string          `json:"resource_id"`
	Rate       decimal.Decimal `json:"rate"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Posting is everything a completion writes. Commission and Record are nil when
// no rate applies.
type Posting struct {
	Revenue    LedgerEntry
	Commission *LedgerEntry
	Record     *CommissionRecord
}

// PostResult counts rows actually inserted; zero means they already existed.
type PostResult struct {
	Entries int
	Records int
}
