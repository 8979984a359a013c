// Package projection reacts to booking lifecycle events: it keeps the normalized
// mirror of each booking current and posts revenue and commission to the ledger
// when a booking completes. Every step is idempotent and safe to replay.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonpos/libs/catalog"
)

type MirrorStore interface {
	// UpsertMirror applies m unless a snapshot with a higher SourceVersion is stored.
	UpsertMirror(ctx context.Context, m MirrorBooking) (applied bool, err error)
}

type LedgerStore interface {
	// PostCompletion inserts the posting's rows, skipping any that already exist
	// for (booking, entry type).
	PostCompletion(ctx context.Context, p Posting) (PostResult, error)
	VoidBookingEntries(ctx context.Context, bookingID, reason string) (int, error)
}

// RetryQueue durably schedules one step of one event for another attempt.
type RetryQueue interface {
	Enqueue(ctx context.Context, step Step, evt Event, cause error) error
}

type Projector struct {
	directory catalog.Directory
	mirror    MirrorStore
	ledger    LedgerStore
	retries   RetryQueue
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Projector)

func WithNow(now func() time.Time) Option {
	return func(p *Projector) { p.now = now }
}

// WithLocation sets the zone ledger entry dates are written in.
func WithLocation(loc *time.Location) Option {
	return func(p *Projector) { p.location = loc }
}

func NewProjector(directory catalog.Directory, mirror MirrorStore, ledger LedgerStore, retries RetryQueue, logger *slog.Logger, opts ...Option) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Projector{
		directory: directory,
		mirror:    mirror,
		ledger:    ledger,
		retries:   retries,
		location:  time.UTC,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnBookingLifecycleEvent runs the mirror and ledger steps independently. The
// returned error joins one *StepError per failed step; nil means both succeeded.
func (p *Projector) OnBookingLifecycleEvent(ctx context.Context, evt Event) error {
	var errs []error
	for _, step := range []Step{StepMirror, StepLedger} {
		if err := p.RunStep(ctx, step, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handle is the consumer entry point. Failed steps are logged and scheduled for
// retry; the error is non-nil only when a failure could not be scheduled, in which
// case the event must be redelivered.
func (p *Projector) Handle(ctx context.Context, evt Event) error {
	err := p.OnBookingLifecycleEvent(ctx, evt)
	if err == nil {
		return nil
	}
	var unscheduled []error
	for _, stepErr := range stepErrors(err) {
		p.logger.Error("projection step failed",
			"step", stepErr.Step, "booking_id", stepErr.BookingID, "event_id", stepErr.EventID, "err", stepErr.Err)
		if qerr := p.retries.Enqueue(ctx, stepErr.Step, evt, stepErr.Err); qerr != nil {
			unscheduled = append(unscheduled, fmt.Errorf("schedule retry for %s: %w", stepErr.Step, qerr))
		}
	}
	return errors.Join(unscheduled...)
}

func stepErrors(err error) []*StepError {
	var out []*StepError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, stepErrors(e)...)
		}
		return out
	}
	var se *StepError
	if errors.As(err, &se) {
		out = append(out, se)
	}
	return out
}

// RunStep executes a single step, wrapping failures in *StepError. The retry
// worker calls it directly.
func (p *Projector) RunStep(ctx context.Context, step Step, evt Event) error {
	var err error
	switch step {
	case StepMirror:
		err = p.projectMirror(ctx, evt)
	case StepLedger:
		err = p.projectLedger(ctx, evt)
	default:
		err = fmt.Errorf("unknown step %q", step)
	}
	if err != nil {
		return &StepError{Step: step, BookingID: evt.BookingID, EventID: evt.EventID, Err: err}
	}
	return nil
}

func (p *Projector) projectMirror(ctx context.Context, evt Event) error {
	status, err := MirrorStatus(evt.Status)
	if err != nil {
		return err
	}
	m := MirrorBooking{
		BookingID:       evt.BookingID,
		ResourceID:      evt.ResourceID,
		ClientID:        evt.ClientID,
		ServiceID:       evt.ServiceID,
		Date:            evt.Date,
		StartTime:       evt.StartTime,
		DurationMinutes: evt.DurationMinutes,
		Status:          status,
		Voided:          evt.Deleted || evt.Status == "cancelled",
		SourceVersion:   evt.Version,
		UpdatedAt:       p.now().UTC(),
	}
	if evt.Deleted {
		m.Status = MirrorCanceled
	}
	applied, err := p.mirror.UpsertMirror(ctx, m)
	if err != nil {
		return fmt.Errorf("upsert mirror: %w", err)
	}
	if !applied {
		p.logger.Debug("stale mirror snapshot skipped", "booking_id", evt.BookingID, "version", evt.Version)
	}
	return nil
}

// projectLedger posts only on completion snapshots. Cancellation and deletion leave
// posted entries alone; corrections go through VoidBookingEntries.
func (p *Projector) projectLedger(ctx context.Context, evt Event) error {
	if evt.Status != "completed" || evt.Deleted {
		return nil
	}
	posting, err := p.buildPosting(ctx, evt)
	if err != nil {
		return err
	}
	res, err := p.ledger.PostCompletion(ctx, posting)
	if err != nil {
		return fmt.Errorf("post completion: %w", err)
	}
	if res.Entries == 0 && res.Records == 0 {
		p.logger.Info("completion already posted", "booking_id", evt.BookingID)
		return nil
	}
	p.logger.Info("completion posted", "booking_id", evt.BookingID, "entries", res.Entries, "commission_records", res.Records)
	return nil
}

func (p *Projector) buildPosting(ctx context.Context, evt Event) (Posting, error) {
	svc, err := p.directory.Service(ctx, evt.ServiceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return Posting{}, fmt.Errorf("%w: %s", ErrServiceMissing, evt.ServiceID)
	}
	if err != nil {
		return Posting{}, fmt.Errorf("service lookup: %w", err)
	}
	res, err := p.directory.Resource(ctx, evt.ResourceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return Posting{}, fmt.Errorf("%w: %s", ErrResourceMissing, evt.ResourceID)
	}
	if err != nil {
		return Posting{}, fmt.Errorf("resource lookup: %w", err)
	}

	now := p.now()
	entryDate := now.In(p.location).Format("2006-01-02")
	posting := Posting{
		Revenue: LedgerEntry{
			ID:         uuid.NewString(),
			BookingID:  evt.BookingID,
			ResourceID: evt.ResourceID,
			AccountID:  res.LedgerAccountID,
			Type:       EntryRevenue,
			Amount:     svc.Price.Round(2),
			Status:     EntryCompleted,
			EntryDate:  entryDate,
			CreatedAt:  now.UTC(),
		},
	}

	rate, ok := catalog.EffectiveCommissionRate(res, svc)
	if !ok || !rate.IsPositive() {
		return posting, nil
	}
	amount := Commission(svc.Price, rate)
	posting.Commission = &LedgerEntry{
		ID:         uuid.NewString(),
		BookingID:  evt.BookingID,
		ResourceID: evt.ResourceID,
		AccountID:  res.LedgerAccountID,
		Type:       EntryCommission,
		Amount:     amount,
		Status:     EntryPending,
		EntryDate:  entryDate,
		CreatedAt:  now.UTC(),
	}
	posting.Record = &CommissionRecord{
		ID:         uuid.NewString(),
		BookingID:  evt.BookingID,
		ResourceID: evt.ResourceID,
		Rate:       rate,
		Amount:     amount,
		Status:     EntryPending,
		CreatedAt:  now.UTC(),
	}
	return posting, nil
}

var hundred = decimal.NewFromInt(100)

// Commission is price * rate / 100 rounded to cents.
func Commission(price, ratePercent decimal.Decimal) decimal.Decimal {
	return price.Mul(ratePercent).Div(hundred).Round(2)
}

// VoidBookingEntries is the explicit financial correction: it cancels every ledger
// entry of the booking and marks its pending commission record canceled.
func (p *Projector) VoidBookingEntries(ctx context.Context, bookingID, reason string) (int, error) {
	bookingID = strings.TrimSpace(bookingID)
	reason = strings.TrimSpace(reason)
	if bookingID == "" || reason == "" {
		return 0, errors.New("projection: booking id and reason are required")
	}
	n, err := p.ledger.VoidBookingEntries(ctx, bookingID, reason)
	if err != nil {
		return 0, fmt.Errorf("void entries: %w", err)
	}
	p.logger.Info("ledger entries voided", "booking_id", bookingID, "count", n, "reason", reason)
	return n, nil
}
