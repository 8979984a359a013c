package projection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/md-rashed-zaman/salonpos/libs/catalog"
	"github.com/md-rashed-zaman/salonpos/libs/events"
)

type fakeDirectory struct {
	resources map[string]catalog.Resource
	services  map[string]catalog.Service
}

func (d fakeDirectory) Resource(_ context.Context, id string) (catalog.Resource, error) {
	if r, ok := d.resources[id]; ok {
		return r, nil
	}
	return catalog.Resource{}, catalog.ErrNotFound
}

func (d fakeDirectory) Service(_ context.Context, id string) (catalog.Service, error) {
	if s, ok := d.services[id]; ok {
		return s, nil
	}
	return catalog.Service{}, catalog.ErrNotFound
}

type memMirror struct {
	mu   sync.Mutex
	rows map[string]MirrorBooking
	err  error
}

func (m *memMirror) UpsertMirror(_ context.Context, b MirrorBooking) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if cur, ok := m.rows[b.BookingID]; ok && cur.SourceVersion > b.SourceVersion {
		return false, nil
	}
	m.rows[b.BookingID] = b
	return true, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]LedgerEntry
	records map[string]CommissionRecord
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]LedgerEntry{}, records: map[string]CommissionRecord{}}
}

func (l *memLedger) PostCompletion(_ context.Context, p Posting) (PostResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var res PostResult
	add := func(e LedgerEntry) {
		key := e.BookingID + "|" + string(e.Type)
		if _, ok := l.entries[key]; ok {
			return
		}
		l.entries[key] = e
		res.Entries++
	}
	add(p.Revenue)
	if p.Commission != nil {
		add(*p.Commission)
	}
	if p.Record != nil {
		if _, ok := l.records[p.Record.BookingID]; !ok {
			l.records[p.Record.BookingID] = *p.Record
			res.Records++
		}
	}
	return res, nil
}

func (l *memLedger) VoidBookingEntries(_ context.Context, bookingID, _ string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.entries {
		if e.BookingID == bookingID && e.Status != EntryCanceled {
			e.Status = EntryCanceled
			l.entries[k] = e
			n++
		}
	}
	if rec, ok := l.records[bookingID]; ok && rec.Status == EntryPending {
		rec.Status = EntryCanceled
		l.records[bookingID] = rec
	}
	return n, nil
}

func (l *memLedger) count(bookingID string, t EntryType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[bookingID+"|"+string(t)]; ok {
		return 1
	}
	return 0
}

type enqueued struct {
	step Step
	evt  Event
}

type memQueue struct {
	items []enqueued
	err   error
}

func (q *memQueue) Enqueue(_ context.Context, step Step, evt Event, _ error) error {
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, enqueued{step: step, evt: evt})
	return nil
}

type harness struct {
	p      *Projector
	dir    fakeDirectory
	mirror *memMirror
	ledger *memLedger
	queue  *memQueue
}

func newHarness(t *testing.T) harness {
	t.Helper()
	dir := fakeDirectory{
		resources: map[string]catalog.Resource{
			"r1": {ID: "r1", Active: true, CommissionRate: decimal.NewNullDecimal(decimal.NewFromInt(10)), LedgerAccountID: "acct-r1"},
			"r2": {ID: "r2", Active: true},
		},
		services: map[string]catalog.Service{
			"cut":   {ID: "cut", DurationMinutes: 30, Price: decimal.RequireFromString("45.00")},
			"color": {ID: "color", DurationMinutes: 90, Price: decimal.RequireFromString("45.00"), CommissionRate: decimal.NewNullDecimal(decimal.RequireFromString("12.5"))},
		},
	}
	h := harness{
		dir:    dir,
		mirror: &memMirror{rows: map[string]MirrorBooking{}},
		ledger: newMemLedger(),
		queue:  &memQueue{},
	}
	now := time.Date(2026, 10, 26, 15, 0, 0, 0, time.UTC)
	h.p = NewProjector(dir, h.mirror, h.ledger, h.queue, slog.New(slog.NewTextHandler(io.Discard, nil)), WithNow(func() time.Time { return now }))
	return h
}

func event(id, status string, version int64) Event {
	return Event{
		EventID:         id,
		Type:            events.TypeBookingStatusChanged,
		BookingID:       "bk-1",
		ResourceID:      "r1",
		ClientID:        "c1",
		ServiceID:       "cut",
		Date:            "2026-10-26",
		StartTime:       "10:00",
		DurationMinutes: 30,
		Status:          status,
		Version:         version,
	}
}

func TestDuplicateCompletionPostsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	evt := event("e3", "completed", 3)

	for i := 0; i < 3; i++ {
		if err := h.p.OnBookingLifecycleEvent(ctx, evt); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if h.ledger.count("bk-1", EntryRevenue) != 1 || h.ledger.count("bk-1", EntryCommission) != 1 {
		t.Fatalf("expected one revenue and one commission entry, got %+v", h.ledger.entries)
	}
	if len(h.ledger.records) != 1 {
		t.Fatalf("expected one commission record, got %d", len(h.ledger.records))
	}
	rev := h.ledger.entries["bk-1|revenue"]
	if !rev.Amount.Equal(decimal.RequireFromString("45")) || rev.Status != EntryCompleted || rev.EntryDate != "2026-10-26" {
		t.Fatalf("unexpected revenue entry: %+v", rev)
	}
	com := h.ledger.entries["bk-1|commission"]
	if !com.Amount.Equal(decimal.RequireFromString("4.5")) || com.Status != EntryPending || com.AccountID != "acct-r1" {
		t.Fatalf("unexpected commission entry: %+v", com)
	}
}

func TestServiceRateOverridesResourceDefault(t *testing.T) {
	h := newHarness(t)
	evt := event("e3", "completed", 3)
	evt.ServiceID = "color"
	if err := h.p.OnBookingLifecycleEvent(context.Background(), evt); err != nil {
		t.Fatalf("project: %v", err)
	}
	com := h.ledger.entries["bk-1|commission"]
	if !com.Amount.Equal(decimal.RequireFromString("5.63")) {
		t.Fatalf("expected 5.63 (45 * 12.5%%), got %s", com.Amount)
	}
	if rec := h.ledger.records["bk-1"]; !rec.Rate.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected record rate 12.5, got %s", rec.Rate)
	}
}

func TestNoRateMeansNoCommission(t *testing.T) {
	h := newHarness(t)
	evt := event("e3", "completed", 3)
	evt.ResourceID = "r2"
	if err := h.p.OnBookingLifecycleEvent(context.Background(), evt); err != nil {
		t.Fatalf("project: %v", err)
	}
	if h.ledger.count("bk-1", EntryRevenue) != 1 || h.ledger.count("bk-1", EntryCommission) != 0 || len(h.ledger.records) != 0 {
		t.Fatalf("expected revenue only, got entries=%+v records=%+v", h.ledger.entries, h.ledger.records)
	}
}

func TestCancelAfterCompletionLeavesLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.p.OnBookingLifecycleEvent(ctx, event("e3", "completed", 3)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	cancel := event("e4", "cancelled", 4)
	if err := h.p.OnBookingLifecycleEvent(ctx, cancel); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.ledger.entries["bk-1|revenue"].Status != EntryCompleted {
		t.Fatalf("revenue entry changed: %+v", h.ledger.entries["bk-1|revenue"])
	}
	m := h.mirror.rows["bk-1"]
	if m.Status != MirrorCanceled || !m.Voided {
		t.Fatalf("expected voided canceled mirror, got %+v", m)
	}
}

func TestMirrorConvergesUnderReordering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sequence := []Event{event("e1", "scheduled", 1), event("e2", "confirmed", 2), event("e3", "completed", 3)}

	for _, order := range [][]int{{2, 0, 1}, {1, 2, 0}, {0, 1, 2}} {
		h.mirror.rows = map[string]MirrorBooking{}
		for _, i := range order {
			if err := h.p.OnBookingLifecycleEvent(ctx, sequence[i]); err != nil {
				t.Fatalf("project: %v", err)
			}
		}
		if got := h.mirror.rows["bk-1"]; got.Status != MirrorDone || got.SourceVersion != 3 {
			t.Fatalf("order %v: expected done@3, got %+v", order, got)
		}
	}
}

func TestDeletionVoidsMirror(t *testing.T) {
	h := newHarness(t)
	evt := event("e5", "scheduled", 5)
	evt.Deleted = true
	evt.Type = events.TypeBookingDeleted
	if err := h.p.OnBookingLifecycleEvent(context.Background(), evt); err != nil {
		t.Fatalf("project: %v", err)
	}
	if m := h.mirror.rows["bk-1"]; m.Status != MirrorCanceled || !m.Voided {
		t.Fatalf("expected voided mirror, got %+v", m)
	}
}

func TestMissingServiceFailsLedgerStepOnly(t *testing.T) {
	h := newHarness(t)
	evt := event("e3", "completed", 3)
	evt.ServiceID = "gone"

	err := h.p.OnBookingLifecycleEvent(context.Background(), evt)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepLedger || !errors.Is(err, ErrServiceMissing) {
		t.Fatalf("expected ledger StepError, got %v", err)
	}
	if h.mirror.rows["bk-1"].Status != MirrorDone {
		t.Fatalf("mirror step should still apply, got %+v", h.mirror.rows["bk-1"])
	}
}

func TestMissingResourceRetriesLedgerStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	evt := event("e3", "completed", 3)
	evt.ResourceID = "r9"

	if err := h.p.Handle(ctx, evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.queue.items) != 1 || h.queue.items[0].step != StepLedger {
		t.Fatalf("expected one ledger retry, got %+v", h.queue.items)
	}
	if h.ledger.count("bk-1", EntryRevenue) != 0 {
		t.Fatalf("nothing should be posted before the resource resolves, got %+v", h.ledger.entries)
	}
	if err := h.p.RunStep(ctx, StepLedger, evt); !errors.Is(err, ErrResourceMissing) {
		t.Fatalf("expected ErrResourceMissing, got %v", err)
	}

	h.dir.resources["r9"] = catalog.Resource{ID: "r9", Active: true, CommissionRate: decimal.NewNullDecimal(decimal.NewFromInt(10)), LedgerAccountID: "acct-r9"}
	for i := 0; i < 2; i++ {
		if err := h.p.RunStep(ctx, h.queue.items[0].step, h.queue.items[0].evt); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
	}
	if h.ledger.count("bk-1", EntryRevenue) != 1 || h.ledger.count("bk-1", EntryCommission) != 1 || len(h.ledger.records) != 1 {
		t.Fatalf("expected one revenue, one commission, one record, got entries=%+v records=%+v", h.ledger.entries, h.ledger.records)
	}
	if com := h.ledger.entries["bk-1|commission"]; !com.Amount.Equal(decimal.RequireFromString("4.5")) || com.AccountID != "acct-r9" {
		t.Fatalf("unexpected commission entry: %+v", com)
	}
}

func TestHandleSchedulesFailedStep(t *testing.T) {
	h := newHarness(t)
	h.mirror.err = errors.New("mirror db down")
	evt := event("e3", "completed", 3)

	if err := h.p.Handle(context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.queue.items) != 1 || h.queue.items[0].step != StepMirror {
		t.Fatalf("expected one mirror retry, got %+v", h.queue.items)
	}
	if h.ledger.count("bk-1", EntryRevenue) != 1 {
		t.Fatalf("ledger step should have run")
	}

	h.mirror.err = nil
	if err := h.p.RunStep(context.Background(), h.queue.items[0].step, h.queue.items[0].evt); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.mirror.rows["bk-1"].Status != MirrorDone {
		t.Fatalf("retry did not converge mirror")
	}
}

func TestHandleFailsWhenRetryCannotBeScheduled(t *testing.T) {
	h := newHarness(t)
	h.mirror.err = errors.New("mirror db down")
	h.queue.err = errors.New("queue down")
	if err := h.p.Handle(context.Background(), event("e3", "completed", 3)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMirrorStatusVocabulary(t *testing.T) {
	want := map[string]string{
		"scheduled": MirrorBooked,
		"confirmed": MirrorConfirmed,
		"completed": MirrorDone,
		"cancelled": MirrorCanceled,
		"no_show":   MirrorMissed,
	}
	for in, out := range want {
		got, err := MirrorStatus(in)
		if err != nil || got != out {
			t.Fatalf("%s: want %s got %s err=%v", in, out, got, err)
		}
	}
	if _, err := MirrorStatus("paid"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestCommissionRounding(t *testing.T) {
	cases := []struct{ price, rate, want string }{
		{"45.00", "12.5", "5.63"},
		{"100", "10", "10"},
		{"19.99", "15", "3"},
		{"0.10", "33.333", "0.03"},
	}
	for _, tc := range cases {
		got := Commission(decimal.RequireFromString(tc.price), decimal.RequireFromString(tc.rate))
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s * %s%%: want %s got %s", tc.price, tc.rate, tc.want, got)
		}
	}
}

func TestVoidBookingEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.p.OnBookingLifecycleEvent(ctx, event("e3", "completed", 3)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := h.p.VoidBookingEntries(ctx, "bk-1", " "); err == nil {
		t.Fatalf("expected reason to be required")
	}
	n, err := h.p.VoidBookingEntries(ctx, "bk-1", "refund issued at desk")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 voided, got %d err=%v", n, err)
	}
	if h.ledger.entries["bk-1|revenue"].Status != EntryCanceled {
		t.Fatalf("revenue not voided")
	}
	if len(h.ledger.records) != 1 {
		t.Fatalf("commission record must be kept")
	}
	if rec := h.ledger.records["bk-1"]; rec.Status != EntryCanceled {
		t.Fatalf("commission record should be canceled, got %+v", rec)
	}
}
