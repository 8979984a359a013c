package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/scheduling"
)

type fakeEngine struct {
	slots      []scheduling.Slot
	slotsErr   error
	lastDur    int
	validate   scheduling.Result
	book       scheduling.Outcome
	transition model.Booking
	err        error
}

func (f *fakeEngine) ListAvailableSlots(_ context.Context, _, _ string, d int) ([]scheduling.Slot, error) {
	f.lastDur = d
	return f.slots, f.slotsErr
}

func (f *fakeEngine) ValidateBooking(_ context.Context, req scheduling.ValidateRequest) (scheduling.Result, error) {
	f.lastDur = req.DurationMinutes
	return f.validate, f.err
}

func (f *fakeEngine) Book(context.Context, scheduling.BookRequest) (scheduling.Outcome, error) {
	return f.book, f.err
}

func (f *fakeEngine) Reschedule(context.Context, scheduling.RescheduleRequest) (scheduling.Outcome, error) {
	return f.book, f.err
}

func (f *fakeEngine) Transition(context.Context, string, model.Status) (model.Booking, error) {
	return f.transition, f.err
}

func (f *fakeEngine) Delete(context.Context, string) error {
	return f.err
}

func (f *fakeEngine) ServiceDuration(_ context.Context, id string) (int, error) {
	if id == "cut" {
		return 45, nil
	}
	return 0, scheduling.ErrUnknownService
}

type fakeLister struct{ rows []model.Booking }

func (f fakeLister) ListByResourceDate(context.Context, string, string) ([]model.Booking, error) {
	return f.rows, nil
}

func newHandler(e *fakeEngine) *BookingHandler {
	return NewBookingHandler(e, fakeLister{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSlotsUsesServiceDuration(t *testing.T) {
	e := &fakeEngine{slots: []scheduling.Slot{{Time: "09:00", Available: true}}}
	h := newHandler(e)

	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?resource_id=r1&date=2026-10-26&service_id=cut", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if e.lastDur != 45 {
		t.Fatalf("expected service duration 45, got %d", e.lastDur)
	}
	var body struct {
		Slots []scheduling.Slot `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slots) != 1 || body.Slots[0].Time != "09:00" {
		t.Fatalf("unexpected slots: %+v", body.Slots)
	}
}

func TestSlotsRequiresDuration(t *testing.T) {
	h := newHandler(&fakeEngine{})
	rec := httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?resource_id=r1&date=2026-10-26", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?resource_id=r1&date=2026-10-26&service_id=perm", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown service, got %d", rec.Code)
	}
}

func TestValidateReturnsResultWith200(t *testing.T) {
	e := &fakeEngine{validate: scheduling.Result{Kind: scheduling.KindConflict, ConflictingTime: "10:00"}}
	h := newHandler(e)
	body := `{"resource_id":"r1","date":"2026-10-26","time":"10:30","duration_minutes":30}`
	rec := httptest.NewRecorder()
	h.Validate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/validate", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res scheduling.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Valid || res.Kind != scheduling.KindConflict || res.ConflictingTime != "10:00" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCreateStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		out  scheduling.Outcome
		code int
	}{
		{name: "created", out: scheduling.Outcome{Result: scheduling.Result{Valid: true}, Booking: &model.Booking{ID: "bk-1", Status: model.StatusScheduled}}, code: http.StatusCreated},
		{name: "conflict", out: scheduling.Outcome{Result: scheduling.Result{Kind: scheduling.KindConflict}}, code: http.StatusConflict},
		{name: "outside hours", out: scheduling.Outcome{Result: scheduling.Result{Kind: scheduling.KindOutsideBusinessHours}}, code: http.StatusUnprocessableEntity},
		{name: "past", out: scheduling.Outcome{Result: scheduling.Result{Kind: scheduling.KindPastTime}}, code: http.StatusUnprocessableEntity},
	}
	body := `{"resource_id":"r1","client_id":"c1","service_id":"cut","date":"2026-10-26","time":"10:00"}`
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(&fakeEngine{book: tc.out})
			rec := httptest.NewRecorder()
			h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHandler(&fakeEngine{})
	for _, body := range []string{`{`, `{"resource_id":"r1"}`, `{"resource_id":"r1","unknown":1}`} {
		rec := httptest.NewRecorder()
		h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestStatusErrorsMapToHTTP(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{err: model.ErrInvalidTransition, code: http.StatusConflict},
		{err: model.ErrNotFound, code: http.StatusNotFound},
		{err: io.ErrUnexpectedEOF, code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := newHandler(&fakeEngine{err: tc.err})
		rec := httptest.NewRecorder()
		h.Status(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/status", strings.NewReader(`{"booking_id":"bk-1","status":"completed"}`)))
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}

	h := newHandler(&fakeEngine{})
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/status", strings.NewReader(`{"booking_id":"bk-1","status":"paid"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestDeleteNoContent(t *testing.T) {
	h := newHandler(&fakeEngine{})
	rec := httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/bookings/delete", strings.NewReader(`{"booking_id":"bk-1"}`)))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestValidateUnknownServiceIsBusinessRejection(t *testing.T) {
	e := &fakeEngine{validate: scheduling.Result{Valid: true}}
	h := newHandler(e)
	body := `{"resource_id":"r1","date":"2026-10-26","time":"10:30","service_id":"perm"}`
	rec := httptest.NewRecorder()
	h.Validate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/validate", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res scheduling.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Valid || res.Kind != scheduling.KindUnknownResourceOrService {
		t.Fatalf("unexpected result: %+v", res)
	}

	body = `{"resource_id":"r1","date":"2026-10-26","time":"10:30","service_id":"cut"}`
	rec = httptest.NewRecorder()
	h.Validate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/validate", strings.NewReader(body)))
	if rec.Code != http.StatusOK || e.lastDur != 45 {
		t.Fatalf("expected 200 with service duration 45, got %d dur=%d", rec.Code, e.lastDur)
	}
}

func TestListRejectsMalformedDate(t *testing.T) {
	h := newHandler(&fakeEngine{})
	for _, date := range []string{"26-10-2026", "2026-13-01", "tomorrow"} {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings?resource_id=r1&date="+date, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", date, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bookings?resource_id=r1&date=2026-10-26", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
