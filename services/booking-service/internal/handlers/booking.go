package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonpos/libs/httpx"
	"github.com/md-rashed-zaman/salonpos/libs/requestid"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonpos/services/booking-service/internal/scheduling"
)

// Engine is the scheduling surface the handlers drive.
type Engine interface {
	ListAvailableSlots(ctx context.Context, resourceID, date string, durationMinutes int) ([]scheduling.Slot, error)
	ValidateBooking(ctx context.Context, req scheduling.ValidateRequest) (scheduling.Result, error)
	Book(ctx context.Context, req scheduling.BookRequest) (scheduling.Outcome, error)
	Reschedule(ctx context.Context, req scheduling.RescheduleRequest) (scheduling.Outcome, error)
	Transition(ctx context.Context, bookingID string, to model.Status) (model.Booking, error)
	Delete(ctx context.Context, bookingID string) error
	ServiceDuration(ctx context.Context, serviceID string) (int, error)
}

type BookingLister interface {
	ListByResourceDate(ctx context.Context, resourceID, date string) ([]model.Booking, error)
}

type BookingHandler struct {
	engine   Engine
	bookings BookingLister
	logger   *slog.Logger
}

func NewBookingHandler(engine Engine, bookings BookingLister, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, bookings: bookings, logger: logger}
}

type validateRequest struct {
	ResourceID       string `json:"resource_id"`
	ServiceID        string `json:"service_id"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	DurationMinutes  int    `json:"duration_minutes"`
	ExcludeBookingID string `json:"exclude_booking_id"`
}

type bookRequest struct {
	ResourceID string `json:"resource_id"`
	ClientID   string `json:"client_id"`
	ServiceID  string `json:"service_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
}

type rescheduleRequest struct {
	BookingID string `json:"booking_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type statusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type deleteRequest struct {
	BookingID string `json:"booking_id"`
}

type bookingItem struct {
	BookingID       string `json:"booking_id"`
	ResourceID      string `json:"resource_id"`
	ClientID        string `json:"client_id"`
	ServiceID       string `json:"service_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferMinutes   int    `json:"buffer_minutes"`
	Status          string `json:"status"`
	Version         int64  `json:"version"`
}

type outcomeResponse struct {
	scheduling.Result
	Booking *bookingItem `json:"booking,omitempty"`
}

func toItem(b model.Booking) bookingItem {
	return bookingItem{
		BookingID:       b.ID,
		ResourceID:      b.ResourceID,
		ClientID:        b.ClientID,
		ServiceID:       b.ServiceID,
		Date:            b.Date,
		StartTime:       b.StartTime,
		DurationMinutes: b.DurationMinutes,
		BufferMinutes:   b.BufferMinutes,
		Status:          string(b.Status),
		Version:         b.Version,
	}
}

// Slots serves GET ?resource_id=&date=&duration_minutes= (or service_id= instead
// of duration_minutes).
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	resourceID := strings.TrimSpace(q.Get("resource_id"))
	date := strings.TrimSpace(q.Get("date"))
	if resourceID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "resource_id and date are required")
		return
	}

	duration, ok := h.duration(w, r, q.Get("duration_minutes"), q.Get("service_id"))
	if !ok {
		return
	}
	slots, err := h.engine.ListAvailableSlots(r.Context(), resourceID, date, duration)
	if err != nil {
		h.writeErr(w, r, "list slots", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"resource_id":      resourceID,
		"date":             date,
		"duration_minutes": duration,
		"slots":            slots,
	})
}

// Validate answers whether a proposed booking would be accepted right now. Business
// rejections are a 200 with valid=false; only malformed input is a 4xx.
func (h *BookingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ResourceID) == "" || req.Date == "" || req.Time == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	// An unknown service is a business rejection here, same as an unknown resource.
	if serviceID := strings.TrimSpace(req.ServiceID); serviceID != "" {
		d, err := h.engine.ServiceDuration(r.Context(), serviceID)
		if errors.Is(err, scheduling.ErrUnknownService) {
			httpx.WriteJSON(w, http.StatusOK, scheduling.Result{Kind: scheduling.KindUnknownResourceOrService, Message: "service is unknown"})
			return
		}
		if err != nil {
			h.writeErr(w, r, "service duration", err)
			return
		}
		req.DurationMinutes = d
	}
	duration, ok := h.duration(w, r, strconv.Itoa(req.DurationMinutes), "")
	if !ok {
		return
	}
	res, err := h.engine.ValidateBooking(r.Context(), scheduling.ValidateRequest{
		ResourceID:       strings.TrimSpace(req.ResourceID),
		Date:             req.Date,
		Time:             req.Time,
		DurationMinutes:  duration,
		ExcludeBookingID: strings.TrimSpace(req.ExcludeBookingID),
	})
	if err != nil {
		h.writeErr(w, r, "validate booking", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ResourceID == "" || req.ClientID == "" || req.ServiceID == "" || req.Date == "" || req.Time == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	out, err := h.engine.Book(r.Context(), scheduling.BookRequest{
		ResourceID: req.ResourceID,
		ClientID:   req.ClientID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		Time:       req.Time,
	})
	if err != nil {
		h.writeErr(w, r, "book", err)
		return
	}
	writeOutcome(w, http.StatusCreated, out)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.BookingID) == "" || req.Date == "" || req.Time == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	out, err := h.engine.Reschedule(r.Context(), scheduling.RescheduleRequest{
		BookingID: strings.TrimSpace(req.BookingID),
		Date:      req.Date,
		Time:      req.Time,
	})
	if err != nil {
		h.writeErr(w, r, "reschedule", err)
		return
	}
	writeOutcome(w, http.StatusOK, out)
}

func (h *BookingHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	status, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil || strings.TrimSpace(req.BookingID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id and a valid status are required")
		return
	}
	b, err := h.engine.Transition(r.Context(), strings.TrimSpace(req.BookingID), status)
	if err != nil {
		h.writeErr(w, r, "transition", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toItem(b))
}

func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req deleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || strings.TrimSpace(req.BookingID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	if err := h.engine.Delete(r.Context(), strings.TrimSpace(req.BookingID)); err != nil {
		h.writeErr(w, r, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resourceID := strings.TrimSpace(r.URL.Query().Get("resource_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if resourceID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "resource_id and date are required")
		return
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	bookings, err := h.bookings.ListByResourceDate(r.Context(), resourceID, date)
	if err != nil {
		h.writeErr(w, r, "list bookings", err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

func (h *BookingHandler) duration(w http.ResponseWriter, r *http.Request, rawMinutes, serviceID string) (int, bool) {
	if serviceID = strings.TrimSpace(serviceID); serviceID != "" {
		d, err := h.engine.ServiceDuration(r.Context(), serviceID)
		if err != nil {
			h.writeErr(w, r, "service duration", err)
			return 0, false
		}
		return d, true
	}
	d, err := strconv.Atoi(strings.TrimSpace(rawMinutes))
	if err != nil || d <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "duration_minutes or service_id is required")
		return 0, false
	}
	return d, true
}

// writeOutcome maps a rejected commit to 409 for conflicts and 422 otherwise.
func writeOutcome(w http.ResponseWriter, okStatus int, out scheduling.Outcome) {
	resp := outcomeResponse{Result: out.Result}
	if out.Booking != nil {
		item := toItem(*out.Booking)
		resp.Booking = &item
	}
	status := okStatus
	switch {
	case out.Valid:
	case out.Kind == scheduling.KindConflict:
		status = http.StatusConflict
	default:
		status = http.StatusUnprocessableEntity
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *BookingHandler) writeErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scheduling.ErrUnknownResource), errors.Is(err, scheduling.ErrUnknownService), errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, scheduling.ErrNotReschedulable):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away or the timeout middleware answers.
	default:
		requestid.Logger(r.Context(), h.logger).Error(op+" failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
