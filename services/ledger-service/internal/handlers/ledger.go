package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/salonpos/libs/httpx"
	"github.com/md-rashed-zaman/salonpos/libs/requestid"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/projection"
	"github.com/md-rashed-zaman/salonpos/services/ledger-service/internal/retry"
)

type LedgerReader interface {
	ListEntries(ctx context.Context, bookingID string) ([]projection.LedgerEntry, error)
	GetCommission(ctx context.Context, bookingID string) (projection.CommissionRecord, bool, error)
}

type MirrorReader interface {
	Get(ctx context.Context, bookingID string) (projection.MirrorBooking, bool, error)
}

type RetryLister interface {
	List(ctx context.Context, status string, limit int) ([]retry.Job, error)
}

type Voider interface {
	VoidBookingEntries(ctx context.Context, bookingID, reason string) (int, error)
}

type LedgerHandler struct {
	ledger  LedgerReader
	mirror  MirrorReader
	retries RetryLister
	voider  Voider
	logger  *slog.Logger
}

func NewLedgerHandler(ledger LedgerReader, mirror MirrorReader, retries RetryLister, voider Voider, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, mirror: mirror, retries: retries, voider: voider, logger: logger}
}

type entriesResponse struct {
	BookingID  string                       `json:"booking_id"`
	Entries    []projection.LedgerEntry     `json:"entries"`
	Commission *projection.CommissionRecord `json:"commission,omitempty"`
}

func (h *LedgerHandler) Entries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if bookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	entries, err := h.ledger.ListEntries(r.Context(), bookingID)
	if err != nil {
		h.internal(w, r, "list ledger entries", err)
		return
	}
	resp := entriesResponse{BookingID: bookingID, Entries: entries}
	if resp.Entries == nil {
		resp.Entries = []projection.LedgerEntry{}
	}
	rec, ok, err := h.ledger.GetCommission(r.Context(), bookingID)
	if err != nil {
		h.internal(w, r, "get commission", err)
		return
	}
	if ok {
		resp.Commission = &rec
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) Mirror(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if bookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	m, ok, err := h.mirror.Get(r.Context(), bookingID)
	if err != nil {
		h.internal(w, r, "get mirror", err)
		return
	}
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "mirror booking not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, m)
}

type voidRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

// Void is the explicit correction path; lifecycle events never void entries.
func (h *LedgerHandler) Void(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.BookingID) == "" || strings.TrimSpace(req.Reason) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id and reason are required")
		return
	}
	n, err := h.voider.VoidBookingEntries(r.Context(), req.BookingID, req.Reason)
	if err != nil {
		h.internal(w, r, "void entries", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking_id": strings.TrimSpace(req.BookingID), "voided": n})
}

func (h *LedgerHandler) Retries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = retry.StatusDead
	case retry.StatusPending, retry.StatusDone, retry.StatusDead:
	default:
		httpx.WriteError(w, http.StatusBadRequest, "unknown status")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httpx.WriteError(w, http.StatusBadRequest, "limit must be in [1,500]")
			return
		}
		limit = n
	}
	jobs, err := h.retries.List(r.Context(), status, limit)
	if err != nil {
		h.internal(w, r, "list retries", err)
		return
	}
	if jobs == nil {
		jobs = []retry.Job{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": status, "jobs": jobs})
}

func (h *LedgerHandler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestid.Logger(r.Context(), h.logger).Error(op+" failed", "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, "internal error")
}
