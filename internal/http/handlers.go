package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/ticket-entry-gate/internal/domain"
	"github.com/robertarktes/ticket-entry-gate/internal/entry"
	"github.com/robertarktes/ticket-entry-gate/internal/observability"
)

type EntryService interface {
	GenerateToken(ctx context.Context, ticketID, requesterID string) (*entry.IssuedToken, error)
	ValidateToken(ctx context.Context, raw, validatorID string, sc entry.ScanContext) (*entry.Decision, error)
	History(ctx context.Context, ticketID string) ([]domain.EntryLogRecord, error)
	Stats(ctx context.Context, eventID string) (*entry.Stats, error)
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc    EntryService
	ready  map[string]Pinger
	logger observability.Logger
}

func NewHandlers(svc EntryService, ready map[string]Pinger, logger observability.Logger) *Handlers {
	return &Handlers{svc: svc, ready: ready, logger: logger}
}

func (h *Handlers) GenerateToken(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	issued, err := h.svc.GenerateToken(r.Context(), chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, issued)
}

type validateRequest struct {
	Token       string              `json:"token"`
	Notes       string              `json:"notes"`
	DeviceInfo  string              `json:"deviceInfo"`
	GeoLocation *domain.GeoLocation `json:"geoLocation"`
}

func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeJSONError(w, http.StatusBadRequest, "token is required")
		return
	}

	p, _ := PrincipalFrom(r.Context())
	d, err := h.svc.ValidateToken(r.Context(), req.Token, p.UserID, entry.ScanContext{
		Notes:      req.Notes,
		DeviceInfo: req.DeviceInfo,
		IP:         clientIP(r),
		Geo:        req.GeoLocation,
	})
	if errors.Is(err, domain.ErrInvalidInput) {
		writeJSONError(w, http.StatusBadRequest, "invalid geolocation")
		return
	}
	if err != nil {
		// The scanner still renders a denial.
		writeJSON(w, http.StatusServiceUnavailable, entry.Decision{
			Status:      domain.EntryDenied,
			Message:     "Validation temporarily unavailable, please retry",
			IsValid:     false,
			ValidatedAt: time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type entryLogDTO struct {
	ID          string              `json:"id"`
	EventID     string              `json:"eventId"`
	TicketID    string              `json:"ticketId"`
	AttendeeID  string              `json:"attendeeId"`
	Status      domain.EntryStatus  `json:"status"`
	ValidatorID string              `json:"validatorId"`
	Notes       string              `json:"notes,omitempty"`
	DeviceInfo  string              `json:"deviceInfo,omitempty"`
	IPAddress   string              `json:"ipAddress,omitempty"`
	GeoLocation *domain.GeoLocation `json:"geoLocation,omitempty"`
	ValidatedAt time.Time           `json:"validatedAt"`
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]entryLogDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, entryLogDTO{
			ID:          rec.ID.String(),
			EventID:     rec.EventID,
			TicketID:    rec.TicketID,
			AttendeeID:  rec.AttendeeID,
			Status:      rec.Status,
			ValidatorID: rec.ValidatorID,
			Notes:       rec.Notes,
			DeviceInfo:  rec.DeviceInfo,
			IPAddress:   rec.IPAddress,
			GeoLocation: rec.Geo,
			ValidatedAt: rec.ValidatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, p := range h.ready {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSONError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNotTicketOwner):
		writeJSONError(w, http.StatusForbidden, "ticket belongs to another user")
	case errors.Is(err, domain.ErrTicketInactive):
		writeJSONError(w, http.StatusForbidden, "ticket is not active")
	case errors.Is(err, domain.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrConflict):
		writeJSONError(w, http.StatusConflict, "conflict, try again")
	default:
		observability.LoggerFrom(r.Context(), h.logger).Error("request failed: ", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
