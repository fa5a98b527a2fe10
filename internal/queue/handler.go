package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-queue/pkg/logging"
)

// Handler exposes the queue engine over HTTP.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates a queue handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// CheckIn handles POST /api/queue/check-in
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	entry, err := h.engine.CheckIn(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err, "check-in failed")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// SelfCheckIn handles POST /api/queue/self-check-in
func (h *Handler) SelfCheckIn(w http.ResponseWriter, r *http.Request) {
	var req SelfCheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Lat != nil && (*req.Lat < -90 || *req.Lat > 90) {
		writeError(w, http.StatusBadRequest, "lat must be between -90 and 90")
		return
	}
	if req.Lon != nil && (*req.Lon < -180 || *req.Lon > 180) {
		writeError(w, http.StatusBadRequest, "lon must be between -180 and 180")
		return
	}

	entry, err := h.engine.SelfCheckIn(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err, "self check-in failed")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// statusUpdateRequest is the body of the unified entry status endpoint.
type statusUpdateRequest struct {
	Action    string `json:"action"`
	DoctorID  string `json:"doctor_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
}

// UpdateStatus handles POST /api/queue/entries/{entryID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var (
		entry *QueueEntry
		err   error
	)
	switch req.Action {
	case "call_next":
		entry, err = h.engine.CallNext(r.Context(), entryID, req.DoctorID)
	case "complete":
		entry, err = h.engine.Complete(r.Context(), entryID, CompleteRequest{
			DoctorID:  req.DoctorID,
			Notes:     req.Notes,
			ActorRole: req.ActorRole,
		})
	case "no_show":
		entry, err = h.engine.MarkNoShow(r.Context(), entryID)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if err != nil {
		h.writeEngineError(w, err, "status update failed")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// BookAppointment handles POST /api/appointments
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	appt, err := h.engine.BookAppointment(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err, "booking failed")
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// GetSnapshot handles GET /api/clinics/{clinicID}/queue
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	clinicID := chi.URLParam(r, "clinicID")
	snap, err := h.engine.GetClinicSnapshot(r.Context(), clinicID)
	if err != nil {
		h.writeEngineError(w, err, "snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DoctorStats handles GET /api/stats/doctors?range=daily|weekly|monthly
func (h *Handler) DoctorStats(w http.ResponseWriter, r *http.Request) {
	rng := StatsRange(r.URL.Query().Get("range"))
	if rng == "" {
		rng = RangeDaily
	}

	stats, err := h.engine.DoctorStats(r.Context(), rng, h.engine.now())
	if err != nil {
		h.writeEngineError(w, err, "doctor stats failed")
		return
	}
	if stats == nil {
		stats = []DoctorCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"range":   rng,
		"doctors": stats,
	})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error, logMsg string) {
	var (
		notFound   *NotFoundError
		conflict   *ConflictError
		forbidden  *ForbiddenError
		validation *ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":       forbidden.Error(),
			"distance_km": forbidden.DistanceKm,
			"radius_km":   forbidden.RadiusKm,
		})
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
