package clinic

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

// Handler provides admin HTTP endpoints for clinics and settings.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a clinic admin handler.
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Create handles POST /admin/clinics
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClinicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	c, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidName) || errors.Is(err, ErrInvalidHours) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("clinic create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.logger.Info("clinic created", "clinic_id", c.ID, "name", c.Name)
	writeJSON(w, http.StatusCreated, c)
}

// Get handles GET /admin/clinics/{clinicID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clinicID")
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			writeError(w, http.StatusNotFound, "clinic not found")
			return
		}
		h.logger.Error("clinic get failed", "error", err, "clinic_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// List handles GET /admin/clinics
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clinics, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("clinic list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if clinics == nil {
		clinics = []Clinic{}
	}
	writeJSON(w, http.StatusOK, clinics)
}

// Update handles PUT /admin/clinics/{clinicID}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "clinicID")

	var req CreateClinicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrClinicNotFound) {
			writeError(w, http.StatusNotFound, "clinic not found")
			return
		}
		h.logger.Error("clinic update lookup failed", "error", err, "clinic_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	c.Name = req.Name
	c.LocationLabel = req.LocationLabel
	c.OpenTime = req.OpenTime
	c.CloseTime = req.CloseTime

	if err := h.repo.Update(r.Context(), c); err != nil {
		h.logger.Error("clinic update failed", "error", err, "clinic_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetSettings handles GET /admin/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("settings get failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PUT /admin/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if (s.HospitalLat == nil) != (s.HospitalLon == nil) {
		writeError(w, http.StatusBadRequest, "hospital_lat and hospital_lon must be set together")
		return
	}
	if s.GeofenceRadiusKm < 0 {
		writeError(w, http.StatusBadRequest, "geofence_radius_km must not be negative")
		return
	}

	if err := h.repo.UpdateSettings(r.Context(), &s); err != nil {
		h.logger.Error("settings update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
