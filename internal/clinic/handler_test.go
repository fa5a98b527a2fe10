package clinic

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClinicRouter(repo Repository) http.Handler {
	h := NewHandler(repo, nil)
	r := chi.NewRouter()
	r.Get("/clinics", h.List)
	r.Post("/clinics", h.Create)
	r.Get("/clinics/{clinicID}", h.Get)
	r.Put("/clinics/{clinicID}", h.Update)
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	return r
}

func request(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestHandlerCreateAndGetClinic(t *testing.T) {
	handler := newClinicRouter(NewInMemoryRepository())

	rec := request(t, handler, http.MethodPost, "/clinics", map[string]string{
		"name": "Dermatology", "open_time": "08:00", "close_time": "16:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Clinic
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = request(t, handler, http.MethodGet, "/clinics/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, handler, http.MethodGet, "/clinics/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreateRejectsInvalid(t *testing.T) {
	handler := newClinicRouter(NewInMemoryRepository())

	rec := request(t, handler, http.MethodPost, "/clinics", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, handler, http.MethodPost, "/clinics", map[string]string{
		"name": "X", "open_time": "8am",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListEmptyReturnsArray(t *testing.T) {
	handler := newClinicRouter(NewInMemoryRepository())

	rec := request(t, handler, http.MethodGet, "/clinics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandlerUpdateSettingsValidation(t *testing.T) {
	handler := newClinicRouter(NewInMemoryRepository())

	// lat without lon
	rec := request(t, handler, http.MethodPut, "/settings", map[string]any{
		"hospital_lat": 31.95,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, handler, http.MethodPut, "/settings", map[string]any{
		"geofence_radius_km": -1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, handler, http.MethodPut, "/settings", map[string]any{
		"hospital_lat": 31.95, "hospital_lon": 35.91, "geofence_radius_km": 0.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, handler, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.True(t, s.HospitalLocationSet())
}
