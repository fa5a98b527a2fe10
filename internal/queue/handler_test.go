package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandlerFixture(t *testing.T) (*engineFixture, http.Handler) {
	t.Helper()
	f := newEngineFixture(t)
	h := NewHandler(f.engine, nil)

	r := chi.NewRouter()
	r.Post("/api/appointments", h.BookAppointment)
	r.Post("/api/queue/check-in", h.CheckIn)
	r.Post("/api/queue/self-check-in", h.SelfCheckIn)
	r.Post("/api/queue/entries/{entryID}/status", h.UpdateStatus)
	r.Get("/api/clinics/{clinicID}/queue", h.GetSnapshot)
	r.Get("/api/stats/doctors", h.DoctorStats)
	return f, r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerWalkInCheckIn(t *testing.T) {
	_, handler := newHandlerFixture(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/queue/check-in", map[string]string{"clinic_id": "1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, "W-001", entry.TicketNumber)
	assert.Equal(t, StatusWaiting, entry.Status)
}

func TestHandlerCheckInUnknownClinicReturns404(t *testing.T) {
	_, handler := newHandlerFixture(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/queue/check-in", map[string]string{"clinic_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCheckInMissingClinicReturns400(t *testing.T) {
	_, handler := newHandlerFixture(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/queue/check-in", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSelfCheckInGeofenceReturns403(t *testing.T) {
	f, handler := newHandlerFixture(t)
	f.clinics.SeedSettings(hospitalSettings(31.95, 35.91, 0.5))
	f.book(t, "1", "F-100", "")

	rec := doJSON(t, handler, http.MethodPost, "/api/queue/self-check-in", map[string]any{
		"ticket_code": "D-001",
		"lat":         31.95,
		"lon":         35.92,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var payload struct {
		DistanceKm float64 `json:"distance_km"`
		RadiusKm   float64 `json:"radius_km"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Greater(t, payload.DistanceKm, payload.RadiusKm)
}

func TestHandlerSelfCheckInMalformedCoords(t *testing.T) {
	_, handler := newHandlerFixture(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/queue/self-check-in", map[string]any{
		"ticket_code": "D-001",
		"lat":         120.0,
		"lon":         35.92,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSelfCheckInConflictReturns409(t *testing.T) {
	f, handler := newHandlerFixture(t)
	f.book(t, "1", "F-100", "")

	rec := doJSON(t, handler, http.MethodPost, "/api/queue/self-check-in", map[string]string{"ticket_code": "D-001"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/api/queue/self-check-in", map[string]string{"ticket_code": "D-001"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerStatusActions(t *testing.T) {
	f, handler := newHandlerFixture(t)

	entry, err := f.engine.CheckIn(context.Background(), CheckInRequest{ClinicID: "1"})
	require.NoError(t, err)

	path := fmt.Sprintf("/api/queue/entries/%s/status", entry.ID)

	rec := doJSON(t, handler, http.MethodPost, path, map[string]string{"action": "complete"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, path, map[string]string{"action": "call_next", "doctor_id": "d1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, path, map[string]string{
		"action": "complete", "doctor_id": "d1", "notes": "ok", "actor_role": "doctor",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var done QueueEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &done))
	assert.Equal(t, StatusDone, done.Status)
	assert.Equal(t, "ok", done.Notes)

	rec = doJSON(t, handler, http.MethodPost, path, map[string]string{"action": "launch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSnapshot(t *testing.T) {
	f, handler := newHandlerFixture(t)

	_, err := f.engine.CheckIn(context.Background(), CheckInRequest{ClinicID: "1"})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/api/clinics/1/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Queue, 1)
	assert.Equal(t, 1, snap.TotalWaiting)
	assert.Equal(t, 15, snap.WaitTime)

	rec = doJSON(t, handler, http.MethodGet, "/api/clinics/nope/queue", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDoctorStats(t *testing.T) {
	f, handler := newHandlerFixture(t)
	ctx := context.Background()

	entry, err := f.engine.CheckIn(ctx, CheckInRequest{ClinicID: "1"})
	require.NoError(t, err)
	_, err = f.engine.CallNext(ctx, entry.ID, "d1")
	require.NoError(t, err)
	_, err = f.engine.Complete(ctx, entry.ID, CompleteRequest{DoctorID: "d1"})
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/api/stats/doctors?range=monthly", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Range   string        `json:"range"`
		Doctors []DoctorCount `json:"doctors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "monthly", payload.Range)
	require.Len(t, payload.Doctors, 1)
	assert.Equal(t, DoctorCount{DoctorID: "d1", Completed: 1}, payload.Doctors[0])

	rec = doJSON(t, handler, http.MethodGet, "/api/stats/doctors?range=yearly", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
