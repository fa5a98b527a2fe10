// Package clinic holds clinic identity, active hours, and site settings.
package clinic

import (
	"strings"
	"time"
)

// Clinic is a service point with its own queue and active-hours window.
type Clinic struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LocationLabel string    `json:"location_label,omitempty"`
	OpenTime      string    `json:"open_time"`  // "08:00" in 24-hour local time
	CloseTime     string    `json:"close_time"` // "16:00"
	CreatedAt     time.Time `json:"created_at"`
}

// Settings holds site-wide configuration used to gate self-check-in.
// HospitalLat/HospitalLon are nil when no hospital location is configured,
// in which case the geofence check is skipped entirely.
type Settings struct {
	HospitalLat      *float64  `json:"hospital_lat,omitempty"`
	HospitalLon      *float64  `json:"hospital_lon,omitempty"`
	GeofenceRadiusKm float64   `json:"geofence_radius_km"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HospitalLocationSet reports whether a hospital point is configured.
func (s *Settings) HospitalLocationSet() bool {
	return s != nil && s.HospitalLat != nil && s.HospitalLon != nil
}

// CreateClinicRequest is the admin payload for creating a clinic.
type CreateClinicRequest struct {
	Name          string `json:"name"`
	LocationLabel string `json:"location_label"`
	OpenTime      string `json:"open_time"`
	CloseTime     string `json:"close_time"`
}

// Validate checks required fields and the hour format.
func (r *CreateClinicRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.OpenTime != "" && !validClock(r.OpenTime) {
		return ErrInvalidHours
	}
	if r.CloseTime != "" && !validClock(r.CloseTime) {
		return ErrInvalidHours
	}
	return nil
}

func validClock(v string) bool {
	_, err := time.Parse("15:04", v)
	return err == nil
}
