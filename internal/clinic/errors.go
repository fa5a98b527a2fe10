package clinic

import "errors"

var (
	// ErrInvalidName is returned when the clinic name is missing
	ErrInvalidName = errors.New("clinic name is required")

	// ErrInvalidHours is returned when an active-hours value is not HH:MM
	ErrInvalidHours = errors.New("active hours must be in HH:MM format")

	// ErrClinicNotFound is returned when a clinic is not found
	ErrClinicNotFound = errors.New("clinic not found")
)
