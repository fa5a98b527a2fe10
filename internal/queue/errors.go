package queue

import "fmt"

// NotFoundError indicates a clinic, appointment, ticket, or queue entry
// could not be resolved.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError indicates the requested transition is not legal from the
// current state (ticket already checked in, double-serving, and so on).
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// ForbiddenError indicates a geofence violation. It carries the computed
// distance and the allowed radius so callers can surface both.
type ForbiddenError struct {
	DistanceKm float64
	RadiusKm   float64
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("outside allowed radius: %.2f km away, limit %.2f km", e.DistanceKm, e.RadiusKm)
}

// ValidationError indicates a missing required field or malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
