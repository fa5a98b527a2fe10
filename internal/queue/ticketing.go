package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// AppointmentCounter counts same-day appointments for a clinic, optionally
// filtered by visit type (empty means all).
type AppointmentCounter interface {
	CountAppointments(ctx context.Context, clinicID string, date time.Time, visitType VisitType) (int, error)
}

// NextWalkInTicket derives the next walk-in ticket for the clinic on the
// given date: "W-" plus a 3-digit sequence over that day's walk-ins.
//
// The sequence is recomputed from current counts at issuance time, so two
// concurrent issuances could read the same count. The engine closes that
// race on a single node by issuing inside the per-clinic lock; cross-node
// uniqueness would need a database sequence instead.
func NextWalkInTicket(ctx context.Context, counter AppointmentCounter, clinicID string, asOf time.Time) (string, error) {
	n, err := counter.CountAppointments(ctx, clinicID, asOf, VisitWalkIn)
	if err != nil {
		return "", fmt.Errorf("ticketing: count walk-ins: %w", err)
	}
	return fmt.Sprintf("W-%03d", n+1), nil
}

// NextScheduledTicket derives the ticket code for a scheduled booking:
// the clinic name's first letter plus 1 + the count of that day's
// appointments, independent of walk-in counting.
func NextScheduledTicket(ctx context.Context, counter AppointmentCounter, clinicID, clinicName string, asOf time.Time) (string, error) {
	n, err := counter.CountAppointments(ctx, clinicID, asOf, "")
	if err != nil {
		return "", fmt.Errorf("ticketing: count appointments: %w", err)
	}
	return fmt.Sprintf("%s-%03d", clinicInitial(clinicName), n+1), nil
}

func clinicInitial(name string) string {
	name = strings.TrimSpace(name)
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "C"
}
