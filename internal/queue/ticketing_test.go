package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	counts map[VisitType]int
	err    error
}

func (f *fakeCounter) CountAppointments(ctx context.Context, clinicID string, date time.Time, visitType VisitType) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[visitType], nil
}

func TestNextWalkInTicket(t *testing.T) {
	counter := &fakeCounter{counts: map[VisitType]int{VisitWalkIn: 0}}
	got, err := NextWalkInTicket(context.Background(), counter, "1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "W-001" {
		t.Fatalf("expected W-001, got %s", got)
	}

	counter.counts[VisitWalkIn] = 41
	got, _ = NextWalkInTicket(context.Background(), counter, "1", time.Now())
	if got != "W-042" {
		t.Fatalf("expected W-042, got %s", got)
	}
}

func TestNextWalkInTicketCounterError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("boom")}
	if _, err := NextWalkInTicket(context.Background(), counter, "1", time.Now()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNextScheduledTicket(t *testing.T) {
	counter := &fakeCounter{counts: map[VisitType]int{"": 2}}
	got, err := NextScheduledTicket(context.Background(), counter, "1", "Dermatology", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "D-003" {
		t.Fatalf("expected D-003, got %s", got)
	}
}

func TestClinicInitial(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Dermatology", "D"},
		{"  ent", "E"},
		{"", "C"},
		{"   ", "C"},
	}
	for _, tc := range cases {
		if got := clinicInitial(tc.name); got != tc.want {
			t.Errorf("clinicInitial(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}
