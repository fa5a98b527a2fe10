package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/clinic-queue/internal/clinic"
)

// Repository is the durable store behind the engine. It applies no business
// rules; the engine is the sole mutator of entry status and its derived
// timestamps.
type Repository interface {
	GetClinic(ctx context.Context, id string) (*clinic.Clinic, error)
	GetSettings(ctx context.Context) (*clinic.Settings, error)

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id string) (*Patient, error)
	GetPatientByFileNumber(ctx context.Context, fileNumber string) (*Patient, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointment(ctx context.Context, id string) (*Appointment, error)
	GetAppointmentByTicket(ctx context.Context, ticketCode string) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) error
	CountAppointments(ctx context.Context, clinicID string, date time.Time, visitType VisitType) (int, error)

	CreateQueueEntry(ctx context.Context, e *QueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*QueueEntry, error)
	UpdateQueueEntry(ctx context.Context, e *QueueEntry) error
	// GetActiveQueue returns entries that are waiting or serving, in
	// arrival order.
	GetActiveQueue(ctx context.Context, clinicID string) ([]QueueEntry, error)

	CompletedByDoctorSince(ctx context.Context, since time.Time) ([]DoctorCount, error)

	// ListDueReminders returns booked appointments scheduled within the
	// lookahead window whose reminder has not been sent, paired with
	// their patient's contact details.
	ListDueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]ReminderItem, error)
	MarkReminderSent(ctx context.Context, appointmentID string) error
}

// ReminderItem pairs an appointment with its patient for the reminder sweep.
type ReminderItem struct {
	Appointment Appointment
	Patient     Patient
}

// InMemoryRepository keeps all state in maps; clinics and settings are
// delegated to the clinic repository so admin edits are visible here.
type InMemoryRepository struct {
	clinics clinic.Repository

	mu           sync.RWMutex
	patients     map[string]*Patient
	appointments map[string]*Appointment
	entries      map[string]*QueueEntry
	entryOrder   []string // ids in creation order
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository(clinics clinic.Repository) *InMemoryRepository {
	return &InMemoryRepository{
		clinics:      clinics,
		patients:     make(map[string]*Patient),
		appointments: make(map[string]*Appointment),
		entries:      make(map[string]*QueueEntry),
	}
}

// GetClinic resolves a clinic via the clinic repository.
func (r *InMemoryRepository) GetClinic(ctx context.Context, id string) (*clinic.Clinic, error) {
	c, err := r.clinics.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, clinic.ErrClinicNotFound) {
			return nil, &NotFoundError{Resource: "clinic", ID: id}
		}
		return nil, err
	}
	return c, nil
}

// GetSettings returns the site settings.
func (r *InMemoryRepository) GetSettings(ctx context.Context) (*clinic.Settings, error) {
	return r.clinics.GetSettings(ctx)
}

// CreatePatient stores a patient.
func (r *InMemoryRepository) CreatePatient(ctx context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.patients[p.ID] = &copied
	return nil
}

// GetPatient fetches a patient by id.
func (r *InMemoryRepository) GetPatient(ctx context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, &NotFoundError{Resource: "patient", ID: id}
	}
	copied := *p
	return &copied, nil
}

// GetPatientByFileNumber resolves a patient by their clinic file number.
func (r *InMemoryRepository) GetPatientByFileNumber(ctx context.Context, fileNumber string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patients {
		if p.FileNumber == fileNumber {
			copied := *p
			return &copied, nil
		}
	}
	return nil, &NotFoundError{Resource: "patient", ID: fileNumber}
}

// CreateAppointment stores an appointment.
func (r *InMemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.appointments[a.ID] = &copied
	return nil
}

// GetAppointment fetches an appointment by id.
func (r *InMemoryRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment", ID: id}
	}
	copied := *a
	return &copied, nil
}

// GetAppointmentByTicket resolves an appointment by its ticket code.
func (r *InMemoryRepository) GetAppointmentByTicket(ctx context.Context, ticketCode string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.appointments {
		if a.TicketCode == ticketCode {
			copied := *a
			return &copied, nil
		}
	}
	return nil, &NotFoundError{Resource: "ticket", ID: ticketCode}
}

// UpdateAppointment replaces a stored appointment.
func (r *InMemoryRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[a.ID]; !ok {
		return &NotFoundError{Resource: "appointment", ID: a.ID}
	}
	copied := *a
	r.appointments[a.ID] = &copied
	return nil
}

// CountAppointments counts same-calendar-day appointments for the clinic.
func (r *InMemoryRepository) CountAppointments(ctx context.Context, clinicID string, date time.Time, visitType VisitType) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, a := range r.appointments {
		if a.ClinicID != clinicID {
			continue
		}
		if visitType != "" && a.VisitType != visitType {
			continue
		}
		if sameDay(a.CreatedAt, date) {
			count++
		}
	}
	return count, nil
}

// CreateQueueEntry stores a queue entry, preserving creation order.
func (r *InMemoryRepository) CreateQueueEntry(ctx context.Context, e *QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *e
	r.entries[e.ID] = &copied
	r.entryOrder = append(r.entryOrder, e.ID)
	return nil
}

// GetQueueEntry fetches an entry by id.
func (r *InMemoryRepository) GetQueueEntry(ctx context.Context, id string) (*QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, &NotFoundError{Resource: "queue entry", ID: id}
	}
	copied := *e
	return &copied, nil
}

// UpdateQueueEntry replaces a stored entry.
func (r *InMemoryRepository) UpdateQueueEntry(ctx context.Context, e *QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ID]; !ok {
		return &NotFoundError{Resource: "queue entry", ID: e.ID}
	}
	copied := *e
	r.entries[e.ID] = &copied
	return nil
}

// GetActiveQueue returns waiting/serving entries in arrival order.
func (r *InMemoryRepository) GetActiveQueue(ctx context.Context, clinicID string) ([]QueueEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []QueueEntry
	for _, id := range r.entryOrder {
		e := r.entries[id]
		if e.ClinicID == clinicID && e.Active() {
			out = append(out, *e)
		}
	}
	return out, nil
}

// CompletedByDoctorSince aggregates done entries by doctor.
func (r *InMemoryRepository) CompletedByDoctorSince(ctx context.Context, since time.Time) ([]DoctorCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range r.entries {
		if e.Status != StatusDone || e.DoctorID == "" || e.ServiceEnd == nil {
			continue
		}
		if e.ServiceEnd.Before(since) {
			continue
		}
		counts[e.DoctorID]++
	}
	return sortedDoctorCounts(counts), nil
}

// ListDueReminders finds booked appointments inside the lookahead window.
func (r *InMemoryRepository) ListDueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]ReminderItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ReminderItem
	cutoff := now.Add(lookahead)
	for _, a := range r.appointments {
		if a.Status != ApptBooked || a.ReminderSent {
			continue
		}
		if a.ScheduledAt.Before(now) || a.ScheduledAt.After(cutoff) {
			continue
		}
		p, ok := r.patients[a.PatientID]
		if !ok {
			continue
		}
		out = append(out, ReminderItem{Appointment: *a, Patient: *p})
	}
	return out, nil
}

// MarkReminderSent flips the reminder flag only.
func (r *InMemoryRepository) MarkReminderSent(ctx context.Context, appointmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[appointmentID]
	if !ok {
		return &NotFoundError{Resource: "appointment", ID: appointmentID}
	}
	a.ReminderSent = true
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var _ Repository = (*InMemoryRepository)(nil)
