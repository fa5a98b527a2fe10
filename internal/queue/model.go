// Package queue implements the per-clinic service queue: ticket issuance,
// check-in, the entry state machine, and the snapshots pushed to viewers.
package queue

import "time"

// VisitType distinguishes scheduled bookings from walk-ins.
type VisitType string

const (
	VisitScheduled VisitType = "scheduled"
	VisitWalkIn    VisitType = "walk_in"
)

// AppointmentStatus values. Transitions only move forward along
// booked -> checked_in -> {completed|no_show}, or to cancelled at any
// point before completion.
type AppointmentStatus string

const (
	ApptBooked    AppointmentStatus = "booked"
	ApptCheckedIn AppointmentStatus = "checked_in"
	ApptCompleted AppointmentStatus = "completed"
	ApptCancelled AppointmentStatus = "cancelled"
	ApptNoShow    AppointmentStatus = "no_show"
)

// EntryStatus values for a queue entry.
type EntryStatus string

const (
	StatusWaiting EntryStatus = "waiting"
	StatusServing EntryStatus = "serving"
	StatusDone    EntryStatus = "done"
	StatusNoShow  EntryStatus = "no_show"
)

// allowedFrom maps an engine action to the entry statuses it may start from.
var allowedFrom = map[string][]EntryStatus{
	"call_next": {StatusWaiting},
	"complete":  {StatusServing},
	"no_show":   {StatusWaiting, StatusServing},
}

// ValidTransition reports whether action is legal from the given status.
func ValidTransition(action string, from EntryStatus) bool {
	allowed, ok := allowedFrom[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// Patient is created once per unique file number; walk-ins get a synthetic
// file number.
type Patient struct {
	ID         string    `json:"id"`
	FileNumber string    `json:"file_number"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone,omitempty"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Appointment links a patient to a clinic visit. The ticket code is assigned
// at creation and never changes.
type Appointment struct {
	ID           string            `json:"id"`
	PatientID    string            `json:"patient_id"`
	ClinicID     string            `json:"clinic_id"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	Status       AppointmentStatus `json:"status"`
	TicketCode   string            `json:"ticket_code"`
	VisitType    VisitType         `json:"visit_type"`
	NotifySMS    bool              `json:"notify_sms"`
	NotifyEmail  bool              `json:"notify_email"`
	ReminderSent bool              `json:"reminder_sent"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// QueueEntry is created exactly once per check-in. Clinic, ticket, and
// arrival fields are immutable afterwards; only status, the service
// timestamps, notified_next, doctor reference, and notes mutate.
type QueueEntry struct {
	ID            string      `json:"id"`
	AppointmentID string      `json:"appointment_id,omitempty"`
	ClinicID      string      `json:"clinic_id"`
	TicketNumber  string      `json:"ticket_number"`
	Status        EntryStatus `json:"status"`
	PatientName   string      `json:"patient_name"`
	ArrivedAt     time.Time   `json:"arrived_at"`
	ServiceStart  *time.Time  `json:"service_start_time,omitempty"`
	ServiceEnd    *time.Time  `json:"service_end_time,omitempty"`
	NotifiedNext  bool        `json:"notified_next"`
	DoctorID      string      `json:"doctor_id,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

// Active reports whether the entry still occupies the queue.
func (e *QueueEntry) Active() bool {
	return e.Status == StatusWaiting || e.Status == StatusServing
}

// WaitMinutesPerPatient is the fixed per-patient service-time assumption used
// for the estimated wait, not a learned estimate.
const WaitMinutesPerPatient = 15

// Snapshot is the computed view of a clinic's queue pushed to subscribers.
type Snapshot struct {
	Queue          []QueueEntry `json:"queue"`
	CurrentServing *QueueEntry  `json:"currentServing"`
	TotalWaiting   int          `json:"totalWaiting"`
	WaitTime       int          `json:"waitTime"` // minutes
}
