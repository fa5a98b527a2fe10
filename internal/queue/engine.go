package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-queue/internal/observability/metrics"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

var tracer = otel.Tracer("clinicqueue.internal.queue")

// Broadcaster pushes fresh snapshots to subscribed viewers. Implementations
// must not block; failures are the broadcaster's problem, never the engine's.
type Broadcaster interface {
	Publish(clinicID string, snap *Snapshot)
	PublishGlobal()
}

// Notifier alerts patients. Implementations dispatch asynchronously and
// swallow delivery failures.
type Notifier interface {
	// NotifyNext tells the first waiting patient they are next in line.
	NotifyNext(appt Appointment, patient Patient, entry QueueEntry)
	// NotifyTurn tells a patient their service is starting.
	NotifyTurn(appt Appointment, patient Patient, entry QueueEntry)
}

// Engine owns the per-clinic queue state machine. All read-modify-write
// sequences for one clinic run under that clinic's lock, so check-ins, staff
// actions, ticket issuance, and the pre-notify scan never interleave.
// Different clinics proceed in parallel.
type Engine struct {
	repo     Repository
	hub      Broadcaster
	notifier Notifier
	logger   *logging.Logger
	metrics  *metrics.QueueMetrics
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine wires the engine. hub, notifier, and queueMetrics may be nil.
func NewEngine(repo Repository, hub Broadcaster, notifier Notifier, logger *logging.Logger, queueMetrics *metrics.QueueMetrics) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		repo:     repo,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		metrics:  queueMetrics,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetBroadcaster attaches the hub after construction; the hub needs the
// engine as its snapshot source, so the two are wired in stages.
func (e *Engine) SetBroadcaster(hub Broadcaster) {
	e.hub = hub
}

// lockClinic acquires the clinic's serialization lock and returns the unlock.
func (e *Engine) lockClinic(clinicID string) func() {
	e.mu.Lock()
	l, ok := e.locks[clinicID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[clinicID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// CheckInRequest is a staff-assisted or walk-in check-in.
type CheckInRequest struct {
	AppointmentID string `json:"appointment_id,omitempty"`
	ClinicID      string `json:"clinic_id"`
	TicketNumber  string `json:"ticket_number,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
}

// SelfCheckIn is a patient self-check-in by ticket code, optionally gated by
// the geofence when coordinates were supplied.
type SelfCheckInRequest struct {
	TicketCode string   `json:"ticket_code"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
}

// CompleteRequest carries the completion details.
type CompleteRequest struct {
	DoctorID  string `json:"doctor_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`
}

// BookAppointmentRequest registers a scheduled appointment and issues its
// ticket code. Booking itself (slot selection) happens upstream; this is the
// intake point that assigns the ticket.
type BookAppointmentRequest struct {
	ClinicID    string    `json:"clinic_id"`
	FileNumber  string    `json:"file_number"`
	PatientName string    `json:"patient_name"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	NotifySMS   bool      `json:"notify_sms"`
	NotifyEmail bool      `json:"notify_email"`
}

// CheckIn creates a waiting queue entry. Without an appointment id the
// action is a walk-in: a ticket is issued, a throwaway patient and a
// walk_in appointment (already checked_in) are created and linked.
func (e *Engine) CheckIn(ctx context.Context, req CheckInRequest) (*QueueEntry, error) {
	ctx, span := tracer.Start(ctx, "queue.check_in")
	defer span.End()
	span.SetAttributes(attribute.String("clinic_id", req.ClinicID))

	if strings.TrimSpace(req.ClinicID) == "" {
		return nil, &ValidationError{Field: "clinic_id", Reason: "required"}
	}
	clinicRec, err := e.repo.GetClinic(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockClinic(req.ClinicID)
	defer unlock()

	if req.AppointmentID == "" {
		return e.admitWalkIn(ctx, req)
	}

	appt, err := e.repo.GetAppointment(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.ClinicID != clinicRec.ID {
		return nil, &ValidationError{Field: "appointment_id", Reason: "appointment belongs to a different clinic"}
	}
	if appt.Status != ApptBooked {
		return nil, &ConflictError{Reason: fmt.Sprintf("appointment is already %s", appt.Status)}
	}

	entry, err := e.admitAppointment(ctx, appt, req.TicketNumber, req.PatientName)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveCheckIn("scheduled")
	return entry, nil
}

// SelfCheckIn resolves the appointment by ticket code, applies the geofence
// when configured and coordinates were supplied, then checks the patient in.
func (e *Engine) SelfCheckIn(ctx context.Context, req SelfCheckInRequest) (*QueueEntry, error) {
	ctx, span := tracer.Start(ctx, "queue.self_check_in")
	defer span.End()

	if strings.TrimSpace(req.TicketCode) == "" {
		return nil, &ValidationError{Field: "ticket_code", Reason: "required"}
	}

	appt, err := e.repo.GetAppointmentByTicket(ctx, req.TicketCode)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic_id", appt.ClinicID))
	if appt.Status != ApptBooked {
		return nil, &ConflictError{Reason: fmt.Sprintf("ticket %s is already %s", req.TicketCode, appt.Status)}
	}

	settings, err := e.repo.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: load settings: %w", err)
	}
	// The check is skipped when no hospital location is configured, and when
	// the caller omitted coordinates (permissive default, not a security
	// boundary).
	if settings.HospitalLocationSet() && req.Lat != nil && req.Lon != nil {
		dist := DistanceKm(*req.Lat, *req.Lon, *settings.HospitalLat, *settings.HospitalLon)
		if dist > settings.GeofenceRadiusKm {
			return nil, &ForbiddenError{DistanceKm: dist, RadiusKm: settings.GeofenceRadiusKm}
		}
	}

	unlock := e.lockClinic(appt.ClinicID)
	defer unlock()

	// Re-read under the lock: a staff check-in may have raced us.
	appt, err = e.repo.GetAppointment(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if appt.Status != ApptBooked {
		return nil, &ConflictError{Reason: fmt.Sprintf("ticket %s is already %s", req.TicketCode, appt.Status)}
	}

	entry, err := e.admitAppointment(ctx, appt, "", "")
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveCheckIn("self")
	return entry, nil
}

// admitWalkIn issues a ticket, creates patient + walk_in appointment, and
// enqueues the entry. Caller holds the clinic lock.
func (e *Engine) admitWalkIn(ctx context.Context, req CheckInRequest) (*QueueEntry, error) {
	now := e.now()

	ticket := strings.TrimSpace(req.TicketNumber)
	if ticket == "" {
		var err error
		ticket, err = NextWalkInTicket(ctx, e.repo, req.ClinicID, now)
		if err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		name = "Walk-in " + ticket
	}

	patient := &Patient{
		ID:         uuid.New().String(),
		FileNumber: syntheticFileNumber(now),
		FullName:   name,
		CreatedAt:  now,
	}
	if err := e.repo.CreatePatient(ctx, patient); err != nil {
		return nil, fmt.Errorf("queue: create walk-in patient: %w", err)
	}

	appt := &Appointment{
		ID:          uuid.New().String(),
		PatientID:   patient.ID,
		ClinicID:    req.ClinicID,
		ScheduledAt: now,
		Status:      ApptCheckedIn,
		TicketCode:  ticket,
		VisitType:   VisitWalkIn,
		CreatedAt:   now,
	}
	if err := e.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("queue: create walk-in appointment: %w", err)
	}

	entry := &QueueEntry{
		ID:            uuid.New().String(),
		AppointmentID: appt.ID,
		ClinicID:      req.ClinicID,
		TicketNumber:  ticket,
		Status:        StatusWaiting,
		PatientName:   name,
		ArrivedAt:     now,
	}
	if err := e.repo.CreateQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("queue: create entry: %w", err)
	}

	e.metrics.ObserveCheckIn("walk_in")
	e.logger.Info("walk-in checked in", "clinic_id", req.ClinicID, "ticket", ticket)

	e.preNotifyNext(ctx, req.ClinicID)
	e.broadcast(ctx, req.ClinicID)
	return entry, nil
}

// admitAppointment flips the appointment to checked_in and enqueues it.
// Caller holds the clinic lock and has verified the appointment is booked.
func (e *Engine) admitAppointment(ctx context.Context, appt *Appointment, ticketOverride, nameOverride string) (*QueueEntry, error) {
	now := e.now()

	appt.Status = ApptCheckedIn
	if err := e.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("queue: update appointment: %w", err)
	}

	ticket := strings.TrimSpace(ticketOverride)
	if ticket == "" {
		ticket = appt.TicketCode
	}

	name := strings.TrimSpace(nameOverride)
	if name == "" {
		if p, err := e.repo.GetPatient(ctx, appt.PatientID); err == nil {
			name = p.FullName
		}
	}

	entry := &QueueEntry{
		ID:            uuid.New().String(),
		AppointmentID: appt.ID,
		ClinicID:      appt.ClinicID,
		TicketNumber:  ticket,
		Status:        StatusWaiting,
		PatientName:   name,
		ArrivedAt:     now,
	}
	if err := e.repo.CreateQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("queue: create entry: %w", err)
	}

	e.logger.Info("appointment checked in", "clinic_id", appt.ClinicID, "ticket", ticket)

	e.preNotifyNext(ctx, appt.ClinicID)
	e.broadcast(ctx, appt.ClinicID)
	return entry, nil
}

// CallNext moves a waiting entry to serving and stamps the start time. A
// clinic with an entry already in service rejects the call: staff must
// complete or no-show the current patient first.
func (e *Engine) CallNext(ctx context.Context, entryID, doctorID string) (*QueueEntry, error) {
	ctx, span := tracer.Start(ctx, "queue.call_next")
	defer span.End()

	entry, err := e.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic_id", entry.ClinicID))

	unlock := e.lockClinic(entry.ClinicID)
	defer unlock()

	entry, err = e.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !ValidTransition("call_next", entry.Status) {
		e.metrics.ObserveTransition("call_next", "conflict")
		return nil, &ConflictError{Reason: fmt.Sprintf("cannot call a %s entry", entry.Status)}
	}

	active, err := e.repo.GetActiveQueue(ctx, entry.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("queue: load active queue: %w", err)
	}
	for i := range active {
		if active[i].Status == StatusServing {
			e.metrics.ObserveTransition("call_next", "conflict")
			return nil, &ConflictError{Reason: fmt.Sprintf("clinic already serving ticket %s", active[i].TicketNumber)}
		}
	}

	now := e.now()
	entry.Status = StatusServing
	entry.ServiceStart = &now
	if doctorID != "" {
		entry.DoctorID = doctorID
	}
	if err := e.repo.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("queue: persist entry: %w", err)
	}
	e.metrics.ObserveTransition("call_next", "ok")
	e.logger.Info("patient called", "clinic_id", entry.ClinicID, "ticket", entry.TicketNumber, "doctor_id", doctorID)

	e.notifyTurn(ctx, entry)
	e.preNotifyNext(ctx, entry.ClinicID)
	e.broadcast(ctx, entry.ClinicID)
	return entry, nil
}

// Complete moves a serving entry to done, stamps the end time, and records
// the doctor. Doctor notes are copied to both the entry and the linked
// appointment; the appointment itself moves to completed.
func (e *Engine) Complete(ctx context.Context, entryID string, req CompleteRequest) (*QueueEntry, error) {
	ctx, span := tracer.Start(ctx, "queue.complete")
	defer span.End()

	entry, err := e.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic_id", entry.ClinicID))

	unlock := e.lockClinic(entry.ClinicID)
	defer unlock()

	entry, err = e.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !ValidTransition("complete", entry.Status) {
		e.metrics.ObserveTransition("complete", "conflict")
		return nil, &ConflictError{Reason: fmt.Sprintf("cannot complete a %s entry", entry.Status)}
	}

	now := e.now()
	entry.Status = StatusDone
	entry.ServiceEnd = &now
	if req.DoctorID != "" {
		entry.DoctorID = req.DoctorID
	}
	doctorNotes := req.ActorRole == "doctor" && strings.TrimSpace(req.Notes) != ""
	if doctorNotes {
		entry.Notes = req.Notes
	}
	if err := e.repo.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("queue: persist entry: %w", err)
	}

	if entry.AppointmentID != "" {
		appt, err := e.repo.GetAppointment(ctx, entry.AppointmentID)
		if err == nil {
			appt.Status = ApptCompleted
			if doctorNotes {
				appt.Notes = req.Notes
			}
			if err := e.repo.UpdateAppointment(ctx, appt); err != nil {
				return nil, fmt.Errorf("queue: propagate completion: %w", err)
			}
		}
	}

	e.metrics.ObserveTransition("complete", "ok")
	e.logger.Info("service completed", "clinic_id", entry.ClinicID, "ticket", entry.TicketNumber, "doctor_id", entry.DoctorID)

	e.preNotifyNext(ctx, entry.ClinicID)
	e.broadcast(ctx, entry.ClinicID)
	return entry, nil
}

// MarkNoShow moves a waiting or serving entry to no_show. Calling it again
// on an entry already in no_show is a no-op returning the terminal entry.
func (e *Engine) MarkNoShow(ctx context.Context, entryID string) (*QueueEntry, error) {
	ctx, span := tracer.Start(ctx, "queue.mark_no_show")
	defer span.End()

	entry, err := e.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic_id", entry.ClinicID))

	unlock := e.lockClinic(entry.ClinicID)
	defer unlock()

	entry, err = e.repo.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == StatusNoShow {
		return entry, nil
	}
	if !ValidTransition("no_show", entry.Status) {
		e.metrics.ObserveTransition("no_show", "conflict")
		return nil, &ConflictError{Reason: fmt.Sprintf("cannot no-show a %s entry", entry.Status)}
	}

	entry.Status = StatusNoShow
	if err := e.repo.UpdateQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("queue: persist entry: %w", err)
	}

	if entry.AppointmentID != "" {
		appt, err := e.repo.GetAppointment(ctx, entry.AppointmentID)
		if err == nil {
			appt.Status = ApptNoShow
			if err := e.repo.UpdateAppointment(ctx, appt); err != nil {
				return nil, fmt.Errorf("queue: propagate no-show: %w", err)
			}
		}
	}

	e.metrics.ObserveTransition("no_show", "ok")
	e.logger.Info("patient marked no-show", "clinic_id", entry.ClinicID, "ticket", entry.TicketNumber)

	e.preNotifyNext(ctx, entry.ClinicID)
	e.broadcast(ctx, entry.ClinicID)
	return entry, nil
}

// BookAppointment registers a scheduled appointment, reusing the patient by
// file number and issuing the clinic-day ticket code.
func (e *Engine) BookAppointment(ctx context.Context, req BookAppointmentRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "queue.book_appointment")
	defer span.End()
	span.SetAttributes(attribute.String("clinic_id", req.ClinicID))

	if strings.TrimSpace(req.ClinicID) == "" {
		return nil, &ValidationError{Field: "clinic_id", Reason: "required"}
	}
	if strings.TrimSpace(req.PatientName) == "" {
		return nil, &ValidationError{Field: "patient_name", Reason: "required"}
	}
	if strings.TrimSpace(req.FileNumber) == "" {
		return nil, &ValidationError{Field: "file_number", Reason: "required"}
	}
	clinicRec, err := e.repo.GetClinic(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}

	unlock := e.lockClinic(req.ClinicID)
	defer unlock()

	now := e.now()
	patient, err := e.repo.GetPatientByFileNumber(ctx, req.FileNumber)
	if err != nil {
		patient = &Patient{
			ID:         uuid.New().String(),
			FileNumber: req.FileNumber,
			FullName:   req.PatientName,
			Phone:      req.Phone,
			Email:      req.Email,
			CreatedAt:  now,
		}
		if err := e.repo.CreatePatient(ctx, patient); err != nil {
			return nil, fmt.Errorf("queue: create patient: %w", err)
		}
	}

	ticket, err := NextScheduledTicket(ctx, e.repo, req.ClinicID, clinicRec.Name, now)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:          uuid.New().String(),
		PatientID:   patient.ID,
		ClinicID:    req.ClinicID,
		ScheduledAt: req.ScheduledAt,
		Status:      ApptBooked,
		TicketCode:  ticket,
		VisitType:   VisitScheduled,
		NotifySMS:   req.NotifySMS,
		NotifyEmail: req.NotifyEmail,
		CreatedAt:   now,
	}
	if err := e.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("queue: create appointment: %w", err)
	}

	e.logger.Info("appointment booked", "clinic_id", req.ClinicID, "ticket", ticket)
	return appt, nil
}

// GetClinicSnapshot computes the current view of a clinic's queue.
func (e *Engine) GetClinicSnapshot(ctx context.Context, clinicID string) (*Snapshot, error) {
	if _, err := e.repo.GetClinic(ctx, clinicID); err != nil {
		return nil, err
	}
	return e.snapshot(ctx, clinicID)
}

// DoctorStats aggregates completed visits per doctor for the range.
func (e *Engine) DoctorStats(ctx context.Context, r StatsRange, asOf time.Time) ([]DoctorCount, error) {
	return DoctorStats(ctx, e.repo, r, asOf)
}

func (e *Engine) snapshot(ctx context.Context, clinicID string) (*Snapshot, error) {
	active, err := e.repo.GetActiveQueue(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("queue: load active queue: %w", err)
	}
	snap := &Snapshot{
		Queue:    active,
		WaitTime: len(active) * WaitMinutesPerPatient,
	}
	if snap.Queue == nil {
		snap.Queue = []QueueEntry{}
	}
	for i := range active {
		switch active[i].Status {
		case StatusServing:
			serving := active[i]
			snap.CurrentServing = &serving
		case StatusWaiting:
			snap.TotalWaiting++
		}
	}
	return snap, nil
}

// preNotifyNext finds the first waiting, un-notified entry and alerts its
// patient. The flag is persisted before the (async) send, so each entry is
// notified at most once. Caller holds the clinic lock.
func (e *Engine) preNotifyNext(ctx context.Context, clinicID string) {
	active, err := e.repo.GetActiveQueue(ctx, clinicID)
	if err != nil {
		e.logger.Error("pre-notify scan failed", "error", err, "clinic_id", clinicID)
		return
	}

	var next *QueueEntry
	for i := range active {
		if active[i].Status == StatusWaiting && !active[i].NotifiedNext {
			next = &active[i]
			break
		}
	}
	if next == nil || next.AppointmentID == "" {
		return
	}

	appt, err := e.repo.GetAppointment(ctx, next.AppointmentID)
	if err != nil {
		return
	}
	patient, err := e.repo.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return
	}
	smsReady := appt.NotifySMS && patient.Phone != ""
	emailReady := appt.NotifyEmail && patient.Email != ""
	if !smsReady && !emailReady {
		return
	}

	next.NotifiedNext = true
	if err := e.repo.UpdateQueueEntry(ctx, next); err != nil {
		e.logger.Error("pre-notify flag persist failed", "error", err, "entry_id", next.ID)
		return
	}
	if e.notifier != nil {
		e.notifier.NotifyNext(*appt, *patient, *next)
	}
}

// notifyTurn alerts the patient whose service is starting. Best-effort.
func (e *Engine) notifyTurn(ctx context.Context, entry *QueueEntry) {
	if e.notifier == nil || entry.AppointmentID == "" {
		return
	}
	appt, err := e.repo.GetAppointment(ctx, entry.AppointmentID)
	if err != nil {
		return
	}
	patient, err := e.repo.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return
	}
	e.notifier.NotifyTurn(*appt, *patient, *entry)
}

// broadcast publishes a snapshot computed from committed state. Runs under
// the clinic lock so delivery order matches mutation order.
func (e *Engine) broadcast(ctx context.Context, clinicID string) {
	if e.hub == nil {
		return
	}
	snap, err := e.snapshot(ctx, clinicID)
	if err != nil {
		e.logger.Error("snapshot for broadcast failed", "error", err, "clinic_id", clinicID)
		return
	}
	e.hub.Publish(clinicID, snap)
	e.hub.PublishGlobal()
}

func syntheticFileNumber(now time.Time) string {
	return "WI-" + now.Format("20060102") + "-" + uuid.New().String()[:8]
}
