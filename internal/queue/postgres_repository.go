package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-queue/internal/clinic"
)

// queueDB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type queueDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients, appointments, and queue entries in the
// relational database. Clinic and settings reads are delegated to the clinic
// repository so there is a single source of SQL for those tables.
type PostgresRepository struct {
	db      queueDB
	clinics clinic.Repository
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool, clinics clinic.Repository) *PostgresRepository {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &PostgresRepository{db: pool, clinics: clinics}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db queueDB, clinics clinic.Repository) *PostgresRepository {
	return &PostgresRepository{db: db, clinics: clinics}
}

// GetClinic resolves a clinic via the clinic repository.
func (r *PostgresRepository) GetClinic(ctx context.Context, id string) (*clinic.Clinic, error) {
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
func (r *PostgresRepository) GetSettings(ctx context.Context) (*clinic.Settings, error) {
	return r.clinics.GetSettings(ctx)
}

// CreatePatient inserts a patient row.
func (r *PostgresRepository) CreatePatient(ctx context.Context, p *Patient) error {
	query := `
		INSERT INTO patients (id, file_number, full_name, phone, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.Exec(ctx, query, p.ID, p.FileNumber, p.FullName, p.Phone, p.Email, p.CreatedAt); err != nil {
		return fmt.Errorf("queue: insert patient: %w", err)
	}
	return nil
}

const patientColumns = `id, file_number, full_name, phone, email, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FileNumber, &p.FullName, &p.Phone, &p.Email, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPatient fetches a patient by id.
func (r *PostgresRepository) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "patient", ID: id}
		}
		return nil, fmt.Errorf("queue: select patient: %w", err)
	}
	return p, nil
}

// GetPatientByFileNumber resolves a patient by their clinic file number.
func (r *PostgresRepository) GetPatientByFileNumber(ctx context.Context, fileNumber string) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE file_number = $1`, fileNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "patient", ID: fileNumber}
		}
		return nil, fmt.Errorf("queue: select patient by file number: %w", err)
	}
	return p, nil
}

const appointmentColumns = `id, patient_id, clinic_id, scheduled_at, status, ticket_code,
	visit_type, notify_sms, notify_email, reminder_sent, notes, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.ClinicID, &a.ScheduledAt, &a.Status, &a.TicketCode,
		&a.VisitType, &a.NotifySMS, &a.NotifyEmail, &a.ReminderSent, &a.Notes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAppointment inserts an appointment row.
func (r *PostgresRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (id, patient_id, clinic_id, scheduled_at, status, ticket_code,
			visit_type, notify_sms, notify_email, reminder_sent, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		a.ID, a.PatientID, a.ClinicID, a.ScheduledAt, a.Status, a.TicketCode,
		a.VisitType, a.NotifySMS, a.NotifyEmail, a.ReminderSent, a.Notes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("queue: insert appointment: %w", err)
	}
	return nil
}

// GetAppointment fetches an appointment by id.
func (r *PostgresRepository) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "appointment", ID: id}
		}
		return nil, fmt.Errorf("queue: select appointment: %w", err)
	}
	return a, nil
}

// GetAppointmentByTicket resolves an appointment by its ticket code.
func (r *PostgresRepository) GetAppointmentByTicket(ctx context.Context, ticketCode string) (*Appointment, error) {
	// Ticket codes repeat across days; the most recent issue wins.
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ticket_code = $1 ORDER BY created_at DESC LIMIT 1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, ticketCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "ticket", ID: ticketCode}
		}
		return nil, fmt.Errorf("queue: select appointment by ticket: %w", err)
	}
	return a, nil
}

// UpdateAppointment replaces the mutable appointment fields.
func (r *PostgresRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	query := `
		UPDATE appointments
		SET status = $2, notify_sms = $3, notify_email = $4, reminder_sent = $5, notes = $6
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, a.ID, a.Status, a.NotifySMS, a.NotifyEmail, a.ReminderSent, a.Notes)
	if err != nil {
		return fmt.Errorf("queue: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "appointment", ID: a.ID}
	}
	return nil
}

// CountAppointments counts same-calendar-day appointments for the clinic,
// optionally filtered by visit type (empty means all).
func (r *PostgresRepository) CountAppointments(ctx context.Context, clinicID string, date time.Time, visitType VisitType) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE clinic_id = $1
		  AND created_at::date = $2::date
		  AND ($3 = '' OR visit_type = $3)
	`
	var n int
	if err := r.db.QueryRow(ctx, query, clinicID, date, string(visitType)).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count appointments: %w", err)
	}
	return n, nil
}

const entryColumns = `id, appointment_id, clinic_id, ticket_number, status, patient_name,
	arrived_at, service_start_time, service_end_time, notified_next, doctor_id, notes`

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	err := row.Scan(
		&e.ID, &e.AppointmentID, &e.ClinicID, &e.TicketNumber, &e.Status, &e.PatientName,
		&e.ArrivedAt, &e.ServiceStart, &e.ServiceEnd, &e.NotifiedNext, &e.DoctorID, &e.Notes,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateQueueEntry inserts a queue entry row.
func (r *PostgresRepository) CreateQueueEntry(ctx context.Context, e *QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, appointment_id, clinic_id, ticket_number, status, patient_name,
			arrived_at, service_start_time, service_end_time, notified_next, doctor_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.AppointmentID, e.ClinicID, e.TicketNumber, e.Status, e.PatientName,
		e.ArrivedAt, e.ServiceStart, e.ServiceEnd, e.NotifiedNext, e.DoctorID, e.Notes,
	)
	if err != nil {
		return fmt.Errorf("queue: insert entry: %w", err)
	}
	return nil
}

// GetQueueEntry fetches an entry by id.
func (r *PostgresRepository) GetQueueEntry(ctx context.Context, id string) (*QueueEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "queue entry", ID: id}
		}
		return nil, fmt.Errorf("queue: select entry: %w", err)
	}
	return e, nil
}

// UpdateQueueEntry replaces the mutable entry fields.
func (r *PostgresRepository) UpdateQueueEntry(ctx context.Context, e *QueueEntry) error {
	query := `
		UPDATE queue_entries
		SET status = $2, service_start_time = $3, service_end_time = $4,
			notified_next = $5, doctor_id = $6, notes = $7
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, e.ID, e.Status, e.ServiceStart, e.ServiceEnd, e.NotifiedNext, e.DoctorID, e.Notes)
	if err != nil {
		return fmt.Errorf("queue: update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "queue entry", ID: e.ID}
	}
	return nil
}

// GetActiveQueue returns waiting/serving entries in arrival order.
func (r *PostgresRepository) GetActiveQueue(ctx context.Context, clinicID string) ([]QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE clinic_id = $1 AND status IN ('waiting', 'serving')
		ORDER BY arrived_at, id
	`
	rows, err := r.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("queue: select active queue: %w", err)
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CompletedByDoctorSince aggregates done entries by doctor.
func (r *PostgresRepository) CompletedByDoctorSince(ctx context.Context, since time.Time) ([]DoctorCount, error) {
	query := `
		SELECT doctor_id, COUNT(*)
		FROM queue_entries
		WHERE status = 'done' AND doctor_id <> '' AND service_end_time >= $1
		GROUP BY doctor_id
		ORDER BY COUNT(*) DESC, doctor_id
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("queue: doctor stats: %w", err)
	}
	defer rows.Close()

	var out []DoctorCount
	for rows.Next() {
		var dc DoctorCount
		if err := rows.Scan(&dc.DoctorID, &dc.Completed); err != nil {
			return nil, fmt.Errorf("queue: scan doctor stats: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// ListDueReminders finds booked, un-reminded appointments inside the
// lookahead window, joined with their patient.
func (r *PostgresRepository) ListDueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]ReminderItem, error) {
	query := `
		SELECT a.id, a.patient_id, a.clinic_id, a.scheduled_at, a.status, a.ticket_code,
			a.visit_type, a.notify_sms, a.notify_email, a.reminder_sent, a.notes, a.created_at,
			p.id, p.file_number, p.full_name, p.phone, p.email, p.created_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'booked'
		  AND NOT a.reminder_sent
		  AND a.scheduled_at >= $1
		  AND a.scheduled_at <= $2
		ORDER BY a.scheduled_at
	`
	rows, err := r.db.Query(ctx, query, now, now.Add(lookahead))
	if err != nil {
		return nil, fmt.Errorf("queue: list due reminders: %w", err)
	}
	defer rows.Close()

	var out []ReminderItem
	for rows.Next() {
		var item ReminderItem
		a := &item.Appointment
		p := &item.Patient
		err := rows.Scan(
			&a.ID, &a.PatientID, &a.ClinicID, &a.ScheduledAt, &a.Status, &a.TicketCode,
			&a.VisitType, &a.NotifySMS, &a.NotifyEmail, &a.ReminderSent, &a.Notes, &a.CreatedAt,
			&p.ID, &p.FileNumber, &p.FullName, &p.Phone, &p.Email, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("queue: scan reminder: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkReminderSent flips the reminder flag only.
func (r *PostgresRepository) MarkReminderSent(ctx context.Context, appointmentID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET reminder_sent = TRUE WHERE id = $1`, appointmentID)
	if err != nil {
		return fmt.Errorf("queue: mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "appointment", ID: appointmentID}
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
