package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-queue/internal/observability/metrics"
	"github.com/wolfman30/clinic-queue/internal/queue"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

// sendTimeout bounds each outbound delivery attempt.
const sendTimeout = 10 * time.Second

// Notifier fans queue events out to patients over their enabled channels.
// All sends are dispatched off the caller's goroutine and failures are
// logged, never returned: a dead SMS provider must not block a check-in.
type Notifier struct {
	sms     SMSSender
	email   EmailSender
	logger  *logging.Logger
	metrics *metrics.QueueMetrics

	// dispatch runs a send. Tests replace it to run inline.
	dispatch func(func())
}

// NewNotifier creates a notifier. Either sender may be nil, disabling that
// channel.
func NewNotifier(sms SMSSender, email EmailSender, logger *logging.Logger, queueMetrics *metrics.QueueMetrics) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Notifier{
		sms:      sms,
		email:    email,
		logger:   logger,
		metrics:  queueMetrics,
		dispatch: func(f func()) { go f() },
	}
}

// NotifyNext tells the first waiting patient they are next in line.
func (n *Notifier) NotifyNext(appt queue.Appointment, patient queue.Patient, entry queue.QueueEntry) {
	sms := fmt.Sprintf("You're next in line at the clinic. Ticket %s. Please be ready.", entry.TicketNumber)
	subject := "You're almost up"
	body := fmt.Sprintf("You're next in line.\n\nTicket: %s\n\nPlease be ready; staff will call you shortly.", entry.TicketNumber)
	n.send(appt, patient, sms, subject, body)
}

// NotifyTurn tells a patient their service is starting.
func (n *Notifier) NotifyTurn(appt queue.Appointment, patient queue.Patient, entry queue.QueueEntry) {
	sms := fmt.Sprintf("It's your turn now. Ticket %s. Please proceed to the consultation room.", entry.TicketNumber)
	subject := "It's your turn"
	body := fmt.Sprintf("It's your turn now.\n\nTicket: %s\n\nPlease proceed to the consultation room.", entry.TicketNumber)
	n.send(appt, patient, sms, subject, body)
}

// NotifyReminder sends the upcoming-appointment reminder. Unlike the queue
// events this one is synchronous; the reminder worker already runs off the
// request path and wants the error to decide whether to mark the reminder.
func (n *Notifier) NotifyReminder(ctx context.Context, appt queue.Appointment, patient queue.Patient) error {
	when := appt.ScheduledAt.Format("Monday, January 2 at 3:04 PM")
	sms := fmt.Sprintf("Reminder: you have an appointment on %s. Ticket %s.", when, appt.TicketCode)
	subject := "Appointment reminder"
	body := fmt.Sprintf("This is a reminder of your upcoming appointment.\n\nWhen: %s\nTicket: %s\n\nSee you soon.", when, appt.TicketCode)

	var firstErr error
	if appt.NotifySMS && patient.Phone != "" && n.sms != nil {
		if err := n.sendSMS(ctx, patient.Phone, sms); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if appt.NotifyEmail && patient.Email != "" && n.email != nil {
		if err := n.sendEmail(ctx, patient, subject, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// send delivers over every enabled channel, asynchronously, best-effort.
func (n *Notifier) send(appt queue.Appointment, patient queue.Patient, smsBody, subject, emailBody string) {
	if appt.NotifySMS && patient.Phone != "" && n.sms != nil {
		phone := patient.Phone
		n.dispatch(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			_ = n.sendSMS(ctx, phone, smsBody)
		})
	}
	if appt.NotifyEmail && patient.Email != "" && n.email != nil {
		p := patient
		n.dispatch(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			_ = n.sendEmail(ctx, p, subject, emailBody)
		})
	}
}

func (n *Notifier) sendSMS(ctx context.Context, phone, body string) error {
	if err := n.sms.SendSMS(ctx, phone, body); err != nil {
		n.metrics.ObserveNotification("sms", "failed")
		n.logger.Error("patient SMS failed", "error", err, "to", phone)
		return err
	}
	n.metrics.ObserveNotification("sms", "sent")
	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, patient queue.Patient, subject, body string) error {
	msg := EmailMessage{
		To:      patient.Email,
		ToName:  patient.FullName,
		Subject: subject,
		Body:    body,
	}
	if err := n.email.Send(ctx, msg); err != nil {
		n.metrics.ObserveNotification("email", "failed")
		n.logger.Error("patient email failed", "error", err, "to", patient.Email)
		return err
	}
	n.metrics.ObserveNotification("email", "sent")
	return nil
}

var _ queue.Notifier = (*Notifier)(nil)
