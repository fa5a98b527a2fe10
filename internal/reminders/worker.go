// Package reminders sweeps upcoming appointments and sends one reminder per
// appointment ahead of its scheduled time.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-queue/internal/queue"
	"github.com/wolfman30/clinic-queue/pkg/logging"
)

// Store is the slice of the queue repository the worker needs.
type Store interface {
	ListDueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]queue.ReminderItem, error)
	MarkReminderSent(ctx context.Context, appointmentID string) error
}

// Sender delivers one reminder.
type Sender interface {
	NotifyReminder(ctx context.Context, appt queue.Appointment, patient queue.Patient) error
}

// Worker sends pending appointment reminders. It touches only the reminder
// flag, never queue entries, so it runs without the engine's clinic locks.
type Worker struct {
	store     Store
	sender    Sender
	lookahead time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewWorker creates a reminder worker. A zero lookahead defaults to 24h.
func NewWorker(store Store, sender Sender, lookahead time.Duration, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if lookahead <= 0 {
		lookahead = 24 * time.Hour
	}
	return &Worker{
		store:     store,
		sender:    sender,
		lookahead: lookahead,
		logger:    logger.With("component", "reminders"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDue finds appointments entering the reminder window and sends their
// reminders. The flag is only set after a successful send, so a failed
// delivery is retried on the next sweep. Returns the number sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.store.ListDueReminders(ctx, now, w.lookahead)
	if err != nil {
		return 0, fmt.Errorf("reminders: list due: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	w.logger.Info("processing due reminders", "count", len(due))

	sent := 0
	for i := range due {
		item := &due[i]
		if err := w.processOne(ctx, item); err != nil {
			w.logger.Error("reminder failed",
				"appointment_id", item.Appointment.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (w *Worker) processOne(ctx context.Context, item *queue.ReminderItem) error {
	if err := w.sender.NotifyReminder(ctx, item.Appointment, item.Patient); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if err := w.store.MarkReminderSent(ctx, item.Appointment.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	w.logger.Info("reminder sent",
		"appointment_id", item.Appointment.ID, "ticket", item.Appointment.TicketCode)
	return nil
}

// Run sweeps on the interval until the context is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("reminder worker started", "interval", interval, "lookahead", w.lookahead)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("reminder sweep failed", "error", err)
			}
		}
	}
}
