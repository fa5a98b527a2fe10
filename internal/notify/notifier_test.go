package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/clinic-queue/internal/queue"
)

type mockSMS struct {
	sent []struct{ to, body string }
	err  error
}

func (m *mockSMS) SendSMS(ctx context.Context, to, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, struct{ to, body string }{to, body})
	return nil
}

type mockEmail struct {
	sent []EmailMessage
	err  error
}

func (m *mockEmail) Send(ctx context.Context, msg EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newInlineNotifier(sms *mockSMS, email *mockEmail) *Notifier {
	n := NewNotifier(sms, email, nil, nil)
	n.dispatch = func(f func()) { f() }
	return n
}

func patientWith(phone, email string) queue.Patient {
	return queue.Patient{ID: "p1", FileNumber: "F-1", FullName: "Alice", Phone: phone, Email: email}
}

func TestNotifyNextHonorsChannelPreferences(t *testing.T) {
	sms := &mockSMS{}
	email := &mockEmail{}
	n := newInlineNotifier(sms, email)

	appt := queue.Appointment{ID: "a1", NotifySMS: true, NotifyEmail: false}
	entry := queue.QueueEntry{ID: "e1", TicketNumber: "D-001"}

	n.NotifyNext(appt, patientWith("+100", "alice@example.com"), entry)

	if len(sms.sent) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(sms.sent))
	}
	if !strings.Contains(sms.sent[0].body, "D-001") {
		t.Fatalf("SMS should carry the ticket: %q", sms.sent[0].body)
	}
	if len(email.sent) != 0 {
		t.Fatalf("email preference disabled, got %d emails", len(email.sent))
	}
}

func TestNotifyTurnSendsBothChannels(t *testing.T) {
	sms := &mockSMS{}
	email := &mockEmail{}
	n := newInlineNotifier(sms, email)

	appt := queue.Appointment{ID: "a1", NotifySMS: true, NotifyEmail: true}
	entry := queue.QueueEntry{ID: "e1", TicketNumber: "W-002"}

	n.NotifyTurn(appt, patientWith("+100", "alice@example.com"), entry)

	if len(sms.sent) != 1 || len(email.sent) != 1 {
		t.Fatalf("expected both channels, got sms=%d email=%d", len(sms.sent), len(email.sent))
	}
	if email.sent[0].To != "alice@example.com" {
		t.Fatalf("wrong recipient: %s", email.sent[0].To)
	}
}

func TestNotifySkipsMissingContact(t *testing.T) {
	sms := &mockSMS{}
	email := &mockEmail{}
	n := newInlineNotifier(sms, email)

	appt := queue.Appointment{ID: "a1", NotifySMS: true, NotifyEmail: true}
	n.NotifyNext(appt, patientWith("", ""), queue.QueueEntry{TicketNumber: "D-001"})

	if len(sms.sent) != 0 || len(email.sent) != 0 {
		t.Fatal("nothing should be sent without contact details")
	}
}

func TestNotifyDeliveryFailureDoesNotPanic(t *testing.T) {
	sms := &mockSMS{err: errors.New("provider down")}
	n := newInlineNotifier(sms, &mockEmail{})

	appt := queue.Appointment{ID: "a1", NotifySMS: true}
	n.NotifyTurn(appt, patientWith("+100", ""), queue.QueueEntry{TicketNumber: "D-001"})
	// Failure is swallowed; nothing to assert beyond not panicking.
}

func TestNotifyReminderReturnsSendError(t *testing.T) {
	sms := &mockSMS{err: errors.New("provider down")}
	n := newInlineNotifier(sms, &mockEmail{})

	appt := queue.Appointment{
		ID:          "a1",
		NotifySMS:   true,
		TicketCode:  "D-004",
		ScheduledAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
	if err := n.NotifyReminder(context.Background(), appt, patientWith("+100", "")); err == nil {
		t.Fatal("expected the delivery error to propagate")
	}
}

func TestNotifyReminderBody(t *testing.T) {
	sms := &mockSMS{}
	n := newInlineNotifier(sms, &mockEmail{})

	appt := queue.Appointment{
		ID:          "a1",
		NotifySMS:   true,
		TicketCode:  "D-004",
		ScheduledAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
	if err := n.NotifyReminder(context.Background(), appt, patientWith("+100", "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Fatalf("expected 1 SMS, got %d", len(sms.sent))
	}
	body := sms.sent[0].body
	if !strings.Contains(body, "D-004") || !strings.Contains(body, "Saturday, August 29") {
		t.Fatalf("unexpected reminder body: %q", body)
	}
}
