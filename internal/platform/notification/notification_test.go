package notification

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr)
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()

	subject, body, err := e.Render(EventConfirmed, map[string]string{
		"patient_name": "Jane Cruz",
		"doctor":       "Dr. Reyes",
		"date":         "2024-06-10",
		"time":         "09:00 AM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Appointment Confirmed" {
		t.Errorf("unexpected subject: %q", subject)
	}
	if !strings.Contains(body, "Jane Cruz") || !strings.Contains(body, "09:00 AM") {
		t.Errorf("body not rendered: %q", body)
	}
}

func TestTemplateEngine_MissingKeysStripped(t *testing.T) {
	e := NewTemplateEngine()

	_, body, err := e.Render(EventCancelled, map[string]string{
		"patient_name": "Jane",
		"doctor":       "Dr. Reyes",
		"date":         "2024-06-10",
		"time":         "09:00 AM",
		// no "reason"
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unrendered placeholder left in body: %q", body)
	}
}

func TestTemplateEngine_UnknownEvent(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render(EventType("bogus"), nil); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestEmitter_DeliversEmail(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewEmitter(sender, nil, NewTemplateEngine(), testLogger())

	m.Emit(context.Background(), EventConfirmed, "", map[string]string{
		"email":        "jane@example.com",
		"patient_name": "Jane",
		"doctor":       "Dr. Reyes",
		"date":         "2024-06-10",
		"time":         "09:00 AM",
	})
	m.Wait()

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "jane@example.com" {
		t.Errorf("unexpected recipient: %q", calls[0].To)
	}

	stats := m.Stats()
	if stats["sent"] != 1 {
		t.Errorf("expected 1 sent record, got %v", stats)
	}
}

func TestEmitter_SkipsWithoutEmail(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewEmitter(sender, nil, NewTemplateEngine(), testLogger())

	m.Emit(context.Background(), EventConfirmed, "", map[string]string{
		"patient_name": "Walk-in",
	})
	m.Wait()

	if len(sender.Calls()) != 0 {
		t.Fatal("expected no delivery for payload without email")
	}
	if len(m.Records()) != 0 {
		t.Fatal("expected no record for skipped emission")
	}
}

func TestEmitter_FailureDoesNotPropagate(t *testing.T) {
	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	m := NewEmitter(sender, nil, NewTemplateEngine(), testLogger())

	// Emit has no error return; the failure must only show up in the records.
	m.Emit(context.Background(), EventCancelled, "", map[string]string{
		"email":        "jane@example.com",
		"patient_name": "Jane",
		"doctor":       "Dr. Reyes",
		"date":         "2024-06-10",
		"time":         "09:00 AM",
		"reason":       "clinic closure",
	})
	m.Wait()

	stats := m.Stats()
	if stats["failed"] != 1 {
		t.Errorf("expected 1 failed record, got %v", stats)
	}
}

func TestEmitter_MessageOverridesBody(t *testing.T) {
	sender := &MockEmailSender{}
	m := NewEmitter(sender, nil, NewTemplateEngine(), testLogger())

	m.Emit(context.Background(), EventCompleted, "custom message", map[string]string{
		"email": "jane@example.com",
	})
	m.Wait()

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].Body != "custom message" {
		t.Errorf("expected custom body, got %q", calls[0].Body)
	}
}

func TestEmitter_SendsSMSWhenPhonePresent(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	m := NewEmitter(email, sms, NewTemplateEngine(), testLogger())

	m.Emit(context.Background(), EventRescheduled, "", map[string]string{
		"email":        "jane@example.com",
		"phone":        "+15550100",
		"patient_name": "Jane",
		"doctor":       "Dr. Reyes",
		"date":         "2024-06-12",
		"time":         "10:30 AM",
	})
	m.Wait()

	if len(sms.Calls()) != 1 {
		t.Fatalf("expected 1 sms, got %d", len(sms.Calls()))
	}
	if sms.Calls()[0].To != "+15550100" {
		t.Errorf("unexpected sms recipient: %q", sms.Calls()[0].To)
	}
}
