// Package notification delivers patient-facing appointment event messages over
// email or SMS. Delivery is strictly best-effort: emission never blocks the
// state transition that triggered it and failures are logged, not returned.
package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType tags a patient-visible appointment transition.
type EventType string

const (
	EventConfirmed             EventType = "appointment.confirmed"
	EventCancelled             EventType = "appointment.cancelled"
	EventRescheduled           EventType = "appointment.rescheduled"
	EventCompleted             EventType = "appointment.completed"
	EventNoShow                EventType = "appointment.no_show"
	EventCancellationRequested EventType = "appointment.cancellation_requested"
	EventCancellationResolved  EventType = "appointment.cancellation_resolved"
	EventRescheduleRequested   EventType = "appointment.reschedule_requested"
	EventRescheduleResolved    EventType = "appointment.reschedule_resolved"
)

// Notifier is the sink consumed by the appointment lifecycle. Emit returns
// immediately; delivery happens asynchronously and is never retried.
type Notifier interface {
	Emit(ctx context.Context, event EventType, message string, payload map[string]string)
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	Event   EventType
	Subject string
	Body    string
}

// TemplateEngine renders event templates with {{key}} substitution.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventType]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in appointment
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[EventType]*Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			Event:   EventConfirmed,
			Subject: "Appointment Confirmed",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor}} on {{date}} at {{time}} is confirmed.",
		},
		{
			Event:   EventCancelled,
			Subject: "Appointment Cancelled",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor}} on {{date}} at {{time}} has been cancelled. {{reason}}",
		},
		{
			Event:   EventRescheduled,
			Subject: "Appointment Rescheduled",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor}} has been moved to {{date}} at {{time}}.",
		},
		{
			Event:   EventCompleted,
			Subject: "Visit Complete",
			Body:    "Dear {{patient_name}}, thank you for visiting. Your appointment with {{doctor}} on {{date}} is complete.",
		},
		{
			Event:   EventNoShow,
			Subject: "Missed Appointment",
			Body:    "Dear {{patient_name}}, you missed your appointment with {{doctor}} on {{date}} at {{time}}. Please contact the clinic to rebook.",
		},
		{
			Event:   EventCancellationRequested,
			Subject: "Cancellation Request Received",
			Body:    "Dear {{patient_name}}, we received your cancellation request for {{date}} at {{time}}. The clinic will review it shortly.",
		},
		{
			Event:   EventCancellationResolved,
			Subject: "Cancellation Request {{decision}}",
			Body:    "Dear {{patient_name}}, your cancellation request for {{date}} at {{time}} was {{decision}}. {{notes}}",
		},
		{
			Event:   EventRescheduleRequested,
			Subject: "Reschedule Proposed",
			Body:    "Dear {{patient_name}}, the clinic proposed moving your appointment to {{proposed_date}} at {{proposed_time}}. Please accept or decline in the patient portal.",
		},
		{
			Event:   EventRescheduleResolved,
			Subject: "Reschedule {{decision}}",
			Body:    "Dear {{patient_name}}, the reschedule of your appointment was {{decision}}. It now stands at {{date}} {{time}} with {{doctor}}.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.Event] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Event] = &t
}

// Render looks up a template by event and performs {{key}} replacement using
// the supplied data map. Keys present in the template but absent from data are
// replaced with the empty string.
func (e *TemplateEngine) Render(event EventType, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[event]
	e.mu.RUnlock()
	if !ok {
		return "", "", errors.New("no template for event " + string(event))
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	subject = stripPlaceholders(subject)
	body = stripPlaceholders(body)
	return strings.TrimSpace(subject), strings.TrimSpace(body), nil
}

func stripPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}

// Record is the stored outcome of a single emission.
type Record struct {
	ID        string            `json:"id"`
	Event     EventType         `json:"event"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Payload   map[string]string `json:"payload,omitempty"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
}

// Emitter is the production Notifier. It renders templates, dispatches to the
// email sender on a goroutine, and keeps an in-memory record of outcomes for
// the staff notifications view.
type Emitter struct {
	sender    EmailSender
	sms       SMSSender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu      sync.RWMutex
	records map[string]*Record
	wg      sync.WaitGroup
}

// NewEmitter constructs an Emitter.
func NewEmitter(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Emitter {
	return &Emitter{
		sender:    email,
		sms:       sms,
		templates: tpl,
		logger:    logger,
		records:   make(map[string]*Record),
	}
}

// Emit renders and dispatches the event asynchronously. The payload must carry
// "email" (the recipient); emission is silently skipped when it is absent,
// which is the case for appointments with no linked portal account. The
// message argument overrides the template body when non-empty.
func (m *Emitter) Emit(ctx context.Context, event EventType, message string, payload map[string]string) {
	recipient := payload["email"]
	if recipient == "" {
		return
	}

	subject, body, err := m.templates.Render(event, payload)
	if err != nil {
		m.logger.Warn().Str("event", string(event)).Err(err).Msg("notification template missing")
		return
	}
	if message != "" {
		body = message
	}

	rec := &Record{
		ID:        uuid.New().String(),
		Event:     event,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Payload:   payload,
		Status:    "pending",
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	m.records[rec.ID] = rec
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Detach from the request context: the transition must not be able
		// to cancel delivery, and delivery must not block the transition.
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := m.sender.SendEmail(sendCtx, recipient, subject, body)
		if err == nil && m.sms != nil && payload["phone"] != "" {
			// SMS is a secondary channel; its failure is folded into the log
			// only.
			if smsErr := m.sms.SendSMS(sendCtx, payload["phone"], body); smsErr != nil {
				m.logger.Warn().Str("event", string(event)).Err(smsErr).Msg("sms delivery failed")
			}
		}

		m.mu.Lock()
		if err != nil {
			rec.Status = "failed"
			rec.Error = err.Error()
		} else {
			rec.Status = "sent"
			sentAt := time.Now().UTC()
			rec.SentAt = &sentAt
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Warn().
				Str("event", string(event)).
				Str("recipient", recipient).
				Err(err).
				Msg("notification delivery failed")
		}
	}()
}

// Wait blocks until all in-flight deliveries finish. Used by tests and by
// server shutdown.
func (m *Emitter) Wait() {
	m.wg.Wait()
}

// Records returns a copy of all stored delivery records.
func (m *Emitter) Records() []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Stats returns delivery counts grouped by status.
func (m *Emitter) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, r := range m.records {
		stats[r.Status]++
	}
	return stats
}
