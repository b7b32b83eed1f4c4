package appointment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/schedule"
	"github.com/clinic/clinic/internal/platform/notification"
)

type memRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	seq   int
}

func newApptRepo() *memRepo {
	return &memRepo{appts: map[uuid.UUID]*Appointment{}}
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a.ID = uuid.New()
	a.AppointmentNumber = "APT-TEST-" + string(rune('0'+m.seq))
	a.CreatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.PatientID != nil && *a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) ListByDoctorDate(_ context.Context, doctorName, date string) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.DoctorName == doctorName && a.Date == date {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, _ := schedule.ParseClock(out[i].Time)
		tj, _ := schedule.ParseClock(out[j].Time)
		return ti.Before(tj)
	})
	return out, nil
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memRepo) SlotTaken(_ context.Context, doctorName, date, clock string, statuses []string, excludeID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.ID == excludeID {
			continue
		}
		if a.DoctorName == doctorName && a.Date == date && a.Time == clock && statusIn(a.Status, statuses) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) OccupiedTimes(_ context.Context, doctorName, date string, statuses []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range m.appts {
		if a.DoctorName == doctorName && a.Date == date && statusIn(a.Status, statuses) && !seen[a.Time] {
			seen[a.Time] = true
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (m *memRepo) HasActiveOnOrAfter(_ context.Context, patientID uuid.UUID, fromDate string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.PatientID != nil && *a.PatientID == patientID && a.Date >= fromDate && statusIn(a.Status, ActiveStatuses) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) UpdateConfirmed(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.appts {
		if other.ID == a.ID {
			continue
		}
		if other.DoctorName == a.DoctorName && other.Date == a.Date && other.Time == a.Time && other.Status == StatusConfirmed {
			return ErrSlotTaken
		}
	}
	if _, ok := m.appts[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

type memPatients struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*patient.Patient
	limit    int
}

func newMemPatients() *memPatients {
	return &memPatients{patients: map[uuid.UUID]*patient.Patient{}, limit: 3}
}

func (m *memPatients) add(locked bool, count int) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	email := id.String() + "@example.com"
	m.patients[id] = &patient.Patient{
		ID: id, FirstName: "Ana", LastName: "Cruz",
		Email: &email, PatientType: patient.TypePediatric, Status: patient.StatusNew,
		NoShowCount: count, AppointmentLocked: locked,
	}
	return id
}

func (m *memPatients) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPatients) FindOrCreateByEmail(_ context.Context, in patient.CreateInput) (*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.Email != nil && in.Email != nil && strings.EqualFold(*p.Email, *in.Email) {
			cp := *p
			return &cp, nil
		}
	}
	p := &patient.Patient{
		ID: uuid.New(), FirstName: in.FirstName, LastName: in.LastName,
		Email: in.Email, Phone: in.Phone, PatientType: in.PatientType,
		Status: patient.StatusNew,
	}
	m.patients[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memPatients) Activate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.patients[id]; ok && p.Status == patient.StatusNew {
		p.Status = patient.StatusActive
	}
	return nil
}

func (m *memPatients) RecordNoShow(_ context.Context, id uuid.UUID) (*patient.StrikeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	p.NoShowCount++
	if p.NoShowCount >= m.limit {
		p.AppointmentLocked = true
	}
	return &patient.StrikeState{NoShowCount: p.NoShowCount, AppointmentLocked: p.AppointmentLocked}, nil
}

// fakeHours treats every date as open 09:00 AM through 05:00 PM.
type fakeHours struct{}

func (fakeHours) SlotsForDate(_ context.Context, _, _ string) ([]string, error) {
	start, _ := schedule.ParseClock("09:00 AM")
	end, _ := schedule.ParseClock("05:00 PM")
	return schedule.ExpandSlots(start, end, 30), nil
}

func (f fakeHours) IsWithinHours(ctx context.Context, doctorName, date, clock string) (bool, error) {
	slots, _ := f.SlotsForDate(ctx, doctorName, date)
	for _, s := range slots {
		if s == clock {
			return true, nil
		}
	}
	return false, nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	patients *memPatients
	notifier *notification.Emitter
	email    *notification.MockEmailSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newApptRepo()
	patients := newMemPatients()
	email := &notification.MockEmailSender{}
	notifier := notification.NewEmitter(email, nil, notification.NewTemplateEngine(), zerolog.Nop())
	svc := NewService(repo, patients, fakeHours{}, notifier, 2*time.Hour, zerolog.Nop())
	// Pin the clock well before the slots the tests book.
	svc.now = func() time.Time {
		return time.Date(2026, 9, 1, 8, 0, 0, 0, time.Local)
	}
	return &fixture{svc: svc, repo: repo, patients: patients, notifier: notifier, email: email}
}

func staffBooking(t *testing.T, f *fixture, clock string) *Appointment {
	t.Helper()
	pid := f.patients.add(false, 0)
	a, err := f.svc.CreateStaff(context.Background(), CreateInput{
		PatientID:   pid,
		DoctorType:  schedule.DoctorPediatrician,
		DoctorName:  "Dr. Reyes",
		ServiceType: "vaccination",
		Date:        "2026-09-14",
		Time:        clock,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return a
}

func portalBooking(t *testing.T, f *fixture, email, clock string) *Appointment {
	t.Helper()
	a, err := f.svc.BookPortal(context.Background(), PortalInput{
		FirstName:   "Ana",
		LastName:    "Cruz",
		Email:       email,
		DoctorType:  schedule.DoctorPediatrician,
		DoctorName:  "Dr. Reyes",
		ServiceType: "sick visit",
		Date:        "2026-09-14",
		Time:        clock,
	})
	if err != nil {
		t.Fatalf("portal booking: %v", err)
	}
	return a
}

func TestDoctorDayListsChronologically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// "01:00 PM" sorts before "09:00 AM" as text; the listing must use
	// clock order instead.
	staffBooking(t, f, "01:00 PM")
	staffBooking(t, f, "09:00 AM")
	staffBooking(t, f, "10:30 AM")

	appts, err := f.svc.ListByDoctorDate(ctx, "Dr. Reyes", "2026-09-14")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"09:00 AM", "10:30 AM", "01:00 PM"}
	if len(appts) != len(want) {
		t.Fatalf("listed %d appointments, want %d", len(appts), len(want))
	}
	for i, a := range appts {
		if a.Time != want[i] {
			t.Errorf("position %d: got %q, want %q", i, a.Time, want[i])
		}
	}
}

func TestDoubleScheduleToleratedUntilConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := staffBooking(t, f, "09:00 AM")
	b := staffBooking(t, f, "09:00 AM") // same slot, still allowed

	if _, err := f.svc.Confirm(ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, b.ID, "staff-1"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("second confirm: expected slot conflict, got %v", err)
	}

	got, _ := f.svc.Get(ctx, b.ID)
	if got.Status != StatusScheduled {
		t.Errorf("loser's status = %q, want untouched scheduled", got.Status)
	}
}

func TestConfirmedSlotBlocksNewBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := staffBooking(t, f, "10:00 AM")
	if _, err := f.svc.Confirm(ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	pid := f.patients.add(false, 0)
	_, err := f.svc.CreateStaff(ctx, CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-14", Time: "10:00 AM",
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
}

func TestBookingOutsideHoursRefused(t *testing.T) {
	f := newFixture(t)
	pid := f.patients.add(false, 0)
	_, err := f.svc.CreateStaff(context.Background(), CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-14", Time: "07:00 AM",
	})
	if !errors.Is(err, ErrOutsideHours) {
		t.Fatalf("expected outside-hours error, got %v", err)
	}
}

func TestLockedPatientRefusedWithCount(t *testing.T) {
	f := newFixture(t)
	pid := f.patients.add(true, 3)
	_, err := f.svc.CreateStaff(context.Background(), CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-14", Time: "09:00 AM",
	})
	if !errors.Is(err, ErrPatientLocked) {
		t.Fatalf("expected lock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "3") {
		t.Errorf("count not surfaced in %q", err.Error())
	}
}

func TestPortalSecondBookingBlockedWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := portalBooking(t, f, "ana@example.com", "09:00 AM")

	_, err := f.svc.BookPortal(ctx, PortalInput{
		FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com",
		DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "sick visit", Date: "2026-09-21", Time: "09:00 AM",
	})
	if !errors.Is(err, ErrBookingLimit) {
		t.Fatalf("expected booking limit error, got %v", err)
	}

	// A resolved appointment frees the account.
	if _, err := f.svc.Cancel(ctx, first.ID, "staff-1", "patient called"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.BookPortal(ctx, PortalInput{
		FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com",
		DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "sick visit", Date: "2026-09-21", Time: "09:00 AM",
	}); err != nil {
		t.Fatalf("booking after resolution: %v", err)
	}
}

func TestNoShowStrikesAccumulateAndLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pid := f.patients.add(false, 2)

	a, err := f.svc.CreateStaff(ctx, CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-14", Time: "11:00 AM",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.MarkNoShow(ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("no-show: %v", err)
	}

	p, _ := f.patients.Get(ctx, pid)
	if p.NoShowCount != 3 || !p.AppointmentLocked {
		t.Fatalf("after third strike: count=%d locked=%v", p.NoShowCount, p.AppointmentLocked)
	}

	// Resubmitting the same appointment must not add a fourth strike.
	if _, err := f.svc.MarkNoShow(ctx, a.ID, "staff-1"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("resubmit: expected wrong-state error, got %v", err)
	}
	p, _ = f.patients.Get(ctx, pid)
	if p.NoShowCount != 3 {
		t.Errorf("count = %d after resubmit, want 3", p.NoShowCount)
	}

	// And the locked patient cannot book again.
	_, err = f.svc.CreateStaff(ctx, CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-21", Time: "09:00 AM",
	})
	if !errors.Is(err, ErrPatientLocked) {
		t.Errorf("expected lock error, got %v", err)
	}
}

func TestReschedulePendingOccupiesProposedSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := portalBooking(t, f, "ana@example.com", "09:00 AM")
	if _, err := f.svc.Reschedule(ctx, a.ID, "staff-1", "2026-09-14", "02:00 PM", "doctor away"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	// Another patient racing for the proposed slot is turned away.
	pid := f.patients.add(false, 0)
	_, err := f.svc.CreateStaff(ctx, CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-14", Time: "02:00 PM",
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected slot conflict on the proposed slot, got %v", err)
	}
}

func TestRescheduleRoundTripThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := portalBooking(t, f, "ana@example.com", "09:00 AM")
	if _, err := f.svc.Confirm(ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := f.svc.Reschedule(ctx, a.ID, "staff-1", "2026-09-14", "03:00 PM", "doctor away"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	got, err := f.svc.AcceptReschedule(ctx, a.ID, "patient-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != StatusConfirmed || got.Date != "2026-09-14" || got.Time != "03:00 PM" {
		t.Errorf("after accept: %s %s %s, want confirmed at the proposed slot", got.Status, got.Date, got.Time)
	}
	if got.RescheduledFrom == nil || got.RescheduledFrom.Time != "09:00 AM" {
		t.Error("rescheduled_from should hold the prior slot")
	}
}

func TestAvailabilityHidesHeldSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	staffBooking(t, f, "09:00 AM")
	b := staffBooking(t, f, "09:30 AM")
	if _, err := f.svc.Confirm(ctx, b.ID, "staff-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	slots, err := f.svc.AvailableSlots(ctx, "Dr. Reyes", "2026-09-14")
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	for _, s := range slots {
		if s == "09:00 AM" || s == "09:30 AM" {
			t.Errorf("slot %s should be hidden", s)
		}
	}
	if len(slots) == 0 {
		t.Error("expected the remaining slots to stay open")
	}
}

func TestTransitionsEmitNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := portalBooking(t, f, "ana@example.com", "09:00 AM")
	if _, err := f.svc.Confirm(ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.notifier.Wait()

	calls := f.email.Calls()
	if len(calls) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(calls))
	}
	if calls[0].To != "ana@example.com" {
		t.Errorf("recipient = %q", calls[0].To)
	}
}

func TestNotificationSkippedWithoutEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pid := f.patients.add(false, 0)
	f.patients.mu.Lock()
	f.patients.patients[pid].Email = nil
	f.patients.mu.Unlock()

	a, err := f.svc.CreateStaff(ctx, CreateInput{
		PatientID: pid, DoctorType: schedule.DoctorPediatrician, DoctorName: "Dr. Reyes",
		ServiceType: "vaccination", Date: "2026-09-14", Time: "09:00 AM",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Confirm(ctx, a.ID, "staff-1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.notifier.Wait()

	if got := len(f.email.Calls()); got != 0 {
		t.Errorf("emails sent = %d, want 0", got)
	}
}
