package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/schedule"
	"github.com/clinic/clinic/internal/platform/notification"
)

// PatientDirectory is the slice of the patient service the lifecycle
// engine consumes.
type PatientDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	FindOrCreateByEmail(ctx context.Context, in patient.CreateInput) (*patient.Patient, error)
	Activate(ctx context.Context, id uuid.UUID) error
	RecordNoShow(ctx context.Context, id uuid.UUID) (*patient.StrikeState, error)
}

// HoursProvider answers whether a slot sits inside a doctor's published
// hours.
type HoursProvider interface {
	IsWithinHours(ctx context.Context, doctorName, date, clock string) (bool, error)
	SlotsForDate(ctx context.Context, doctorName, date string) ([]string, error)
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	hours    HoursProvider
	notifier notification.Notifier
	cutoff   time.Duration
	logger   zerolog.Logger

	now func() time.Time
}

func NewService(repo Repository, patients PatientDirectory, hours HoursProvider,
	notifier notification.Notifier, cutoff time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		hours:    hours,
		notifier: notifier,
		cutoff:   cutoff,
		logger:   logger.With().Str("component", "appointment").Logger(),
		now:      time.Now,
	}
}

type CreateInput struct {
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorType  string    `json:"doctor_type"`
	DoctorName  string    `json:"doctor_name"`
	ServiceType string    `json:"service_type"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
}

type PortalInput struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	DoctorType  string  `json:"doctor_type"`
	DoctorName  string  `json:"doctor_name"`
	ServiceType string  `json:"service_type"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
}

func validateBooking(doctorType, doctorName, serviceType, date, clock string) error {
	if strings.TrimSpace(doctorName) == "" {
		return fmt.Errorf("%w: doctor_name is required", ErrValidation)
	}
	if _, ok := ServiceTypes[doctorType]; !ok {
		return fmt.Errorf("%w: doctor_type must be %q or %q", ErrValidation,
			schedule.DoctorPediatrician, schedule.DoctorOBGyne)
	}
	if !ValidService(doctorType, serviceType) {
		return fmt.Errorf("%w: service %q is not offered by a %s", ErrValidation, serviceType, doctorType)
	}
	if _, err := schedule.ParseDate(date); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := schedule.ParseClock(clock); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// checkSlot verifies the slot sits inside the doctor's hours and is not
// held by a busy appointment other than excludeID.
func (s *Service) checkSlot(ctx context.Context, doctorName, date, clock string, excludeID uuid.UUID) error {
	ok, err := s.hours.IsWithinHours(ctx, doctorName, date, clock)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s has no %s slot on %s", ErrOutsideHours, doctorName, clock, date)
	}
	taken, err := s.repo.SlotTaken(ctx, doctorName, date, clock, BusyStatuses, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s %s with %s", ErrSlotTaken, date, clock, doctorName)
	}
	return nil
}

func (s *Service) checkLock(p *patient.Patient) error {
	if p.AppointmentLocked {
		return fmt.Errorf("%w: %d recorded no-shows", ErrPatientLocked, p.NoShowCount)
	}
	return nil
}

// CreateStaff books an appointment on behalf of an existing patient.
func (s *Service) CreateStaff(ctx context.Context, in CreateInput) (*Appointment, error) {
	if err := validateBooking(in.DoctorType, in.DoctorName, in.ServiceType, in.Date, in.Time); err != nil {
		return nil, err
	}
	p, err := s.patients.Get(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLock(p); err != nil {
		return nil, err
	}
	if err := s.checkSlot(ctx, in.DoctorName, in.Date, in.Time, uuid.Nil); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:     &p.ID,
		PatientName:   p.FullName(),
		PatientEmail:  p.Email,
		PatientPhone:  p.Phone,
		DoctorType:    in.DoctorType,
		DoctorName:    in.DoctorName,
		ServiceType:   in.ServiceType,
		Date:          in.Date,
		Time:          in.Time,
		Status:        StatusScheduled,
		BookingSource: SourceStaff,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return a, nil
}

// BookPortal books through the patient portal, lazily creating the
// patient record keyed by email.
func (s *Service) BookPortal(ctx context.Context, in PortalInput) (*Appointment, error) {
	if err := validateBooking(in.DoctorType, in.DoctorName, in.ServiceType, in.Date, in.Time); err != nil {
		return nil, err
	}
	if in.Email == "" {
		return nil, fmt.Errorf("%w: email is required for portal bookings", ErrValidation)
	}

	patientType := patient.TypePediatric
	if in.DoctorType == schedule.DoctorOBGyne {
		patientType = patient.TypeOBGyne
	}
	p, err := s.patients.FindOrCreateByEmail(ctx, patient.CreateInput{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       &in.Email,
		Phone:       in.Phone,
		PatientType: patientType,
	})
	if err != nil {
		return nil, err
	}
	if err := s.checkLock(p); err != nil {
		return nil, err
	}

	today := s.now().Format(schedule.DateLayout)
	active, err := s.repo.HasActiveOnOrAfter(ctx, p.ID, today)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("%w: resolve it before booking another", ErrBookingLimit)
	}

	if err := s.checkSlot(ctx, in.DoctorName, in.Date, in.Time, uuid.Nil); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:     &p.ID,
		PatientName:   p.FullName(),
		PatientEmail:  p.Email,
		PatientPhone:  p.Phone,
		DoctorType:    in.DoctorType,
		DoctorName:    in.DoctorName,
		ServiceType:   in.ServiceType,
		Date:          in.Date,
		Time:          in.Time,
		Status:        StatusScheduled,
		BookingSource: SourcePortal,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create portal appointment: %w", err)
	}
	return a, nil
}

// apply runs the state machine for an already-loaded appointment and
// persists the outcome. Confirmed results go through the exclusive path.
func (s *Service) apply(ctx context.Context, a *Appointment, ev Event) (*Appointment, error) {
	ch, err := Transition(*a, ev, s.now(), s.cutoff)
	if err != nil {
		return nil, err
	}

	if ch.Appt.Status == StatusConfirmed {
		err = s.repo.UpdateConfirmed(ctx, &ch.Appt)
	} else {
		err = s.repo.Update(ctx, &ch.Appt)
	}
	if err != nil {
		return nil, err
	}

	s.runEffect(ctx, &ch)
	s.emit(ctx, &ch)
	return &ch.Appt, nil
}

func (s *Service) runEffect(ctx context.Context, ch *Change) {
	if ch.Appt.PatientID == nil {
		return
	}
	id := *ch.Appt.PatientID
	switch ch.Effect {
	case EffectActivatePatient:
		if err := s.patients.Activate(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("patient activation failed")
		}
	case EffectRecordNoShow:
		st, err := s.patients.RecordNoShow(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("patient_id", id.String()).Msg("no-show strike failed")
			return
		}
		if ch.Extras == nil {
			ch.Extras = map[string]string{}
		}
		ch.Extras["no_show_count"] = fmt.Sprintf("%d", st.NoShowCount)
		if st.AppointmentLocked {
			ch.Extras["appointment_locked"] = "true"
		}
	}
}

func (s *Service) emit(ctx context.Context, ch *Change) {
	if ch.Notify == "" || s.notifier == nil {
		return
	}
	a := &ch.Appt
	payload := map[string]string{
		"appointment":  a.AppointmentNumber,
		"patient_name": a.PatientName,
		"doctor":       a.DoctorName,
		"doctor_type":  a.DoctorType,
		"service":      a.ServiceType,
		"date":         a.Date,
		"time":         a.Time,
	}
	if a.PatientEmail != nil {
		payload["email"] = *a.PatientEmail
	}
	if a.PatientPhone != nil {
		payload["phone"] = *a.PatientPhone
	}
	for k, v := range ch.Extras {
		payload[k] = v
	}
	s.notifier.Emit(ctx, ch.Notify, "", payload)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, by string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvConfirm, Actor: by})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, by, reason string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvCancel, Actor: by, Reason: reason})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, by string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvMarkNoShow, Actor: by})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, by string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvComplete, Actor: by})
}

// Reschedule moves an appointment to a new slot. Staff-sourced bookings
// move immediately; portal bookings enter reschedule_pending awaiting the
// patient's decision.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, by, date, clock, reason string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := schedule.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := schedule.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.checkSlot(ctx, a.DoctorName, date, clock, a.ID); err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvReschedule, Actor: by, Date: date, Time: clock, Reason: reason})
}

func (s *Service) RequestCancellation(ctx context.Context, id uuid.UUID, by, reason string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvRequestCancellation, Actor: by, Reason: reason})
}

func (s *Service) ReviewCancellation(ctx context.Context, id uuid.UUID, by string, approved bool, notes string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	t := EvRejectCancellation
	if approved {
		t = EvApproveCancellation
	}
	return s.apply(ctx, a, Event{Type: t, Actor: by, Notes: notes})
}

func (s *Service) RequestReschedule(ctx context.Context, id uuid.UUID, by, date, clock, reason string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := schedule.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := schedule.ParseClock(clock); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.checkSlot(ctx, a.DoctorName, date, clock, a.ID); err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvRequestReschedule, Actor: by, Date: date, Time: clock, Reason: reason})
}

func (s *Service) AcceptReschedule(ctx context.Context, id uuid.UUID, by string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvAcceptReschedule, Actor: by})
}

func (s *Service) RejectReschedule(ctx context.Context, id uuid.UUID, by, notes string) (*Appointment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, a, Event{Type: EvRejectReschedule, Actor: by, Notes: notes})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByDoctorDate(ctx context.Context, doctorName, date string) ([]*Appointment, error) {
	return s.repo.ListByDoctorDate(ctx, doctorName, date)
}

// AvailableSlots lists a doctor's open slots on a date: the published
// hours expanded, minus slots held by scheduled, confirmed, or
// reschedule-pending appointments.
func (s *Service) AvailableSlots(ctx context.Context, doctorName, date string) ([]string, error) {
	slots, err := s.hours.SlotsForDate(ctx, doctorName, date)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	occupied, err := s.repo.OccupiedTimes(ctx, doctorName, date, DisplayBusyStatuses)
	if err != nil {
		return nil, err
	}
	busy := make(map[string]bool, len(occupied))
	for _, t := range occupied {
		busy[t] = true
	}
	var free []string
	for _, slot := range slots {
		if !busy[slot] {
			free = append(free, slot)
		}
	}
	return free, nil
}
