package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts the appointment and assigns its appointment number.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListByPatient returns the patient's appointments newest first. Time
	// is a 12-hour display string, so implementations must order by the
	// parsed clock, not the raw text.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)

	// ListByDoctorDate returns one doctor's day in chronological order.
	ListByDoctorDate(ctx context.Context, doctorName, date string) ([]*Appointment, error)

	// SlotTaken reports whether another appointment in one of the given
	// statuses already holds (doctor, date, time). excludeID skips the
	// appointment's own row during a reschedule.
	SlotTaken(ctx context.Context, doctorName, date, clock string, statuses []string, excludeID uuid.UUID) (bool, error)

	// OccupiedTimes lists the times on a doctor's day held by any of the
	// given statuses.
	OccupiedTimes(ctx context.Context, doctorName, date string, statuses []string) ([]string, error)

	// HasActiveOnOrAfter reports whether the patient holds an appointment
	// in ActiveStatuses dated fromDate or later.
	HasActiveOnOrAfter(ctx context.Context, patientID uuid.UUID, fromDate string) (bool, error)

	// UpdateConfirmed persists a transition into "confirmed" while
	// enforcing slot exclusivity; a losing race returns ErrSlotTaken.
	UpdateConfirmed(ctx context.Context, a *Appointment) error
}
