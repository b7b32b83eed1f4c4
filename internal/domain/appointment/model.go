package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/schedule"
)

// Appointment statuses. Terminal states are completed and cancelled.
const (
	StatusScheduled           = "scheduled"
	StatusConfirmed           = "confirmed"
	StatusCompleted           = "completed"
	StatusCancelled           = "cancelled"
	StatusNoShow              = "no_show"
	StatusRescheduled         = "rescheduled"
	StatusCancellationPending = "cancellation_pending"
	StatusReschedulePending   = "reschedule_pending"
)

// Booking sources.
const (
	SourceStaff  = "staff"
	SourcePortal = "patient_portal"
)

// Approval request states.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// ServiceTypes enumerates the offered services per doctor type.
var ServiceTypes = map[string][]string{
	schedule.DoctorPediatrician: {
		"well-child checkup",
		"vaccination",
		"sick visit",
		"newborn screening",
	},
	schedule.DoctorOBGyne: {
		"prenatal checkup",
		"postpartum checkup",
		"ultrasound",
		"family planning",
		"pap smear",
	},
}

// ValidService reports whether service is offered by the given doctor type.
func ValidService(doctorType, service string) bool {
	for _, s := range ServiceTypes[doctorType] {
		if s == service {
			return true
		}
	}
	return false
}

// ApprovalRequest is the negotiation record embedded while a cancellation
// or reschedule awaits the other party's decision.
type ApprovalRequest struct {
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	RequestedBy string     `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	AdminNotes  *string    `json:"admin_notes,omitempty"`
	// PriorStatus is restored when the request is rejected.
	PriorStatus string `json:"prior_status"`
}

// RescheduleApproval extends ApprovalRequest with the proposed slot and a
// snapshot of the slot it would replace.
type RescheduleApproval struct {
	ApprovalRequest
	ProposedDate string `json:"proposed_date"`
	ProposedTime string `json:"proposed_time"`
	PriorDate    string `json:"prior_date"`
	PriorTime    string `json:"prior_time"`
}

// RescheduleSnapshot records the slot an appointment moved away from.
type RescheduleSnapshot struct {
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Reason        string    `json:"reason,omitempty"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}

type Appointment struct {
	ID                  uuid.UUID           `json:"id" db:"id"`
	AppointmentNumber   string              `json:"appointment_number" db:"appointment_number"`
	PatientID           *uuid.UUID          `json:"patient_id,omitempty" db:"patient_id"`
	PatientName         string              `json:"patient_name" db:"patient_name"`
	PatientEmail        *string             `json:"patient_email,omitempty" db:"patient_email"`
	PatientPhone        *string             `json:"patient_phone,omitempty" db:"patient_phone"`
	DoctorType          string              `json:"doctor_type" db:"doctor_type"`
	DoctorName          string              `json:"doctor_name" db:"doctor_name"`
	ServiceType         string              `json:"service_type" db:"service_type"`
	Date                string              `json:"date" db:"date"`
	Time                string              `json:"time" db:"time"`
	EndTime             *string             `json:"end_time,omitempty" db:"end_time"`
	Status              string              `json:"status" db:"status"`
	BookingSource       string              `json:"booking_source" db:"booking_source"`
	CancellationReason  *string             `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	RescheduledFrom     *RescheduleSnapshot `json:"rescheduled_from,omitempty" db:"rescheduled_from"`
	CancellationRequest *ApprovalRequest    `json:"cancellation_request,omitempty" db:"cancellation_request"`
	RescheduleRequest   *RescheduleApproval `json:"reschedule_request,omitempty" db:"reschedule_request"`
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the appointment can no longer transition.
func (a *Appointment) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// StartsAt combines the stored date and 12-hour time into one instant in
// the clinic's local zone.
func (a *Appointment) StartsAt() (time.Time, error) {
	t, err := time.ParseInLocation(
		schedule.DateLayout+" "+schedule.ClockLayout,
		a.Date+" "+a.Time,
		time.Local,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("appointment %s has unparseable start %q %q", a.AppointmentNumber, a.Date, a.Time)
	}
	return t, nil
}

// ActiveStatuses block a portal patient from holding a second future
// booking.
var ActiveStatuses = []string{
	StatusScheduled,
	StatusConfirmed,
	StatusCancellationPending,
	StatusReschedulePending,
}

// BusyStatuses occupy a slot when a new booking or a reschedule target is
// checked. Overlapping "scheduled" holds are tolerated until confirmation.
var BusyStatuses = []string{
	StatusConfirmed,
	StatusReschedulePending,
}

// DisplayBusyStatuses hide a slot from the availability listing.
var DisplayBusyStatuses = []string{
	StatusScheduled,
	StatusConfirmed,
	StatusReschedulePending,
}
