package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient status values. A record starts as New and becomes Active the first
// time one of the patient's appointments is confirmed.
const (
	StatusNew      = "New"
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Patient types match the clinic's two specialties.
const (
	TypePediatric = "pediatric"
	TypeOBGyne    = "obgyne"
)

var validTypes = map[string]bool{
	TypePediatric: true,
	TypeOBGyne:    true,
}

var validStatuses = map[string]bool{
	StatusNew:      true,
	StatusActive:   true,
	StatusInactive: true,
}

// Patient maps to the patient table.
type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientNumber     string     `db:"patient_number" json:"patient_number"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	Email             *string    `db:"email" json:"email,omitempty"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	PatientType       string     `db:"patient_type" json:"patient_type"`
	Status            string     `db:"status" json:"status"`
	NoShowCount       int        `db:"no_show_count" json:"no_show_count"`
	AppointmentLocked bool       `db:"appointment_locked" json:"appointment_locked"`
	LastNoShowAt      *time.Time `db:"last_no_show_at" json:"last_no_show_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// StrikeState is returned by the no-show tracker.
type StrikeState struct {
	NoShowCount       int  `json:"no_show_count"`
	AppointmentLocked bool `json:"appointment_locked"`
}
