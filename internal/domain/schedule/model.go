package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DoctorPediatrician = "pediatrician"
	DoctorOBGyne       = "obgyne"
)

var validDoctorTypes = map[string]bool{
	DoctorPediatrician: true,
	DoctorOBGyne:       true,
}

// ClockLayout is the 12-hour wall clock format used throughout the API,
// e.g. "09:00 AM".
const ClockLayout = "03:04 PM"

// DateLayout is the calendar date format, e.g. "2026-09-14".
const DateLayout = "2006-01-02"

// DayHours is one weekday row of a doctor's recurring schedule.
// Weekday follows time.Weekday: 0 is Sunday.
type DayHours struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DoctorName string    `json:"doctor_name" db:"doctor_name"`
	DoctorType string    `json:"doctor_type" db:"doctor_type"`
	Weekday    int       `json:"weekday" db:"weekday"`
	StartTime  string    `json:"start_time" db:"start_time"`
	EndTime    string    `json:"end_time" db:"end_time"`
	Enabled    bool      `json:"enabled" db:"enabled"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Doctor is a distinct practitioner derived from the hours table.
type Doctor struct {
	Name string `json:"name" db:"doctor_name"`
	Type string `json:"type" db:"doctor_type"`
}

// ParseClock parses a 12-hour wall clock string such as "09:00 AM".
func ParseClock(s string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want e.g. \"09:00 AM\"", s)
	}
	return t, nil
}

// ParseDate parses a calendar date string such as "2026-09-14".
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// ExpandSlots lists the slot start times inside [start, end) in steps of
// slotMinutes. A slot is included only when it fits entirely before end.
func ExpandSlots(start, end time.Time, slotMinutes int) []string {
	if slotMinutes <= 0 {
		return nil
	}
	step := time.Duration(slotMinutes) * time.Minute
	var out []string
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		out = append(out, t.Format(ClockLayout))
	}
	return out
}
