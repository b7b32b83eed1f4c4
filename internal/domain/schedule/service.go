package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrValidation wraps input problems so handlers can answer 400.
var ErrValidation = errors.New("validation failed")

type Service struct {
	repo        Repository
	slotMinutes int
}

func NewService(repo Repository, slotMinutes int) *Service {
	return &Service{repo: repo, slotMinutes: slotMinutes}
}

type SetDayInput struct {
	DoctorName string `json:"doctor_name"`
	DoctorType string `json:"doctor_type"`
	Weekday    int    `json:"weekday"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Enabled    bool   `json:"enabled"`
}

func (s *Service) SetDayHours(ctx context.Context, in SetDayInput) (*DayHours, error) {
	in.DoctorName = strings.TrimSpace(in.DoctorName)
	if in.DoctorName == "" {
		return nil, fmt.Errorf("%w: doctor_name is required", ErrValidation)
	}
	if !validDoctorTypes[in.DoctorType] {
		return nil, fmt.Errorf("%w: doctor_type must be %q or %q", ErrValidation, DoctorPediatrician, DoctorOBGyne)
	}
	if in.Weekday < 0 || in.Weekday > 6 {
		return nil, fmt.Errorf("%w: weekday must be 0 (Sunday) through 6 (Saturday)", ErrValidation)
	}
	start, err := ParseClock(in.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	end, err := ParseClock(in.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start_time must come before end_time", ErrValidation)
	}
	d := &DayHours{
		DoctorName: in.DoctorName,
		DoctorType: in.DoctorType,
		Weekday:    in.Weekday,
		StartTime:  start.Format(ClockLayout),
		EndTime:    end.Format(ClockLayout),
		Enabled:    in.Enabled,
	}
	if err := s.repo.UpsertDay(ctx, d); err != nil {
		return nil, fmt.Errorf("set day hours: %w", err)
	}
	return d, nil
}

func (s *Service) WeeklyHours(ctx context.Context, doctorName string) ([]*DayHours, error) {
	return s.repo.WeeklyHours(ctx, doctorName)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.repo.ListDoctors(ctx)
}

func (s *Service) RemoveDay(ctx context.Context, doctorName string, weekday int) error {
	return s.repo.DeleteDay(ctx, doctorName, weekday)
}

// SlotsForDate lists the bookable slot start times for a doctor on a
// calendar date. An unknown or disabled weekday yields an empty list.
func (s *Service) SlotsForDate(ctx context.Context, doctorName, date string) ([]string, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	d, err := s.repo.DayFor(ctx, doctorName, int(day.Weekday()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !d.Enabled {
		return nil, nil
	}
	start, err := ParseClock(d.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(d.EndTime)
	if err != nil {
		return nil, err
	}
	return ExpandSlots(start, end, s.slotMinutes), nil
}

// IsWithinHours reports whether clock names a valid slot start for the
// doctor on the given date.
func (s *Service) IsWithinHours(ctx context.Context, doctorName, date, clock string) (bool, error) {
	if _, err := ParseClock(clock); err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	slots, err := s.SlotsForDate(ctx, doctorName, date)
	if err != nil {
		return false, err
	}
	for _, slot := range slots {
		if slot == clock {
			return true, nil
		}
	}
	return false, nil
}

// SlotMinutes exposes the configured slot length.
func (s *Service) SlotMinutes() int { return s.slotMinutes }
