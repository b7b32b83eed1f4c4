package schedule

import (
	"context"
	"errors"
	"testing"
)

type memRepo struct {
	days map[string]*DayHours
}

func dayKey(doctor string, weekday int) string {
	return doctor + "/" + string(rune('0'+weekday))
}

func newMemRepo() *memRepo {
	return &memRepo{days: map[string]*DayHours{}}
}

func (m *memRepo) UpsertDay(_ context.Context, d *DayHours) error {
	cp := *d
	m.days[dayKey(d.DoctorName, d.Weekday)] = &cp
	return nil
}

func (m *memRepo) WeeklyHours(_ context.Context, doctorName string) ([]*DayHours, error) {
	var out []*DayHours
	for _, d := range m.days {
		if d.DoctorName == doctorName {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) DayFor(_ context.Context, doctorName string, weekday int) (*DayHours, error) {
	d, ok := m.days[dayKey(doctorName, weekday)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) ListDoctors(_ context.Context) ([]*Doctor, error) {
	seen := map[string]bool{}
	var out []*Doctor
	for _, d := range m.days {
		if !seen[d.DoctorName] {
			seen[d.DoctorName] = true
			out = append(out, &Doctor{Name: d.DoctorName, Type: d.DoctorType})
		}
	}
	return out, nil
}

func (m *memRepo) DeleteDay(_ context.Context, doctorName string, weekday int) error {
	k := dayKey(doctorName, weekday)
	if _, ok := m.days[k]; !ok {
		return ErrNotFound
	}
	delete(m.days, k)
	return nil
}

func mondayHours(t *testing.T, svc *Service) {
	t.Helper()
	_, err := svc.SetDayHours(context.Background(), SetDayInput{
		DoctorName: "Dr. Reyes",
		DoctorType: DoctorPediatrician,
		Weekday:    1,
		StartTime:  "09:00 AM",
		EndTime:    "12:00 PM",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("set hours: %v", err)
	}
}

func TestSetDayHoursValidation(t *testing.T) {
	svc := NewService(newMemRepo(), 30)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SetDayInput
	}{
		{"missing doctor", SetDayInput{DoctorType: DoctorOBGyne, StartTime: "09:00 AM", EndTime: "05:00 PM"}},
		{"bad type", SetDayInput{DoctorName: "Dr. Reyes", DoctorType: "dentist", StartTime: "09:00 AM", EndTime: "05:00 PM"}},
		{"bad weekday", SetDayInput{DoctorName: "Dr. Reyes", DoctorType: DoctorOBGyne, Weekday: 7, StartTime: "09:00 AM", EndTime: "05:00 PM"}},
		{"bad clock", SetDayInput{DoctorName: "Dr. Reyes", DoctorType: DoctorOBGyne, Weekday: 1, StartTime: "25:00", EndTime: "05:00 PM"}},
		{"inverted range", SetDayInput{DoctorName: "Dr. Reyes", DoctorType: DoctorOBGyne, Weekday: 1, StartTime: "05:00 PM", EndTime: "09:00 AM"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SetDayHours(ctx, tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSlotsForDate(t *testing.T) {
	svc := NewService(newMemRepo(), 30)
	mondayHours(t, svc)

	// 2026-09-14 is a Monday.
	slots, err := svc.SlotsForDate(context.Background(), "Dr. Reyes", "2026-09-14")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	want := []string{"09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM"}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots %v, want %d", len(slots), slots, len(want))
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot[%d] = %q, want %q", i, slots[i], want[i])
		}
	}
}

func TestSlotsForDateOffDay(t *testing.T) {
	svc := NewService(newMemRepo(), 30)
	mondayHours(t, svc)

	// 2026-09-15 is a Tuesday with no configured hours.
	slots, err := svc.SlotsForDate(context.Background(), "Dr. Reyes", "2026-09-15")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots, got %v", slots)
	}
}

func TestSlotsForDateDisabledDay(t *testing.T) {
	svc := NewService(newMemRepo(), 30)
	_, err := svc.SetDayHours(context.Background(), SetDayInput{
		DoctorName: "Dr. Reyes", DoctorType: DoctorPediatrician, Weekday: 1,
		StartTime: "09:00 AM", EndTime: "12:00 PM", Enabled: false,
	})
	if err != nil {
		t.Fatalf("set hours: %v", err)
	}
	slots, err := svc.SlotsForDate(context.Background(), "Dr. Reyes", "2026-09-14")
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots on a disabled day, got %v", slots)
	}
}

func TestIsWithinHours(t *testing.T) {
	svc := NewService(newMemRepo(), 30)
	mondayHours(t, svc)
	ctx := context.Background()

	cases := []struct {
		clock string
		want  bool
	}{
		{"09:00 AM", true},
		{"11:30 AM", true},
		{"12:00 PM", false}, // last slot would run past closing
		{"08:30 AM", false},
		{"09:15 AM", false}, // off the slot grid
	}
	for _, tc := range cases {
		got, err := svc.IsWithinHours(ctx, "Dr. Reyes", "2026-09-14", tc.clock)
		if err != nil {
			t.Fatalf("%s: %v", tc.clock, err)
		}
		if got != tc.want {
			t.Errorf("IsWithinHours(%q) = %v, want %v", tc.clock, got, tc.want)
		}
	}
}

func TestExpandSlotsUnevenTail(t *testing.T) {
	start, _ := ParseClock("09:00 AM")
	end, _ := ParseClock("10:45 AM")
	slots := ExpandSlots(start, end, 30)
	want := []string{"09:00 AM", "09:30 AM", "10:00 AM"}
	if len(slots) != len(want) {
		t.Fatalf("got %v, want %v", slots, want)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot[%d] = %q, want %q", i, slots[i], want[i])
		}
	}
}
