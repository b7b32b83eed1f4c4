package schedule

import (
	"context"
)

type Repository interface {
	// UpsertDay replaces the row for (doctor, weekday), creating it on
	// first write.
	UpsertDay(ctx context.Context, d *DayHours) error
	WeeklyHours(ctx context.Context, doctorName string) ([]*DayHours, error)
	DayFor(ctx context.Context, doctorName string, weekday int) (*DayHours, error)
	ListDoctors(ctx context.Context) ([]*Doctor, error)
	DeleteDay(ctx context.Context, doctorName string, weekday int) error
}
