package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no schedule row matches the lookup.
var ErrNotFound = errors.New("schedule not found")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const dayCols = `id, doctor_name, doctor_type, weekday, start_time, end_time, enabled,
	created_at, updated_at`

func scanDay(row pgx.Row) (*DayHours, error) {
	var d DayHours
	err := row.Scan(&d.ID, &d.DoctorName, &d.DoctorType, &d.Weekday, &d.StartTime, &d.EndTime,
		&d.Enabled, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *repoPG) UpsertDay(ctx context.Context, d *DayHours) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_hours (id, doctor_name, doctor_type, weekday, start_time, end_time, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (doctor_name, weekday) DO UPDATE SET
			doctor_type = EXCLUDED.doctor_type,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()`,
		d.ID, d.DoctorName, d.DoctorType, d.Weekday, d.StartTime, d.EndTime, d.Enabled)
	return err
}

func (r *repoPG) WeeklyHours(ctx context.Context, doctorName string) ([]*DayHours, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+dayCols+` FROM doctor_hours WHERE doctor_name = $1 ORDER BY weekday`,
		doctorName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var days []*DayHours
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (r *repoPG) DayFor(ctx context.Context, doctorName string, weekday int) (*DayHours, error) {
	return scanDay(r.pool.QueryRow(ctx,
		`SELECT `+dayCols+` FROM doctor_hours WHERE doctor_name = $1 AND weekday = $2`,
		doctorName, weekday))
}

func (r *repoPG) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT doctor_name, doctor_type FROM doctor_hours ORDER BY doctor_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.Name, &d.Type); err != nil {
			return nil, err
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

func (r *repoPG) DeleteDay(ctx context.Context, doctorName string, weekday int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM doctor_hours WHERE doctor_name = $1 AND weekday = $2`,
		doctorName, weekday)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
