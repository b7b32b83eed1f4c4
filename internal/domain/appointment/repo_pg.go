package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const apptCols = `id, appointment_number, patient_id, patient_name, patient_email, patient_phone,
	doctor_type, doctor_name, service_type, date, time, end_time, status, booking_source,
	cancellation_reason, rescheduled_from, cancellation_request, reschedule_request,
	created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.AppointmentNumber, &a.PatientID, &a.PatientName, &a.PatientEmail,
		&a.PatientPhone, &a.DoctorType, &a.DoctorName, &a.ServiceType, &a.Date, &a.Time,
		&a.EndTime, &a.Status, &a.BookingSource, &a.CancellationReason, &a.RescheduledFrom,
		&a.CancellationRequest, &a.RescheduleRequest, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

// nextNumber hands out the per-day sequence behind APT-YYYYMMDD-NNNN.
func (r *repoPG) nextNumber(ctx context.Context, date string) (string, error) {
	day := strings.ReplaceAll(date, "-", "")
	var seq int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointment_counter (day, seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = appointment_counter.seq + 1
		RETURNING seq`, day).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("next appointment number: %w", err)
	}
	return fmt.Sprintf("APT-%s-%04d", day, seq), nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	number, err := r.nextNumber(ctx, a.Date)
	if err != nil {
		return err
	}
	a.AppointmentNumber = number

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointment (id, appointment_number, patient_id, patient_name, patient_email,
			patient_phone, doctor_type, doctor_name, service_type, date, time, end_time, status,
			booking_source, cancellation_reason, rescheduled_from, cancellation_request,
			reschedule_request)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		a.ID, a.AppointmentNumber, a.PatientID, a.PatientName, a.PatientEmail, a.PatientPhone,
		a.DoctorType, a.DoctorName, a.ServiceType, a.Date, a.Time, a.EndTime, a.Status,
		a.BookingSource, a.CancellationReason, a.RescheduledFrom, a.CancellationRequest,
		a.RescheduleRequest)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.pool.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

const updateApptSQL = `
	UPDATE appointment SET
		patient_id=$2, patient_name=$3, patient_email=$4, patient_phone=$5, doctor_type=$6,
		doctor_name=$7, service_type=$8, date=$9, time=$10, end_time=$11, status=$12,
		cancellation_reason=$13, rescheduled_from=$14, cancellation_request=$15,
		reschedule_request=$16, updated_at=NOW()
	WHERE id = $1`

func updateArgs(a *Appointment) []interface{} {
	return []interface{}{
		a.ID, a.PatientID, a.PatientName, a.PatientEmail, a.PatientPhone, a.DoctorType,
		a.DoctorName, a.ServiceType, a.Date, a.Time, a.EndTime, a.Status,
		a.CancellationReason, a.RescheduledFrom, a.CancellationRequest, a.RescheduleRequest,
	}
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.pool.Exec(ctx, updateApptSQL, updateArgs(a)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE patient_id = $1
		ORDER BY date DESC, to_timestamp(time, 'HH12:MI AM') DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListByDoctorDate(ctx context.Context, doctorName, date string) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_name = $1 AND date = $2
		ORDER BY to_timestamp(time, 'HH12:MI AM')`, doctorName, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) SlotTaken(ctx context.Context, doctorName, date, clock string, statuses []string, excludeID uuid.UUID) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_name = $1 AND date = $2 AND time = $3
			  AND status = ANY($4) AND id <> $5
		)`, doctorName, date, clock, statuses, excludeID).Scan(&taken)
	return taken, err
}

func (r *repoPG) OccupiedTimes(ctx context.Context, doctorName, date string, statuses []string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT time FROM appointment
		WHERE doctor_name = $1 AND date = $2 AND status = ANY($3)`,
		doctorName, date, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (r *repoPG) HasActiveOnOrAfter(ctx context.Context, patientID uuid.UUID, fromDate string) (bool, error) {
	var has bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE patient_id = $1 AND date >= $2 AND status = ANY($3)
		)`, patientID, fromDate, ActiveStatuses).Scan(&has)
	return has, err
}

func (r *repoPG) UpdateConfirmed(ctx context.Context, a *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_name = $1 AND date = $2 AND time = $3
			  AND status = $4 AND id <> $5
		)`, a.DoctorName, a.Date, a.Time, StatusConfirmed, a.ID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotTaken
	}

	tag, err := tx.Exec(ctx, updateApptSQL, updateArgs(a)...)
	if err != nil {
		// The partial unique index on confirmed slots backstops the
		// check above under concurrency.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}
