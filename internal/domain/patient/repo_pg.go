package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no patient matches the lookup.
var ErrNotFound = errors.New("patient not found")

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const patientCols = `id, patient_number, first_name, last_name, email, phone,
	patient_type, status, no_show_count, appointment_locked, last_no_show_at,
	created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientNumber, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.PatientType, &p.Status, &p.NoShowCount, &p.AppointmentLocked, &p.LastNoShowAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	if p.Status == "" {
		p.Status = StatusNew
	}

	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('patient_number_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("next patient number: %w", err)
	}
	p.PatientNumber = fmt.Sprintf("PT-%06d", seq)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (id, patient_number, first_name, last_name, email, phone,
			patient_type, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.PatientNumber, p.FirstName, p.LastName, p.Email, p.Phone,
		p.PatientType, p.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.scanPatient(r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE lower(email) = lower($1)`, email))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, email=$4, phone=$5,
			patient_type=$6, status=$7, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.PatientType, p.Status)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ActivateIfNew(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patient SET status=$2, updated_at=NOW()
		WHERE id = $1 AND status = $3`,
		id, StatusActive, StatusNew)
	return err
}

func (r *repoPG) RecordNoShow(ctx context.Context, id uuid.UUID, limit int) (*StrikeState, error) {
	// One statement so the counter and the lock can never disagree.
	row := r.pool.QueryRow(ctx, `
		UPDATE patient SET
			no_show_count = no_show_count + 1,
			last_no_show_at = NOW(),
			appointment_locked = (no_show_count + 1 >= $2),
			updated_at = NOW()
		WHERE id = $1
		RETURNING no_show_count, appointment_locked`,
		id, limit)

	var st StrikeState
	if err := row.Scan(&st.NoShowCount, &st.AppointmentLocked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (r *repoPG) Unlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient SET no_show_count = 0, appointment_locked = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
