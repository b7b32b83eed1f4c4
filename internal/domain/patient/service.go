package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrValidation wraps input problems so handlers can answer 400.
var ErrValidation = errors.New("validation failed")

type Service struct {
	repo        Repository
	noShowLimit int
}

func NewService(repo Repository, noShowLimit int) *Service {
	return &Service{repo: repo, noShowLimit: noShowLimit}
}

type CreateInput struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	PatientType string  `json:"patient_type"`
}

func (in *CreateInput) validate() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.FirstName == "" || in.LastName == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}
	if !validTypes[in.PatientType] {
		return fmt.Errorf("%w: patient_type must be %q or %q", ErrValidation, TypePediatric, TypeOBGyne)
	}
	if in.Email != nil && !strings.Contains(*in.Email, "@") {
		return fmt.Errorf("%w: email is malformed", ErrValidation)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &Patient{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		Phone:       in.Phone,
		PatientType: in.PatientType,
		Status:      StatusNew,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return p, nil
}

// FindOrCreateByEmail backs portal bookings: a returning patient is matched
// by email, a first-time one gets a fresh record in status "new".
func (s *Service) FindOrCreateByEmail(ctx context.Context, in CreateInput) (*Patient, error) {
	if in.Email != nil && *in.Email != "" {
		p, err := s.repo.GetByEmail(ctx, *in.Email)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.Create(ctx, in)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

type UpdateInput struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	PatientType *string `json:"patient_type,omitempty"`
	Status      *string `json:"status,omitempty"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		p.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		p.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		p.Email = in.Email
	}
	if in.Phone != nil {
		p.Phone = in.Phone
	}
	if in.PatientType != nil {
		if !validTypes[*in.PatientType] {
			return nil, fmt.Errorf("%w: unknown patient_type %q", ErrValidation, *in.PatientType)
		}
		p.PatientType = *in.PatientType
	}
	if in.Status != nil {
		if !validStatuses[*in.Status] {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *in.Status)
		}
		p.Status = *in.Status
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return p, nil
}

// Activate moves a New patient to Active. Called when one of the
// patient's appointments is first confirmed; patients already active
// are left alone.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.repo.ActivateIfNew(ctx, id)
}

// RecordNoShow adds one strike and reports the resulting state. The lock
// engages on the same statement once the counter reaches the limit.
func (s *Service) RecordNoShow(ctx context.Context, id uuid.UUID) (*StrikeState, error) {
	return s.repo.RecordNoShow(ctx, id, s.noShowLimit)
}

// Unlock clears the booking lock and resets the strike counter together.
func (s *Service) Unlock(ctx context.Context, id uuid.UUID) error {
	return s.repo.Unlock(ctx, id)
}

// NoShowLimit exposes the configured strike ceiling for callers that
// surface it in error payloads.
func (s *Service) NoShowLimit() int { return s.noShowLimit }
