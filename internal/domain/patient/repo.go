package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// ActivateIfNew flips status New -> Active; a no-op for any other status.
	ActivateIfNew(ctx context.Context, id uuid.UUID) error
	// RecordNoShow increments the strike counter, stamps last_no_show_at, and
	// sets the lock once the counter reaches limit, all in one statement.
	RecordNoShow(ctx context.Context, id uuid.UUID, limit int) (*StrikeState, error)
	// Unlock resets the counter and the lock together.
	Unlock(ctx context.Context, id uuid.UUID) error
}
