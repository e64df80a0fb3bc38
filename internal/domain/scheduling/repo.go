package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error)
	// UpdateStatus moves the appointment from one status to another only if
	// it is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*Appointment, error)
}
