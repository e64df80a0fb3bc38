package identity

import (
	"context"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	// UpsertVisit inserts p unless a patient with the same (name, phone)
	// exists, in which case only that patient's last visit is updated. p is
	// overwritten with the stored row. created reports whether p was
	// inserted.
	UpsertVisit(ctx context.Context, p *Patient) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error)
}
