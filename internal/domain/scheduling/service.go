package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vetdesk/clinic/internal/domain/billing"
	"github.com/vetdesk/clinic/internal/domain/identity"
	"github.com/vetdesk/clinic/internal/platform/blobstore"
	"github.com/vetdesk/clinic/internal/platform/db"
	"github.com/vetdesk/clinic/internal/platform/idempotency"
	"github.com/vetdesk/clinic/internal/platform/metrics"
)

// DoctorLookup resolves the doctor a booking names.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
}

// PatientResolver finds or creates the patient a booking is for.
type PatientResolver interface {
	FindOrCreatePatient(ctx context.Context, v identity.PatientVisit) (*identity.Patient, bool, error)
}

// Ledger appends the transaction a booking pays with.
type Ledger interface {
	RecordTransaction(ctx context.Context, t *billing.Transaction) error
}

// Idempotency reserves Idempotency-Key values; *idempotency.Store
// implements it.
type Idempotency interface {
	Begin(ctx context.Context, key string) (idempotency.Reservation, error)
	Complete(ctx context.Context, key, resultID string) error
	Release(ctx context.Context, key string) error
}

// Deps wires a Service. Idempotency and Metrics may be nil.
type Deps struct {
	Appointments  AppointmentRepository
	Doctors       DoctorLookup
	Patients      PatientResolver
	Ledger        Ledger
	Tx            db.TxRunner
	Blobs         blobstore.BlobStore
	Idempotency   Idempotency
	Metrics       *metrics.BookingMetrics
	Logger        zerolog.Logger
	Location      *time.Location
	PaymentMethod string
}

const DefaultPaymentMethod = "Online"

type Service struct {
	appointments  AppointmentRepository
	doctors       DoctorLookup
	patients      PatientResolver
	ledger        Ledger
	tx            db.TxRunner
	blobs         blobstore.BlobStore
	idem          Idempotency
	metrics       *metrics.BookingMetrics
	logger        zerolog.Logger
	loc           *time.Location
	paymentMethod string
}

func NewService(d Deps) *Service {
	s := &Service{
		appointments:  d.Appointments,
		doctors:       d.Doctors,
		patients:      d.Patients,
		ledger:        d.Ledger,
		tx:            d.Tx,
		blobs:         d.Blobs,
		idem:          d.Idempotency,
		metrics:       d.Metrics,
		logger:        d.Logger.With().Str("component", "scheduling").Logger(),
		loc:           d.Location,
		paymentMethod: d.PaymentMethod,
	}
	if s.tx == nil {
		s.tx = db.NoTx{}
	}
	if s.blobs == nil {
		s.blobs = blobstore.NewInMemoryBlobStore()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.paymentMethod == "" {
		s.paymentMethod = DefaultPaymentMethod
	}
	return s
}

// GetAppointment returns ErrAppointmentNotFound both for unknown ids and for
// appointments a non-staff caller does not own.
func (s *Service) GetAppointment(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Staff && a.UserID != caller.UserID {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

// ListAppointments scopes non-staff callers to their own appointments.
func (s *Service) ListAppointments(ctx context.Context, caller Caller, f Filter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && f.Status != StatusScheduled && f.Status != StatusCompleted && f.Status != StatusCancelled {
		return nil, 0, invalid("status must be one of Scheduled, Completed, Cancelled")
	}
	if !caller.Staff {
		f.UserID = caller.UserID
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// UpdateAppointmentStatus moves a Scheduled appointment to Completed or
// Cancelled. Non-staff callers may only cancel their own appointments.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, caller Caller, id uuid.UUID, status string) (*Appointment, error) {
	if status != StatusScheduled && status != StatusCompleted && status != StatusCancelled {
		return nil, invalid("status must be one of Scheduled, Completed, Cancelled")
	}
	a, err := s.GetAppointment(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !caller.Staff && status != StatusCancelled {
		return nil, ErrForbidden
	}
	if !canTransition(a.Status, status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, a.Status, status)
	}

	updated, err := s.appointments.UpdateStatus(ctx, id, a.Status, status)
	if errors.Is(err, errStatusChanged) {
		return nil, fmt.Errorf("%w: appointment is no longer %s", ErrInvalidTransition, a.Status)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", a.Status).
		Str("to", status).
		Str("user_id", caller.UserID).
		Msg("appointment status changed")
	return updated, nil
}
