package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPatientImage is the avatar given to patients created by a booking.
const DefaultPatientImage = "https://cdn-icons-png.flaticon.com/512/3135/3135715.png"

// patientIDAttempts bounds retries after a display id collision.
const patientIDAttempts = 3

type Service struct {
	doctors      DoctorRepository
	patients     PatientRepository
	patientImage string
	now          func() time.Time
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{
		doctors:      doctors,
		patients:     patients,
		patientImage: DefaultPatientImage,
		now:          time.Now,
	}
}

// SetDefaultPatientImage overrides the avatar for new patients. An empty
// url keeps the current one.
func (s *Service) SetDefaultPatientImage(url string) {
	if url != "" {
		s.patientImage = url
	}
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.doctors.Create(ctx, d)
}

// GetDoctor returns ErrDoctorNotFound when id is unknown.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

// UpdateDoctor replaces a doctor's profile. Appointments and transactions
// keep the values they copied at booking time.
func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	if f.Day != "" {
		tok, ok := weekdayToken(f.Day)
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown weekday %q", ErrValidation, f.Day)
		}
		f.Day = tok
	}
	return s.doctors.List(ctx, f, limit, offset)
}

// -- Patient --

// FindOrCreatePatient resolves the patient a booking is for. An existing
// patient with the same name and phone only gets its last visit moved to
// v.VisitDate; otherwise a new patient is stored. Either way it is a single
// write.
func (s *Service) FindOrCreatePatient(ctx context.Context, v PatientVisit) (*Patient, bool, error) {
	v.Name = strings.TrimSpace(v.Name)
	v.Phone = strings.TrimSpace(v.Phone)
	if v.Name == "" {
		return nil, false, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if v.Phone == "" {
		return nil, false, fmt.Errorf("%w: phone is required", ErrValidation)
	}

	var lastErr error
	for attempt := 0; attempt < patientIDAttempts; attempt++ {
		p := s.newPatient(v)
		created, err := s.patients.UpsertVisit(ctx, p)
		if err == nil {
			return p, created, nil
		}
		if !errors.Is(err, ErrDuplicatePatientID) {
			return nil, false, err
		}
		lastErr = err
	}
	return nil, false, fmt.Errorf("resolve patient: %w", lastErr)
}

func (s *Service) newPatient(v PatientVisit) *Patient {
	p := &Patient{
		ID:        uuid.New(),
		PatientID: NewPatientID(s.now()),
		Name:      v.Name,
		Type:      PatientTypeHuman,
		Age:       v.Age,
		Gender:    v.Gender,
		Phone:     v.Phone,
		Address:   v.Address,
		LastVisit: v.VisitDate,
		Image:     s.patientImage,
		Status:    PatientStatusActive,
	}
	if v.Pet {
		p.Type = PatientTypePet
		p.OwnerName = v.OwnerName
		p.Breed = v.PetType
	}
	return p
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	if f.Type != "" && f.Type != PatientTypeHuman && f.Type != PatientTypePet {
		return nil, 0, fmt.Errorf("%w: unknown patient type %q", ErrValidation, f.Type)
	}
	if f.Status != "" && f.Status != PatientStatusActive && f.Status != PatientStatusInactive {
		return nil, 0, fmt.Errorf("%w: unknown patient status %q", ErrValidation, f.Status)
	}
	return s.patients.List(ctx, f, limit, offset)
}
