package scheduling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vetdesk/clinic/internal/domain/billing"
	"github.com/vetdesk/clinic/internal/domain/identity"
	"github.com/vetdesk/clinic/internal/platform/blobstore"
	"github.com/vetdesk/clinic/internal/platform/idempotency"
	"github.com/vetdesk/clinic/internal/platform/metrics"
)

var tracer = otel.Tracer("clinic.internal.scheduling")

func bookingFailed(err error) error {
	return fmt.Errorf("booking failed: %w", err)
}

// step runs fn inside a child span named name.
func step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func outcome(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &ve):
		return metrics.OutcomeValidation
	case errors.Is(err, ErrDoctorNotFound):
		return metrics.OutcomeDoctorNotFound
	case errors.Is(err, ErrBookingInProgress):
		return metrics.OutcomeInProgress
	default:
		return metrics.OutcomeError
	}
}

// Book turns one booking request into exactly one appointment and one paid
// transaction, finding or creating the patient on the way. The patient,
// appointment and transaction writes share one storage transaction.
//
// Errors are a *ValidationError, ErrDoctorNotFound, or any other failure
// wrapped as "booking failed: <cause>".
func (s *Service) Book(ctx context.Context, caller Caller, req *BookingRequest) (*Appointment, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "scheduling.Book")
	defer span.End()

	appt, err := s.book(ctx, caller, req)
	s.metrics.ObserveBooking(outcome(err), time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("clinic.appointment_id", appt.ID.String()),
		attribute.String("clinic.doctor_id", appt.DoctorID.String()),
	)
	return appt, nil
}

func (s *Service) book(ctx context.Context, caller Caller, req *BookingRequest) (*Appointment, error) {
	if req == nil {
		return nil, invalid("request body is required")
	}
	if caller.UserID == "" {
		return nil, invalid("caller identity is required")
	}

	var b *booking
	if err := step(ctx, "scheduling.validate", func(context.Context) error {
		var err error
		b, err = req.validate()
		return err
	}); err != nil {
		return nil, err
	}

	var doctor *identity.Doctor
	err := step(ctx, "scheduling.lookupDoctor", func(ctx context.Context) error {
		var err error
		doctor, err = s.doctors.GetDoctor(ctx, b.doctorID)
		return err
	})
	if errors.Is(err, identity.ErrDoctorNotFound) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, bookingFailed(err)
	}

	day := strings.TrimSpace(req.Day)
	if day == "" {
		day, _ = Weekday(req.Date, s.loc)
	}

	var reportID string
	if b.report != nil {
		err := step(ctx, "scheduling.storeReport", func(ctx context.Context) error {
			meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
				FileName:    blobstore.FileName(blobstore.CategoryMedicalReport, b.reportType),
				ContentType: b.reportType,
				OwnerID:     caller.UserID,
				Category:    blobstore.CategoryMedicalReport,
			}, bytes.NewReader(b.report))
			if err != nil {
				return fmt.Errorf("store medical report: %w", err)
			}
			reportID = meta.ID
			return nil
		})
		if err != nil {
			return nil, bookingFailed(err)
		}
	}

	var (
		patient *identity.Patient
		created bool
		appt    *Appointment
		txn     *billing.Transaction
		stage   string
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		stage = "patient"
		if err := step(ctx, "scheduling.resolvePatient", func(ctx context.Context) error {
			var err error
			patient, created, err = s.patients.FindOrCreatePatient(ctx, identity.PatientVisit{
				Name:      b.patientName,
				Phone:     req.Phone,
				Pet:       b.bookingType == BookingPet,
				OwnerName: caller.DisplayName,
				PetType:   strings.TrimSpace(req.PetType),
				Age:       string(req.Age),
				Gender:    strings.TrimSpace(req.Gender),
				Address:   strings.TrimSpace(req.Address),
				VisitDate: req.Date,
			})
			return err
		}); err != nil {
			return err
		}

		stage = "appointment"
		appt = newAppointment(caller, b, doctor, patient, day, reportID)
		if err := step(ctx, "scheduling.createAppointment", func(ctx context.Context) error {
			return s.appointments.Create(ctx, appt)
		}); err != nil {
			return err
		}

		stage = "transaction"
		method := strings.TrimSpace(req.PaymentMethod)
		if method == "" {
			method = s.paymentMethod
		}
		service := doctor.Speciality
		if service == "" {
			service = billing.DefaultService
		}
		txn = &billing.Transaction{
			UserID:        caller.UserID,
			AppointmentID: &appt.ID,
			DoctorName:    doctor.Name,
			Service:       service,
			Amount:        doctor.Fee,
			Status:        billing.StatusPaid,
			Method:        method,
		}
		return step(ctx, "scheduling.recordTransaction", func(ctx context.Context) error {
			return s.ledger.RecordTransaction(ctx, txn)
		})
	})
	if err != nil {
		s.abandon(ctx, caller, stage, patient, reportID, err)
		return nil, bookingFailed(err)
	}

	s.metrics.ObservePatient(created)
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("invoice_id", txn.InvoiceID).
		Str("patient_id", patient.PatientID).
		Bool("patient_created", created).
		Str("doctor_id", doctor.ID.String()).
		Str("user_id", caller.UserID).
		Msg("appointment booked")
	return appt, nil
}

func newAppointment(caller Caller, b *booking, doctor *identity.Doctor, patient *identity.Patient, day, reportID string) *Appointment {
	req := b.req
	a := &Appointment{
		ID:               uuid.New(),
		UserID:           caller.UserID,
		DoctorID:         doctor.ID,
		DoctorName:       doctor.Name,
		DoctorSpeciality: doctor.Speciality,
		DoctorImage:      doctor.Image,
		Fee:              doctor.Fee,
		PatientRef:       patient.ID,
		PatientName:      b.patientName,
		Age:              string(req.Age),
		Gender:           strings.TrimSpace(req.Gender),
		Phone:            req.Phone,
		Address:          strings.TrimSpace(req.Address),
		BookingType:      b.bookingType,
		Problem:          strings.TrimSpace(req.Problem),
		Symptoms:         strings.TrimSpace(req.Symptoms),
		MedicalReportID:  reportID,
		Date:             req.Date,
		Day:              day,
		Time:             req.Time,
		Status:           StatusScheduled,
		PaymentStatus:    PaymentPaid,
	}
	if b.bookingType == BookingPet {
		a.PetName = strings.TrimSpace(req.PetName)
		a.PetType = strings.TrimSpace(req.PetType)
	}
	return a
}

// abandon logs a failed booking and deletes the medical report uploaded for
// it. Without an atomic transaction the writes before stage are kept.
func (s *Service) abandon(ctx context.Context, caller Caller, stage string, patient *identity.Patient, reportID string, cause error) {
	if s.tx.Atomic() {
		s.logger.Error().Err(cause).
			Str("user_id", caller.UserID).
			Str("failed_at", stage).
			Msg("booking rolled back")
	} else {
		ev := s.logger.Warn().Err(cause).
			Str("user_id", caller.UserID).
			Str("failed_at", stage)
		if patient != nil {
			ev = ev.Str("patient_id", patient.PatientID)
		}
		ev.Msg("booking failed without a transaction, earlier writes were kept")
	}

	if reportID == "" {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), reportID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("blob_id", reportID).Msg("delete medical report of failed booking")
	}
}

// BookIdempotent books under a client Idempotency-Key. The first request
// with a key books; a repeat after it completed returns the same appointment
// with replayed set; a repeat while it is still running gets
// ErrBookingInProgress. An empty key, or a service without an idempotency
// store, books directly.
func (s *Service) BookIdempotent(ctx context.Context, caller Caller, key string, req *BookingRequest) (*Appointment, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" || s.idem == nil {
		appt, err := s.Book(ctx, caller, req)
		return appt, false, err
	}

	start := time.Now()
	observe := func(outcome string) {
		s.metrics.ObserveBooking(outcome, time.Since(start).Seconds())
	}
	if err := idempotency.ValidateKey(key); err != nil {
		observe(metrics.OutcomeValidation)
		return nil, false, invalid("Idempotency-Key: %v", err)
	}
	if caller.UserID == "" {
		observe(metrics.OutcomeValidation)
		return nil, false, invalid("caller identity is required")
	}

	scoped := idempotency.Key("booking", caller.UserID, key)
	res, err := s.idem.Begin(ctx, scoped)
	if errors.Is(err, idempotency.ErrInProgress) {
		observe(metrics.OutcomeInProgress)
		return nil, false, ErrBookingInProgress
	}
	if err != nil {
		observe(metrics.OutcomeError)
		return nil, false, bookingFailed(err)
	}

	if !res.Acquired {
		appt, err := s.replay(ctx, res.ResultID)
		if err != nil {
			observe(metrics.OutcomeError)
			return nil, false, bookingFailed(err)
		}
		observe(metrics.OutcomeReplayed)
		s.logger.Info().
			Str("appointment_id", appt.ID.String()).
			Str("user_id", caller.UserID).
			Msg("booking replayed")
		return appt, true, nil
	}

	appt, err := s.Book(ctx, caller, req)
	if err != nil {
		if relErr := s.idem.Release(context.WithoutCancel(ctx), scoped); relErr != nil {
			s.logger.Warn().Err(relErr).Str("user_id", caller.UserID).Msg("release idempotency key")
		}
		return nil, false, err
	}
	if err := s.idem.Complete(context.WithoutCancel(ctx), scoped, appt.ID.String()); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("record idempotency result; a retry with this key will be rejected until the reservation expires")
	}
	return appt, false, nil
}

func (s *Service) replay(ctx context.Context, resultID string) (*Appointment, error) {
	id, err := uuid.Parse(resultID)
	if err != nil {
		return nil, fmt.Errorf("stored idempotency result %q: %w", resultID, err)
	}
	return s.appointments.GetByID(ctx, id)
}
