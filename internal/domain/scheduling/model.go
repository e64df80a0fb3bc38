package scheduling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vetdesk/clinic/internal/domain/identity"
	"github.com/vetdesk/clinic/internal/platform/blobstore"
)

const (
	StatusScheduled = "Scheduled"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"

	PaymentPending = "Pending"
	PaymentPaid    = "Paid"

	BookingMyself = "myself"
	BookingPet    = "pet"
	BookingOther  = "other"

	dateLayout = "2006-01-02"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrDoctorNotFound aborts a booking before anything is written.
	ErrDoctorNotFound    = identity.ErrDoctorNotFound
	ErrBookingInProgress = errors.New("a booking with this idempotency key is still in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("not allowed to change this appointment")
	// errStatusChanged is returned by repositories when the conditional
	// status update matched no row.
	errStatusChanged = errors.New("appointment status changed concurrently")
)

// transitions lists the statuses each status may move to. Completed and
// Cancelled are terminal.
var transitions = map[string][]string{
	StatusScheduled: {StatusCompleted, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Appointment maps to the appointment table. The doctor and patient fields
// are copies taken at booking time; later edits to the doctor or patient
// never reach them.
type Appointment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	DoctorID         uuid.UUID `db:"doctor_id" json:"doctorId"`
	DoctorName       string    `db:"doctor_name" json:"doctorName"`
	DoctorSpeciality string    `db:"doctor_speciality" json:"doctorSpeciality"`
	DoctorImage      string    `db:"doctor_image" json:"doctorImage,omitempty"`
	Fee              float64   `db:"fee" json:"fee"`
	PatientRef       uuid.UUID `db:"patient_ref" json:"patientRef"`
	PatientName      string    `db:"patient_name" json:"patientName"`
	Age              string    `db:"age" json:"age,omitempty"`
	Gender           string    `db:"gender" json:"gender,omitempty"`
	Phone            string    `db:"phone" json:"phone"`
	Address          string    `db:"address" json:"address,omitempty"`
	BookingType      string    `db:"booking_type" json:"type"`
	PetName          string    `db:"pet_name" json:"petName,omitempty"`
	PetType          string    `db:"pet_type" json:"petType,omitempty"`
	Problem          string    `db:"problem" json:"problem,omitempty"`
	Symptoms         string    `db:"symptoms" json:"symptoms,omitempty"`
	MedicalReportID  string    `db:"medical_report_id" json:"medicalReportId,omitempty"`
	Date             string    `db:"date" json:"date"`
	Day              string    `db:"day" json:"day"`
	Time             string    `db:"time" json:"time"`
	Status           string    `db:"status" json:"status"`
	PaymentStatus    string    `db:"payment_status" json:"paymentStatus"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Caller is the authenticated user a request runs as. Staff may act on any
// appointment; everyone else only on their own.
type Caller struct {
	UserID      string
	DisplayName string
	Staff       bool
}

// Age accepts a JSON number or string and keeps it as text.
type Age string

func (a *Age) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Age(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("age must be a number or a string")
	}
	*a = Age(n.String())
	return nil
}

// BookingRequest is the body of POST /appointments. Doctor exists only to
// reject clients that still embed the doctor object.
type BookingRequest struct {
	DoctorID      string          `json:"doctorId"`
	Doctor        json.RawMessage `json:"doctor,omitempty"`
	PatientName   string          `json:"patientName"`
	Name          string          `json:"name"`
	Age           Age             `json:"age"`
	Gender        string          `json:"gender"`
	Phone         string          `json:"phone"`
	Address       string          `json:"address"`
	Type          string          `json:"type"`
	PetName       string          `json:"petName"`
	PetType       string          `json:"petType"`
	Problem       string          `json:"problem"`
	Symptoms      string          `json:"symptoms"`
	MedicalReport string          `json:"medicalReport"`
	Date          string          `json:"date"`
	Time          string          `json:"time"`
	Day           string          `json:"day"`
	PaymentMethod string          `json:"paymentMethod"`
}

// ValidationError rejects a booking before anything is written.
type ValidationError struct {
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required field(s): " + strings.Join(e.Missing, ", ")
	}
	return e.Reason
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// booking is a validated, normalized BookingRequest.
type booking struct {
	doctorID    uuid.UUID
	patientName string
	bookingType string
	report      []byte
	reportType  string
	req         *BookingRequest
}

func (r *BookingRequest) validate() (*booking, error) {
	if len(bytes.TrimSpace(r.Doctor)) > 0 && !bytes.Equal(bytes.TrimSpace(r.Doctor), []byte("null")) {
		return nil, invalid("embedded doctor object is not supported, send doctorId")
	}

	b := &booking{req: r, bookingType: strings.ToLower(strings.TrimSpace(r.Type))}
	if b.bookingType == "" {
		b.bookingType = BookingMyself
	}
	if b.bookingType != BookingMyself && b.bookingType != BookingPet && b.bookingType != BookingOther {
		return nil, invalid("type must be one of myself, pet, other")
	}

	b.patientName = strings.TrimSpace(r.PatientName)
	if b.patientName == "" {
		b.patientName = strings.TrimSpace(r.Name)
	}
	if b.patientName == "" && b.bookingType == BookingPet {
		b.patientName = strings.TrimSpace(r.PetName)
	}
	r.Phone = strings.TrimSpace(r.Phone)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)

	var missing []string
	if strings.TrimSpace(r.DoctorID) == "" {
		missing = append(missing, "doctorId")
	}
	if b.patientName == "" {
		if b.bookingType == BookingPet {
			missing = append(missing, "petName")
		} else {
			missing = append(missing, "patientName")
		}
	}
	if r.Phone == "" {
		missing = append(missing, "phone")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	id, err := uuid.Parse(strings.TrimSpace(r.DoctorID))
	if err != nil {
		return nil, invalid("doctorId %q is not a valid id", r.DoctorID)
	}
	b.doctorID = id

	if _, err := parseDate(r.Date); err != nil {
		return nil, invalid("date must be YYYY-MM-DD or an RFC 3339 timestamp")
	}

	if strings.TrimSpace(r.MedicalReport) != "" {
		data, contentType, err := blobstore.DecodeAttachment(r.MedicalReport)
		if err != nil {
			return nil, invalid("medicalReport: %v", err)
		}
		if len(data) > blobstore.MaxFileSize {
			return nil, invalid("medicalReport: %v", blobstore.ErrFileTooLarge)
		}
		b.report, b.reportType = data, blobstore.StoredContentType(contentType)
	}
	return b, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Weekday returns the English weekday name of date. A plain calendar date
// names its own day; a timestamp is first converted into loc.
func Weekday(date string, loc *time.Location) (string, error) {
	if t, err := time.Parse(dateLayout, date); err == nil {
		return t.Weekday().String(), nil
	}
	t, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return "", err
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Weekday().String(), nil
}

// Filter narrows ListAppointments. Empty fields match everything.
type Filter struct {
	UserID   string
	DoctorID *uuid.UUID
	Status   string
	Date     string
}
