package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
	// ErrDoctorInUse is returned when deleting a doctor that appointments
	// still reference.
	ErrDoctorInUse = errors.New("doctor has appointments")
	// ErrDuplicatePatientID signals a collision on the display id; the
	// caller retries with a fresh one.
	ErrDuplicatePatientID = errors.New("duplicate patient id")
	ErrValidation         = errors.New("validation failed")
)

const (
	DefaultRating = 4.5

	PatientTypeHuman = "human"
	PatientTypePet   = "pet"

	PatientStatusActive   = "active"
	PatientStatusInactive = "inactive"

	PatientIDPrefix = "PT"
)

// Weekdays are the availability tokens a doctor may list, in calendar order.
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Doctor maps to the doctor table.
type Doctor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Speciality   string    `db:"speciality" json:"speciality"`
	Fee          float64   `db:"fee" json:"fee"`
	Experience   string    `db:"experience" json:"experience,omitempty"`
	Rating       float64   `db:"rating" json:"rating"`
	Image        string    `db:"image" json:"image,omitempty"`
	Availability []string  `db:"availability" json:"availability"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate checks the fields an admin must supply and normalizes the
// availability tokens. A zero rating becomes DefaultRating.
func (d *Doctor) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Speciality = strings.TrimSpace(d.Speciality)
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if d.Speciality == "" {
		return fmt.Errorf("%w: speciality is required", ErrValidation)
	}
	if d.Fee < 0 {
		return fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	if d.Rating < 0 || d.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 0 and 5", ErrValidation)
	}
	if d.Rating == 0 {
		d.Rating = DefaultRating
	}
	days, err := NormalizeAvailability(d.Availability)
	if err != nil {
		return err
	}
	d.Availability = days
	return nil
}

// NormalizeAvailability maps weekday names in any case ("monday", "MON")
// onto the three-letter tokens, drops duplicates and returns them in
// calendar order.
func NormalizeAvailability(days []string) ([]string, error) {
	seen := make(map[string]bool, len(days))
	for _, raw := range days {
		tok, ok := weekdayToken(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrValidation, raw)
		}
		seen[tok] = true
	}
	out := make([]string, 0, len(seen))
	for _, w := range Weekdays {
		if seen[w] {
			out = append(out, w)
		}
	}
	return out, nil
}

func weekdayToken(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if s == full || s == full[:3] {
			return d.String()[:3], true
		}
	}
	return "", false
}

// Patient maps to the patient table. (Name, Phone) identifies a patient for
// deduplication.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID string    `db:"patient_id" json:"patientId"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"type" json:"type"`
	OwnerName string    `db:"owner_name" json:"ownerName,omitempty"`
	Breed     string    `db:"breed" json:"breed,omitempty"`
	Age       string    `db:"age" json:"age,omitempty"`
	Gender    string    `db:"gender" json:"gender,omitempty"`
	Phone     string    `db:"phone" json:"phone"`
	Address   string    `db:"address" json:"address,omitempty"`
	LastVisit string    `db:"last_visit" json:"lastVisit,omitempty"`
	Paid      float64   `db:"paid" json:"paid"`
	Image     string    `db:"image" json:"image,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// PatientVisit carries the details a booking submits about the patient.
// Everything except VisitDate is only used when the patient is new.
type PatientVisit struct {
	Name      string
	Phone     string
	Pet       bool
	OwnerName string
	PetType   string
	Age       string
	Gender    string
	Address   string
	VisitDate string
}

// NewPatientID returns a display id: PT, the last six digits of the epoch
// millisecond timestamp and four random hex digits.
func NewPatientID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s%06d%s", PatientIDPrefix, now.UnixMilli()%1_000_000, strings.ToUpper(hex.EncodeToString(u[:2])))
}

// PatientFilter narrows ListPatients. Empty fields match everything.
type PatientFilter struct {
	Type   string
	Status string
	Phone  string
}

// DoctorFilter narrows ListDoctors.
type DoctorFilter struct {
	Speciality string
	Day        string
}
