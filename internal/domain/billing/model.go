package billing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicateInvoice is returned by repositories when the invoice id is
	// already taken.
	ErrDuplicateInvoice = errors.New("duplicate invoice id")
	ErrValidation       = errors.New("validation failed")
)

const (
	StatusPaid     = "Paid"
	StatusPending  = "Pending"
	StatusRefunded = "Refunded"
	StatusFailed   = "Failed"

	InvoicePrefix = "INV-"

	// DefaultService labels a transaction whose doctor has no speciality.
	DefaultService = "Consultation"
)

var validStatuses = map[string]bool{
	StatusPaid: true, StatusPending: true, StatusRefunded: true, StatusFailed: true,
}

// Transaction maps to the payment_transaction table. Amount is copied from
// the doctor's fee when the transaction is recorded and never recomputed.
type Transaction struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	InvoiceID     string     `db:"invoice_id" json:"invoiceId"`
	UserID        string     `db:"user_id" json:"userId"`
	AppointmentID *uuid.UUID `db:"appointment_id" json:"appointmentId,omitempty"`
	DoctorName    string     `db:"doctor_name" json:"doctorName"`
	Service       string     `db:"service" json:"service"`
	Amount        float64    `db:"amount" json:"amount"`
	Status        string     `db:"status" json:"status"`
	Method        string     `db:"method" json:"method"`
	Date          time.Time  `db:"date" json:"date"`
}

// Validate fills defaults and checks required fields.
func (t *Transaction) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if t.DoctorName == "" {
		return fmt.Errorf("%w: doctorName is required", ErrValidation)
	}
	if t.Method == "" {
		return fmt.Errorf("%w: method is required", ErrValidation)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if t.Service == "" {
		t.Service = DefaultService
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if !validStatuses[t.Status] {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, t.Status)
	}
	return nil
}

// NewInvoiceID returns INV-<epoch ms>-<8 random hex digits>.
func NewInvoiceID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s%d-%s", InvoicePrefix, now.UnixMilli(), hex.EncodeToString(u[:4]))
}

// Filter narrows ListTransactions. Empty fields match everything.
type Filter struct {
	UserID string
	Status string
}
