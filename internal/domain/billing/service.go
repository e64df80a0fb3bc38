package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// invoiceAttempts bounds how often a colliding invoice id is regenerated.
const invoiceAttempts = 3

type Service struct {
	txns TransactionRepository
	now  func() time.Time
}

func NewService(txns TransactionRepository) *Service {
	return &Service{txns: txns, now: time.Now}
}

// RecordTransaction appends t to the ledger under a fresh invoice id. Nothing
// existing is looked up or merged.
func (s *Service) RecordTransaction(ctx context.Context, t *Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		t.ID = uuid.New()
		t.InvoiceID = NewInvoiceID(s.now())
		err := s.txns.Create(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateInvoice) || attempt == invoiceAttempts {
			return fmt.Errorf("record transaction: %w", err)
		}
	}
}

func (s *Service) GetTransactionByInvoice(ctx context.Context, invoiceID string) (*Transaction, error) {
	return s.txns.GetByInvoiceID(ctx, invoiceID)
}

func (s *Service) ListTransactions(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: invalid status %q", ErrValidation, f.Status)
	}
	return s.txns.List(ctx, f, limit, offset)
}
