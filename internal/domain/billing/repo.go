package billing

import "context"

type TransactionRepository interface {
	// Create appends t. It returns ErrDuplicateInvoice when t.InvoiceID is
	// already stored.
	Create(ctx context.Context, t *Transaction) error
	GetByInvoiceID(ctx context.Context, invoiceID string) (*Transaction, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error)
}
