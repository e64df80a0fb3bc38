package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vetdesk/clinic/internal/platform/db"
)

type transactionRepoPG struct {
	pool db.Queryable
}

func NewTransactionRepoPG(pool db.Queryable) TransactionRepository {
	return &transactionRepoPG{pool: pool}
}

func (r *transactionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const txnCols = `id, invoice_id, user_id, appointment_id, doctor_name, service, amount, status, method, date`

func (r *transactionRepoPG) scanTxn(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.InvoiceID, &t.UserID, &t.AppointmentID, &t.DoctorName,
		&t.Service, &t.Amount, &t.Status, &t.Method, &t.Date)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepoPG) Create(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := db.WithSavepoint(ctx, func(ctx context.Context) error {
		return r.conn(ctx).QueryRow(ctx, `
			INSERT INTO payment_transaction (id, invoice_id, user_id, appointment_id, doctor_name,
				service, amount, status, method)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING date`,
			t.ID, t.InvoiceID, t.UserID, t.AppointmentID, t.DoctorName,
			t.Service, t.Amount, t.Status, t.Method,
		).Scan(&t.Date)
	})
	if db.IsUniqueViolation(err, "payment_transaction_invoice_id_key") {
		return ErrDuplicateInvoice
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepoPG) GetByInvoiceID(ctx context.Context, invoiceID string) (*Transaction, error) {
	t, err := r.scanTxn(r.conn(ctx).QueryRow(ctx,
		`SELECT `+txnCols+` FROM payment_transaction WHERE invoice_id = $1`, invoiceID))
	if db.IsNoRows(err) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *transactionRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.UserID != "" {
		where += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payment_transaction`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := `SELECT ` + txnCols + ` FROM payment_transaction` + where + fmt.Sprintf(` ORDER BY date DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var items []*Transaction
	for rows.Next() {
		t, err := r.scanTxn(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
