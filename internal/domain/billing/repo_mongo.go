package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vetdesk/clinic/internal/platform/mongostore"
)

type transactionDoc struct {
	ID            string    `bson:"_id"`
	InvoiceID     string    `bson:"invoiceId"`
	UserID        string    `bson:"userId"`
	AppointmentID string    `bson:"appointmentId,omitempty"`
	DoctorName    string    `bson:"doctorName"`
	Service       string    `bson:"service"`
	Amount        float64   `bson:"amount"`
	Status        string    `bson:"status"`
	Method        string    `bson:"method"`
	Date          time.Time `bson:"date"`
}

func (doc transactionDoc) toModel() (*Transaction, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("transaction %q: invalid id: %w", doc.ID, err)
	}
	t := &Transaction{
		ID: id, InvoiceID: doc.InvoiceID, UserID: doc.UserID, DoctorName: doc.DoctorName,
		Service: doc.Service, Amount: doc.Amount, Status: doc.Status, Method: doc.Method, Date: doc.Date,
	}
	if doc.AppointmentID != "" {
		apptID, err := uuid.Parse(doc.AppointmentID)
		if err != nil {
			return nil, fmt.Errorf("transaction %q: invalid appointment id: %w", doc.ID, err)
		}
		t.AppointmentID = &apptID
	}
	return t, nil
}

type transactionRepoMongo struct {
	coll *mongo.Collection
}

func NewTransactionRepoMongo(db *mongo.Database) TransactionRepository {
	return &transactionRepoMongo{coll: db.Collection(mongostore.Transactions)}
}

func (r *transactionRepoMongo) Create(ctx context.Context, t *Transaction) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.Date = time.Now().UTC()
	doc := transactionDoc{
		ID: t.ID.String(), InvoiceID: t.InvoiceID, UserID: t.UserID, DoctorName: t.DoctorName,
		Service: t.Service, Amount: t.Amount, Status: t.Status, Method: t.Method, Date: t.Date,
	}
	if t.AppointmentID != nil {
		doc.AppointmentID = t.AppointmentID.String()
	}
	_, err := r.coll.InsertOne(ctx, doc)
	if mongostore.IsDuplicateKey(err) {
		return ErrDuplicateInvoice
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *transactionRepoMongo) GetByInvoiceID(ctx context.Context, invoiceID string) (*Transaction, error) {
	var doc transactionDoc
	err := r.coll.FindOne(ctx, bson.M{"invoiceId": invoiceID}).Decode(&doc)
	if mongostore.IsNotFound(err) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return doc.toModel()
}

func (r *transactionRepoMongo) List(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	cur, err := r.coll.Find(ctx, filter, mongostore.Page("date", limit, offset))
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Transaction
	for cur.Next(ctx) {
		var doc transactionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		t, err := doc.toModel()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, int(total), cur.Err()
}
