// Package mongostore connects the server to MongoDB, owns the collection
// names and indexes, and runs multi-document transactions for the booking
// workflow.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vetdesk/clinic/internal/platform/db"
)

const (
	Doctors      = "doctors"
	Patients     = "patients"
	Appointments = "appointments"
	Transactions = "transactions"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName("clinic-server").
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// TxRunner returns a session-transaction runner, or db.NoTx when transactions
// are disabled (standalone servers without a replica set).
func (s *Store) TxRunner(enabled bool) db.TxRunner {
	if !enabled {
		return db.NoTx{}
	}
	return &TxRunner{client: s.client}
}

// TxRunner runs a function inside a MongoDB session transaction. The
// mongo.SessionContext handed to fn is a context.Context, so repositories
// join the transaction without any extra plumbing.
type TxRunner struct {
	client *mongo.Client
}

func (r *TxRunner) Atomic() bool { return true }

func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the indexes the repositories rely on, including the
// unique (name, phone) dedup key and the unique invoice id.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for coll, models := range IndexModels() {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func IndexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		Doctors: {
			{Keys: bson.D{{Key: "speciality", Value: 1}}},
		},
		Patients: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}, {Key: "phone", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("patient_name_phone_key"),
			},
			{
				Keys:    bson.D{{Key: "patientId", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("patient_patient_id_key"),
			},
		},
		Appointments: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "date", Value: 1}}},
		},
		Transactions: {
			{
				Keys:    bson.D{{Key: "invoiceId", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("transaction_invoice_id_key"),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}}},
		},
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// Page returns find options for a limit/offset page sorted by field, newest
// first.
func Page(sortField string, limit, offset int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: sortField, Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
}
