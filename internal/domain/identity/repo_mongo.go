package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vetdesk/clinic/internal/platform/mongostore"
)

// -- Doctor Repository --

type doctorDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Speciality   string    `bson:"speciality"`
	Fee          float64   `bson:"fee"`
	Experience   string    `bson:"experience"`
	Rating       float64   `bson:"rating"`
	Image        string    `bson:"image"`
	Availability []string  `bson:"availability"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func newDoctorDoc(d *Doctor) doctorDoc {
	avail := d.Availability
	if avail == nil {
		avail = []string{}
	}
	return doctorDoc{
		ID: d.ID.String(), Name: d.Name, Speciality: d.Speciality, Fee: d.Fee,
		Experience: d.Experience, Rating: d.Rating, Image: d.Image, Availability: avail,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

func (doc doctorDoc) toModel() (*Doctor, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("doctor %q: invalid id: %w", doc.ID, err)
	}
	avail := doc.Availability
	if avail == nil {
		avail = []string{}
	}
	return &Doctor{
		ID: id, Name: doc.Name, Speciality: doc.Speciality, Fee: doc.Fee,
		Experience: doc.Experience, Rating: doc.Rating, Image: doc.Image, Availability: avail,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}, nil
}

type doctorRepoMongo struct {
	coll *mongo.Collection
}

func NewDoctorRepoMongo(db *mongo.Database) DoctorRepository {
	return &doctorRepoMongo{coll: db.Collection(mongostore.Doctors)}
}

func (r *doctorRepoMongo) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	if _, err := r.coll.InsertOne(ctx, newDoctorDoc(d)); err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var doc doctorDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if mongostore.IsNotFound(err) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return doc.toModel()
}

func (r *doctorRepoMongo) Update(ctx context.Context, d *Doctor) error {
	d.UpdatedAt = time.Now().UTC()
	doc := newDoctorDoc(d)
	var stored doctorDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": doc.ID},
		bson.M{"$set": bson.M{
			"name": doc.Name, "speciality": doc.Speciality, "fee": doc.Fee,
			"experience": doc.Experience, "rating": doc.Rating, "image": doc.Image,
			"availability": doc.Availability, "updatedAt": doc.UpdatedAt,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&stored)
	if mongostore.IsNotFound(err) {
		return ErrDoctorNotFound
	}
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	d.CreatedAt = stored.CreatedAt
	return nil
}

// Delete refuses to remove a doctor that appointments still reference, the
// same rule the PostgreSQL foreign key enforces.
func (r *doctorRepoMongo) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := r.coll.Database().Collection(mongostore.Appointments).
		CountDocuments(ctx, bson.M{"doctorId": id.String()}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if n > 0 {
		return ErrDoctorInUse
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoMongo) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	filter := bson.M{}
	if f.Speciality != "" {
		filter["speciality"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.Speciality) + "$", "$options": "i"}
	}
	if f.Day != "" {
		filter["availability"] = f.Day
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Doctor
	for cur.Next(ctx) {
		var doc doctorDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		d, err := doc.toModel()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, int(total), cur.Err()
}

// -- Patient Repository --

type patientDoc struct {
	ID        string    `bson:"_id"`
	PatientID string    `bson:"patientId"`
	Name      string    `bson:"name"`
	Type      string    `bson:"type"`
	OwnerName string    `bson:"ownerName"`
	Breed     string    `bson:"breed"`
	Age       string    `bson:"age"`
	Gender    string    `bson:"gender"`
	Phone     string    `bson:"phone"`
	Address   string    `bson:"address"`
	LastVisit string    `bson:"lastVisit"`
	Paid      float64   `bson:"paid"`
	Image     string    `bson:"image"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (doc patientDoc) toModel() (*Patient, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("patient %q: invalid id: %w", doc.ID, err)
	}
	return &Patient{
		ID: id, PatientID: doc.PatientID, Name: doc.Name, Type: doc.Type,
		OwnerName: doc.OwnerName, Breed: doc.Breed, Age: doc.Age, Gender: doc.Gender,
		Phone: doc.Phone, Address: doc.Address, LastVisit: doc.LastVisit, Paid: doc.Paid,
		Image: doc.Image, Status: doc.Status, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}, nil
}

type patientRepoMongo struct {
	coll *mongo.Collection
}

func NewPatientRepoMongo(db *mongo.Database) PatientRepository {
	return &patientRepoMongo{coll: db.Collection(mongostore.Patients)}
}

// UpsertVisit matches on (name, phone). The unique index on that pair makes
// a concurrent first insert fail with E11000 for the loser; retrying once
// then finds the winner's document.
func (r *patientRepoMongo) UpsertVisit(ctx context.Context, p *Patient) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	candidate := p.ID.String()
	now := time.Now().UTC()

	filter := bson.M{"name": p.Name, "phone": p.Phone}
	update := bson.M{
		"$set": bson.M{"lastVisit": p.LastVisit, "updatedAt": now},
		"$setOnInsert": bson.M{
			"_id": candidate, "patientId": p.PatientID, "type": p.Type,
			"ownerName": p.OwnerName, "breed": p.Breed, "age": p.Age, "gender": p.Gender,
			"address": p.Address, "paid": p.Paid, "image": p.Image, "status": p.Status,
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc patientDoc
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
		if !mongostore.IsDuplicateKey(err) {
			break
		}
		if strings.Contains(err.Error(), "patient_patient_id_key") {
			return false, ErrDuplicatePatientID
		}
	}
	if err != nil {
		return false, fmt.Errorf("upsert patient: %w", err)
	}
	stored, err := doc.toModel()
	if err != nil {
		return false, err
	}
	*p = *stored
	return doc.ID == candidate, nil
}

func (r *patientRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var doc patientDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if mongostore.IsNotFound(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return doc.toModel()
}

func (r *patientRepoMongo) List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	filter := bson.M{}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Phone != "" {
		filter["phone"] = f.Phone
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	cur, err := r.coll.Find(ctx, filter, mongostore.Page("createdAt", limit, offset))
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Patient
	for cur.Next(ctx) {
		var doc patientDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		p, err := doc.toModel()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, int(total), cur.Err()
}
