package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vetdesk/clinic/internal/platform/mongostore"
)

type appointmentDoc struct {
	ID               string    `bson:"_id"`
	UserID           string    `bson:"userId"`
	DoctorID         string    `bson:"doctorId"`
	DoctorName       string    `bson:"doctorName"`
	DoctorSpeciality string    `bson:"doctorSpeciality"`
	DoctorImage      string    `bson:"doctorImage"`
	Fee              float64   `bson:"fee"`
	PatientRef       string    `bson:"patientRef"`
	PatientName      string    `bson:"patientName"`
	Age              string    `bson:"age"`
	Gender           string    `bson:"gender"`
	Phone            string    `bson:"phone"`
	Address          string    `bson:"address"`
	BookingType      string    `bson:"type"`
	PetName          string    `bson:"petName"`
	PetType          string    `bson:"petType"`
	Problem          string    `bson:"problem"`
	Symptoms         string    `bson:"symptoms"`
	MedicalReportID  string    `bson:"medicalReportId"`
	Date             string    `bson:"date"`
	Day              string    `bson:"day"`
	Time             string    `bson:"time"`
	Status           string    `bson:"status"`
	PaymentStatus    string    `bson:"paymentStatus"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

func newAppointmentDoc(a *Appointment) appointmentDoc {
	return appointmentDoc{
		ID: a.ID.String(), UserID: a.UserID, DoctorID: a.DoctorID.String(),
		DoctorName: a.DoctorName, DoctorSpeciality: a.DoctorSpeciality, DoctorImage: a.DoctorImage,
		Fee: a.Fee, PatientRef: a.PatientRef.String(), PatientName: a.PatientName, Age: a.Age,
		Gender: a.Gender, Phone: a.Phone, Address: a.Address, BookingType: a.BookingType,
		PetName: a.PetName, PetType: a.PetType, Problem: a.Problem, Symptoms: a.Symptoms,
		MedicalReportID: a.MedicalReportID, Date: a.Date, Day: a.Day, Time: a.Time,
		Status: a.Status, PaymentStatus: a.PaymentStatus, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (doc appointmentDoc) toModel() (*Appointment, error) {
	var ids [3]uuid.UUID
	for i, raw := range []string{doc.ID, doc.DoctorID, doc.PatientRef} {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("appointment %q: invalid id %q: %w", doc.ID, raw, err)
		}
		ids[i] = id
	}
	return &Appointment{
		ID: ids[0], UserID: doc.UserID, DoctorID: ids[1], DoctorName: doc.DoctorName,
		DoctorSpeciality: doc.DoctorSpeciality, DoctorImage: doc.DoctorImage, Fee: doc.Fee,
		PatientRef: ids[2], PatientName: doc.PatientName, Age: doc.Age, Gender: doc.Gender,
		Phone: doc.Phone, Address: doc.Address, BookingType: doc.BookingType, PetName: doc.PetName,
		PetType: doc.PetType, Problem: doc.Problem, Symptoms: doc.Symptoms,
		MedicalReportID: doc.MedicalReportID, Date: doc.Date, Day: doc.Day, Time: doc.Time,
		Status: doc.Status, PaymentStatus: doc.PaymentStatus, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}, nil
}

type appointmentRepoMongo struct {
	coll *mongo.Collection
}

func NewAppointmentRepoMongo(db *mongo.Database) AppointmentRepository {
	return &appointmentRepoMongo{coll: db.Collection(mongostore.Appointments)}
}

func (r *appointmentRepoMongo) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if _, err := r.coll.InsertOne(ctx, newAppointmentDoc(a)); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var doc appointmentDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if mongostore.IsNotFound(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return doc.toModel()
}

func (r *appointmentRepoMongo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*Appointment, error) {
	var doc appointmentDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if mongostore.IsNotFound(err) {
		return nil, errStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return doc.toModel()
}

func (r *appointmentRepoMongo) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.DoctorID != nil {
		filter["doctorId"] = f.DoctorID.String()
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Date != "" {
		filter["date"] = f.Date
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	cur, err := r.coll.Find(ctx, filter, mongostore.Page("createdAt", limit, offset))
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer cur.Close(ctx)

	var items []*Appointment
	for cur.Next(ctx) {
		var doc appointmentDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, err
		}
		a, err := doc.toModel()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, int(total), cur.Err()
}
