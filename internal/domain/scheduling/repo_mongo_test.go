package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func appointmentBSON(id, doctorID uuid.UUID, status string) bson.D {
	now := time.Now().UTC()
	return bson.D{
		{Key: "_id", Value: id.String()}, {Key: "userId", Value: "u1"}, {Key: "doctorId", Value: doctorID.String()},
		{Key: "doctorName", Value: "Dr. Mehta"}, {Key: "fee", Value: 500.0},
		{Key: "patientRef", Value: uuid.NewString()}, {Key: "patientName", Value: "Asha"},
		{Key: "phone", Value: "9000000001"}, {Key: "type", Value: BookingMyself},
		{Key: "date", Value: "2024-01-01"}, {Key: "day", Value: "Monday"}, {Key: "time", Value: "10:00"},
		{Key: "status", Value: status}, {Key: "paymentStatus", Value: PaymentPaid},
		{Key: "createdAt", Value: now}, {Key: "updatedAt", Value: now},
	}
}

func TestAppointmentRepoMongo_Create(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserted", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		a := &Appointment{UserID: "u1", DoctorID: uuid.New(), PatientRef: uuid.New(), PatientName: "Asha",
			Phone: "9000000001", Date: "2024-01-01", Time: "10:00", Status: StatusScheduled, PaymentStatus: PaymentPaid}
		if err := repo.Create(context.Background(), a); err != nil {
			mt.Fatalf("Create: %v", err)
		}
		if a.ID == uuid.Nil || a.CreatedAt.IsZero() {
			mt.Errorf("unexpected appointment: %+v", a)
		}
		if got := mt.GetStartedEvent().CommandName; got != "insert" {
			mt.Errorf("command = %q, want insert", got)
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Code: 121, Message: "Document failed validation"}))

		a := &Appointment{UserID: "u1", DoctorID: uuid.New(), PatientRef: uuid.New()}
		if err := repo.Create(context.Background(), a); err == nil {
			mt.Fatal("expected an insert error")
		}
	})
}

func TestAppointmentRepoMongo_GetByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		id, doctorID := uuid.New(), uuid.New()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.appointments", mtest.FirstBatch,
			appointmentBSON(id, doctorID, StatusScheduled)))

		a, err := repo.GetByID(context.Background(), id)
		if err != nil {
			mt.Fatalf("GetByID: %v", err)
		}
		if a.ID != id || a.DoctorID != doctorID || a.BookingType != BookingMyself {
			mt.Errorf("unexpected appointment: %+v", a)
		}
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.appointments", mtest.FirstBatch))

		if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
			mt.Fatalf("expected ErrAppointmentNotFound, got %v", err)
		}
	})

	mt.Run("corrupt id", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		doc := appointmentBSON(uuid.New(), uuid.New(), StatusScheduled)
		doc[2].Value = "not-a-uuid"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.appointments", mtest.FirstBatch, doc))

		if _, err := repo.GetByID(context.Background(), uuid.New()); err == nil {
			mt.Fatal("expected a decode error for an invalid doctor id")
		}
	})
}

func TestAppointmentRepoMongo_UpdateStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("transitioned", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		id, doctorID := uuid.New(), uuid.New()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: appointmentBSON(id, doctorID, StatusCompleted)}))

		a, err := repo.UpdateStatus(context.Background(), id, StatusScheduled, StatusCompleted)
		if err != nil {
			mt.Fatalf("UpdateStatus: %v", err)
		}
		if a.Status != StatusCompleted || a.DoctorID != doctorID {
			mt.Errorf("unexpected appointment: %+v", a)
		}

		cmd := mt.GetStartedEvent().Command
		if got, _ := cmd.Lookup("query", "status").StringValueOK(); got != StatusScheduled {
			mt.Errorf("filter status = %q, want %q", got, StatusScheduled)
		}
		if got, _ := cmd.Lookup("update", "$set", "status").StringValueOK(); got != StatusCompleted {
			mt.Errorf("$set.status = %q, want %q", got, StatusCompleted)
		}
	})

	mt.Run("status already changed", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := repo.UpdateStatus(context.Background(), uuid.New(), StatusScheduled, StatusCancelled)
		if !errors.Is(err, errStatusChanged) {
			mt.Fatalf("expected errStatusChanged, got %v", err)
		}
	})
}

func TestAppointmentRepoMongo_List(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("filtered page", func(mt *mtest.T) {
		repo := NewAppointmentRepoMongo(mt.DB)
		doctorID := uuid.New()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.appointments", mtest.FirstBatch, bson.D{{Key: "n", Value: 2}}),
			mtest.CreateCursorResponse(0, "test.appointments", mtest.FirstBatch,
				appointmentBSON(uuid.New(), doctorID, StatusScheduled),
				appointmentBSON(uuid.New(), doctorID, StatusScheduled)),
		)

		items, total, err := repo.List(context.Background(), Filter{DoctorID: &doctorID, Status: StatusScheduled}, 20, 0)
		if err != nil {
			mt.Fatalf("List: %v", err)
		}
		if total != 2 || len(items) != 2 || items[1].DoctorID != doctorID {
			mt.Errorf("unexpected result: total=%d items=%v", total, items)
		}

		find := mt.GetAllStartedEvents()[1].Command
		if got, _ := find.Lookup("filter", "doctorId").StringValueOK(); got != doctorID.String() {
			mt.Errorf("filter doctorId = %q, want %s", got, doctorID)
		}
		if got, _ := find.Lookup("limit").AsInt64OK(); got != 20 {
			mt.Errorf("limit = %d, want 20", got)
		}
	})
}
