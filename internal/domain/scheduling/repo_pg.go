package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vetdesk/clinic/internal/platform/db"
)

type appointmentRepoPG struct {
	pool db.Queryable
}

func NewAppointmentRepoPG(pool db.Queryable) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, user_id, doctor_id, doctor_name, doctor_speciality, doctor_image, fee,
	patient_ref, patient_name, age, gender, phone, address, booking_type, pet_name, pet_type,
	problem, symptoms, medical_report_id, date, day, time, status, payment_status,
	created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.UserID, &a.DoctorID, &a.DoctorName, &a.DoctorSpeciality,
		&a.DoctorImage, &a.Fee, &a.PatientRef, &a.PatientName, &a.Age, &a.Gender, &a.Phone,
		&a.Address, &a.BookingType, &a.PetName, &a.PetType, &a.Problem, &a.Symptoms,
		&a.MedicalReportID, &a.Date, &a.Day, &a.Time, &a.Status, &a.PaymentStatus,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, user_id, doctor_id, doctor_name, doctor_speciality, doctor_image,
			fee, patient_ref, patient_name, age, gender, phone, address, booking_type, pet_name,
			pet_type, problem, symptoms, medical_report_id, date, day, time, status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
		RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.DoctorID, a.DoctorName, a.DoctorSpeciality, a.DoctorImage,
		a.Fee, a.PatientRef, a.PatientName, a.Age, a.Gender, a.Phone, a.Address, a.BookingType,
		a.PetName, a.PetType, a.Problem, a.Symptoms, a.MedicalReportID, a.Date, a.Day, a.Time,
		a.Status, a.PaymentStatus,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols, id, from, to))
	if db.IsNoRows(err) {
		return nil, errStatusChanged
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.UserID != "" {
		where += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(" AND doctor_id = $%d", idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Date != "" {
		where += fmt.Sprintf(" AND date = $%d", idx)
		args = append(args, f.Date)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := `SELECT ` + apptCols + ` FROM appointment` + where + fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
