package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vetdesk/clinic/internal/platform/db"
)

// -- Doctor Repository --

type doctorRepoPG struct {
	pool db.Queryable
}

func NewDoctorRepoPG(pool db.Queryable) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const doctorCols = `id, name, speciality, fee, experience, rating, image, availability, created_at, updated_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Speciality, &d.Fee, &d.Experience, &d.Rating,
		&d.Image, &d.Availability, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.Availability == nil {
		d.Availability = []string{}
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	if d.Availability == nil {
		d.Availability = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, name, speciality, fee, experience, rating, image, availability)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Speciality, d.Fee, d.Experience, d.Rating, d.Image, d.Availability,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	if d.Availability == nil {
		d.Availability = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET name = $2, speciality = $3, fee = $4, experience = $5,
			rating = $6, image = $7, availability = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Speciality, d.Fee, d.Experience, d.Rating, d.Image, d.Availability,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrDoctorNotFound
	}
	if err != nil {
		return fmt.Errorf("update doctor: %w", err)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrDoctorInUse
	}
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Speciality != "" {
		where += fmt.Sprintf(" AND speciality ILIKE $%d", idx)
		args = append(args, f.Speciality)
		idx++
	}
	if f.Day != "" {
		where += fmt.Sprintf(" AND $%d = ANY(availability)", idx)
		args = append(args, f.Day)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doctors: %w", err)
	}

	query := `SELECT ` + doctorCols + ` FROM doctor` + where + fmt.Sprintf(` ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// -- Patient Repository --

type patientRepoPG struct {
	pool db.Queryable
}

func NewPatientRepoPG(pool db.Queryable) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, patient_id, name, type, owner_name, breed, age, gender, phone, address,
	last_visit, paid, image, status, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientID, &p.Name, &p.Type, &p.OwnerName, &p.Breed, &p.Age,
		&p.Gender, &p.Phone, &p.Address, &p.LastVisit, &p.Paid, &p.Image, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) UpsertVisit(ctx context.Context, p *Patient) (bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	candidate := p.ID
	var stored *Patient
	err := db.WithSavepoint(ctx, func(ctx context.Context) error {
		var err error
		stored, err = r.scanPatient(r.conn(ctx).QueryRow(ctx, `
			INSERT INTO patient (id, patient_id, name, type, owner_name, breed, age, gender, phone,
				address, last_visit, paid, image, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (name, phone) DO UPDATE
				SET last_visit = EXCLUDED.last_visit, updated_at = NOW()
			RETURNING `+patientCols,
			p.ID, p.PatientID, p.Name, p.Type, p.OwnerName, p.Breed, p.Age, p.Gender, p.Phone,
			p.Address, p.LastVisit, p.Paid, p.Image, p.Status,
		))
		return err
	})
	if db.IsUniqueViolation(err, "patient_patient_id_key") {
		return false, ErrDuplicatePatientID
	}
	if err != nil {
		return false, fmt.Errorf("upsert patient: %w", err)
	}
	*p = *stored
	return stored.ID == candidate, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) List(ctx context.Context, f PatientFilter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if f.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, f.Type)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Phone != "" {
		where += fmt.Sprintf(" AND phone = $%d", idx)
		args = append(args, f.Phone)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := `SELECT ` + patientCols + ` FROM patient` + where + fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
