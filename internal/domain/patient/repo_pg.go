package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

const nationalIDConstraint = "patients_owner_national_id_key"

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, created_by, name, national_id, phone, email,
	to_char(birth_date, 'YYYY-MM-DD'), gender, address, treatments,
	allergies, medications, medical_history, notes, photo_ids, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *patientRepoPG) scanPatient(row scanner) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.NationalID, &p.Phone, &p.Email,
		&p.BirthDate, &p.Gender, &p.Address, &p.Treatments,
		&p.Allergies, &p.Medications, &p.MedicalHistory, &p.Notes, &p.PhotoIDs,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// translate reports the per-owner national id constraint as a conflict with
// a message the form can show.
func translate(err error, op string) error {
	if db.IsUniqueViolation(err) && db.ConstraintName(err) == nationalIDConstraint {
		return &apperr.Error{Kind: apperr.KindConflict, Message: "a patient with this national id already exists", Err: err}
	}
	return db.Translate(err, "patient", op)
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, created_by, name, national_id, phone, email, birth_date,
			gender, address, treatments, allergies, medications, medical_history, notes,
			photo_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::date, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.OwnerID, p.Name, p.NationalID, p.Phone, p.Email, p.BirthDate,
		p.Gender, p.Address, p.Treatments, p.Allergies, p.Medications, p.MedicalHistory, p.Notes,
		p.PhotoIDs, p.CreatedAt, p.UpdatedAt)
	return translate(err, "insert patient")
}

func (r *patientRepoPG) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND created_by = $2`, id, ownerID))
	if err != nil {
		return nil, translate(err, "get patient")
	}
	return p, nil
}

// Update leaves photo_ids alone; photo references change only through
// AddPhoto and RemovePhoto.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name = $3, national_id = $4, phone = $5, email = $6,
			birth_date = $7::date, gender = $8, address = $9, treatments = $10,
			allergies = $11, medications = $12, medical_history = $13, notes = $14,
			updated_at = $15
		WHERE id = $1 AND created_by = $2`,
		p.ID, p.OwnerID, p.Name, p.NationalID, p.Phone, p.Email,
		p.BirthDate, p.Gender, p.Address, p.Treatments,
		p.Allergies, p.Medications, p.MedicalHistory, p.Notes, p.UpdatedAt)
	if err != nil {
		return translate(err, "update patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1 AND created_by = $2`, id, ownerID)
	if err != nil {
		return translate(err, "delete patient")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE created_by = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, translate(err, "count patients")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE created_by = $1 ORDER BY lower(name), created_at LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, translate(err, "list patients")
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, translate(err, "list patients")
	}
	return items, total, nil
}

const searchWhere = `created_by = $1 AND (name ILIKE $2 ESCAPE '\' OR national_id ILIKE $2 ESCAPE '\'
	OR phone ILIKE $2 ESCAPE '\' OR email ILIKE $2 ESCAPE '\')`

func (r *patientRepoPG) Search(ctx context.Context, ownerID uuid.UUID, text string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + escapeLike(text) + "%"

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+searchWhere, ownerID, pattern).Scan(&total); err != nil {
		return nil, 0, translate(err, "count patients")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE `+searchWhere+`
		ORDER BY lower(name), created_at LIMIT $3 OFFSET $4`, ownerID, pattern, limit, offset)
	if err != nil {
		return nil, 0, translate(err, "search patients")
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, translate(err, "search patients")
	}
	return items, total, nil
}

func (r *patientRepoPG) collect(rows pgx.Rows) ([]*Patient, error) {
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) AddPhoto(ctx context.Context, ownerID, id uuid.UUID, photoID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET photo_ids = array_append(photo_ids, $3), updated_at = NOW()
		WHERE id = $1 AND created_by = $2 AND NOT ($3 = ANY(photo_ids))`, id, ownerID, photoID)
	if err != nil {
		return translate(err, "add patient photo")
	}
	if tag.RowsAffected() == 0 {
		return r.exists(ctx, ownerID, id)
	}
	return nil
}

func (r *patientRepoPG) RemovePhoto(ctx context.Context, ownerID, id uuid.UUID, photoID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET photo_ids = array_remove(photo_ids, $3), updated_at = NOW()
		WHERE id = $1 AND created_by = $2 AND $3 = ANY(photo_ids)`, id, ownerID, photoID)
	if err != nil {
		return translate(err, "remove patient photo")
	}
	if tag.RowsAffected() == 0 {
		return r.exists(ctx, ownerID, id)
	}
	return nil
}

func (r *patientRepoPG) exists(ctx context.Context, ownerID, id uuid.UUID) error {
	var found bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1 AND created_by = $2)`, id, ownerID).Scan(&found)
	if err != nil {
		return translate(err, "get patient")
	}
	if !found {
		return apperr.NotFound("patient")
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}
