package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, created_by, patient_id, patient_name,
	to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI'),
	duration_minutes, treatment, notes, status, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.OwnerID, &a.PatientID, &a.PatientName,
		&a.Date, &a.Time, &a.Duration, &a.Treatment, &a.Notes, &a.Status,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, created_by, patient_id, patient_name, date, time,
			duration_minutes, treatment, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.OwnerID, a.PatientID, a.PatientName, a.Date, a.Time,
		a.Duration, a.Treatment, a.Notes, a.Status, a.CreatedAt, a.UpdatedAt)
	return db.Translate(err, "appointment", "insert appointment")
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 AND created_by = $2`, id, ownerID))
	if err != nil {
		return nil, db.Translate(err, "appointment", "get appointment")
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET patient_name = $3, date = $4::date, time = $5::time,
			duration_minutes = $6, treatment = $7, notes = $8, status = $9, updated_at = $10
		WHERE id = $1 AND created_by = $2`,
		a.ID, a.OwnerID, a.PatientName, a.Date, a.Time,
		a.Duration, a.Treatment, a.Notes, a.Status, a.UpdatedAt)
	if err != nil {
		return db.Translate(err, "appointment", "update appointment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND created_by = $2`, id, ownerID)
	if err != nil {
		return db.Translate(err, "appointment", "delete appointment")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment")
	}
	return nil
}

func (r *appointmentRepoPG) DeleteByPatient(ctx context.Context, ownerID, patientID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM appointments WHERE patient_id = $1 AND created_by = $2`, patientID, ownerID)
	if err != nil {
		return 0, db.Translate(err, "appointment", "delete appointments by patient")
	}
	return int(tag.RowsAffected()), nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, ownerID uuid.UUID, f Filter) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE created_by = $1`
	args := []interface{}{ownerID}
	idx := 2

	if f.PatientID != uuid.Nil {
		query += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.Date != "" {
		query += fmt.Sprintf(` AND date = $%d::date`, idx)
		args = append(args, f.Date)
		idx++
	}
	if f.From != "" {
		query += fmt.Sprintf(` AND date >= $%d::date`, idx)
		args = append(args, f.From)
		idx++
	}
	if f.To != "" {
		query += fmt.Sprintf(` AND date <= $%d::date`, idx)
		args = append(args, f.To)
		idx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.ExcludeStatus != "" {
		query += fmt.Sprintf(` AND status <> $%d`, idx)
		args = append(args, f.ExcludeStatus)
	}
	query += ` ORDER BY date, time, created_at, id`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate(err, "appointment", "search appointments")
	}
	defer rows.Close()

	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, db.Translate(err, "appointment", "scan appointment")
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "appointment", "search appointments")
	}
	return items, nil
}
