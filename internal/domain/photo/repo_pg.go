package photo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type photoRepoPG struct{ pool *pgxpool.Pool }

func NewPhotoRepoPG(pool *pgxpool.Pool) PhotoRepository {
	return &photoRepoPG{pool: pool}
}

func (r *photoRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const photoCols = `id, uploaded_by, patient_id, filename, original_name, mime_type,
	size_bytes, blob_ref, treatments, type, created_at, updated_at`

func (r *photoRepoPG) scanPhoto(row pgx.Row) (*Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.UploadedBy, &p.PatientID, &p.FileName, &p.OriginalName, &p.MimeType,
		&p.Size, &p.BlobRef, &p.Treatments, &p.Type, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *photoRepoPG) Create(ctx context.Context, p *Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO photos (id, uploaded_by, patient_id, filename, original_name, mime_type,
			size_bytes, blob_ref, treatments, type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UploadedBy, p.PatientID, p.FileName, p.OriginalName, p.MimeType,
		p.Size, p.BlobRef, p.Treatments, p.Type, p.CreatedAt, p.UpdatedAt)
	return db.Translate(err, "photo", "insert photo")
}

func (r *photoRepoPG) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*Photo, error) {
	p, err := r.scanPhoto(r.conn(ctx).QueryRow(ctx,
		`SELECT `+photoCols+` FROM photos WHERE id = $1 AND uploaded_by = $2`, id, ownerID))
	if err != nil {
		return nil, db.Translate(err, "photo", "get photo")
	}
	return p, nil
}

func (r *photoRepoPG) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM photos WHERE id = $1 AND uploaded_by = $2`, id, ownerID)
	if err != nil {
		return db.Translate(err, "photo", "delete photo")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("photo")
	}
	return nil
}

func (r *photoRepoPG) ListByPatient(ctx context.Context, ownerID, patientID uuid.UUID) ([]*Photo, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+photoCols+` FROM photos
		WHERE uploaded_by = $1 AND patient_id = $2 ORDER BY created_at, id`, ownerID, patientID)
	if err != nil {
		return nil, db.Translate(err, "photo", "list photos")
	}
	defer rows.Close()

	items := []*Photo{}
	for rows.Next() {
		p, err := r.scanPhoto(rows)
		if err != nil {
			return nil, db.Translate(err, "photo", "scan photo")
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "photo", "list photos")
	}
	return items, nil
}

func (r *photoRepoPG) Count(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM photos WHERE uploaded_by = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, db.Translate(err, "photo", "count photos")
	}
	return n, nil
}
