package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// PostgresBlobStore keeps blobs in the blobs table. Writes join a
// transaction carried by ctx, so a photo row and its bytes commit together.
type PostgresBlobStore struct {
	pool *pgxpool.Pool
}

func NewPostgresBlobStore(pool *pgxpool.Pool) *PostgresBlobStore {
	return &PostgresBlobStore{pool: pool}
}

const blobMetaCols = `id::text, file_name, content_type, size_bytes, sha256, COALESCE(created_by, ''), created_at`

func (s *PostgresBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readContent(&meta, content)
	if err != nil {
		return nil, err
	}
	meta.ID = uuid.New().String()
	meta.CreatedAt = time.Now().UTC()

	_, err = db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO blobs (id, file_name, content_type, size_bytes, sha256, data, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		meta.ID, meta.FileName, meta.ContentType, meta.Size, meta.Hash, data, meta.CreatedBy, meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	return &meta, nil
}

func (s *PostgresBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, ErrBlobNotFound
	}
	var m BlobMetadata
	var data []byte
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+blobMetaCols+`, data FROM blobs WHERE id = $1`, id).
		Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.Hash, &m.CreatedBy, &m.CreatedAt, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("select blob: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), &m, nil
}

func (s *PostgresBlobStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrBlobNotFound
	}
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM blobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *PostgresBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBlobNotFound
	}
	var m BlobMetadata
	err := db.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+blobMetaCols+` FROM blobs WHERE id = $1`, id).
		Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.Hash, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("select blob metadata: %w", err)
	}
	return &m, nil
}
