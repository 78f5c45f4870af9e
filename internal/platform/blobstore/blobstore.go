// Package blobstore stores photo bytes. Metadata about what a blob means
// lives with the photo record; a blob only knows its name, type, size and
// hash. Backends: PostgreSQL (bytea), MongoDB GridFS and in-memory.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// MaxBlobSize bounds a single stored object regardless of backend.
const MaxBlobSize = 64 << 20

type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// BlobStore is implemented by every backend. Upload assigns ID, Size, Hash
// and CreatedAt. Download and GetMetadata return ErrBlobNotFound for unknown
// ids, as does Delete.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// readContent buffers content up to MaxBlobSize and fills Size and Hash.
func readContent(meta *BlobMetadata, content io.Reader) ([]byte, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxBlobSize {
		return nil, ErrFileTooLarge
	}
	sum := sha256.Sum256(data)
	meta.Size = int64(len(data))
	meta.Hash = hex.EncodeToString(sum[:])
	if meta.ContentType == "" {
		meta.ContentType = "application/octet-stream"
	}
	return data, nil
}
