package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func seedBlob(t *testing.T, store BlobStore, fileName, contentType, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{FileName: fileName, ContentType: contentType, CreatedBy: "user-1"}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "jpeg bytes"

	result := seedBlob(t, store, "photo.jpg", "image/jpeg", content)

	if result.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), result.Size)
	}
	want := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if result.Hash != want {
		t.Errorf("expected hash %s, got %s", want, result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Error("expected non-zero CreatedAt")
	}
	if result.CreatedBy != "user-1" {
		t.Errorf("expected CreatedBy user-1, got %s", result.CreatedBy)
	}
}

func TestInMemoryBlobStore_UploadDefaultsContentType(t *testing.T) {
	store := NewInMemoryBlobStore()
	result := seedBlob(t, store, "raw.bin", "", "x")
	if result.ContentType != "application/octet-stream" {
		t.Errorf("expected octet-stream default, got %s", result.ContentType)
	}
}

func TestInMemoryBlobStore_UploadMissingFileName(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{ContentType: "image/png"}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Fatalf("expected ErrMissingFileName, got %v", err)
	}
}

func TestInMemoryBlobStore_UploadTooLarge(t *testing.T) {
	store := NewInMemoryBlobStore()
	big := io.LimitReader(zeroReader{}, MaxBlobSize+1)
	_, err := store.Upload(context.Background(), BlobMetadata{FileName: "big.jpg"}, big)
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("oversized blob must not be stored")
	}
}

func TestInMemoryBlobStore_UploadCancelledContext(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Upload(ctx, BlobMetadata{FileName: "a.jpg"}, strings.NewReader("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryBlobStore_Download(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "after.jpg", "image/jpeg", "after-content")

	rc, meta, err := store.Download(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if !bytes.Equal(data, []byte("after-content")) {
		t.Errorf("unexpected content %q", data)
	}
	if meta.ContentType != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", meta.ContentType)
	}
}

func TestInMemoryBlobStore_NotFound(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := context.Background()

	if _, _, err := store.Download(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Download: expected ErrBlobNotFound, got %v", err)
	}
	if _, err := store.GetMetadata(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("GetMetadata: expected ErrBlobNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Delete: expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_Delete(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "before.jpg", "image/jpeg", "x")

	if err := store.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), seeded.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected blob gone, got %v", err)
	}
}

func TestInMemoryBlobStore_MetadataIsACopy(t *testing.T) {
	store := NewInMemoryBlobStore()
	seeded := seedBlob(t, store, "a.jpg", "image/jpeg", "x")

	m, _ := store.GetMetadata(context.Background(), seeded.ID)
	m.FileName = "mutated.jpg"

	again, _ := store.GetMetadata(context.Background(), seeded.ID)
	if again.FileName != "a.jpg" {
		t.Errorf("stored metadata was mutated through a returned pointer")
	}
}

func TestInMemoryBlobStore_ConcurrentUploads(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Upload(context.Background(), BlobMetadata{FileName: fmt.Sprintf("%d.jpg", i)}, strings.NewReader("x"))
			if err != nil {
				t.Errorf("upload %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("expected 20 blobs, got %d", store.Len())
	}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
