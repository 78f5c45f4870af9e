package photo

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/blobstore"
)

type mockPhotoRepo struct {
	mu       sync.Mutex
	photos   map[uuid.UUID]*Photo
	failNext error
}

func newMockPhotoRepo() *mockPhotoRepo {
	return &mockPhotoRepo{photos: make(map[uuid.UUID]*Photo)}
}

func (m *mockPhotoRepo) Create(_ context.Context, p *Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	c := *p
	m.photos[p.ID] = &c
	return nil
}

func (m *mockPhotoRepo) GetByID(_ context.Context, ownerID, id uuid.UUID) (*Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok || p.UploadedBy != ownerID {
		return nil, apperr.NotFound("photo")
	}
	c := *p
	return &c, nil
}

func (m *mockPhotoRepo) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok || p.UploadedBy != ownerID {
		return apperr.NotFound("photo")
	}
	delete(m.photos, id)
	return nil
}

func (m *mockPhotoRepo) ListByPatient(_ context.Context, ownerID, patientID uuid.UUID) ([]*Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []*Photo{}
	for _, p := range m.photos {
		if p.UploadedBy == ownerID && p.PatientID == patientID {
			c := *p
			items = append(items, &c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].OriginalName < items[j].OriginalName })
	return items, nil
}

func (m *mockPhotoRepo) Count(_ context.Context, ownerID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.photos {
		if p.UploadedBy == ownerID {
			n++
		}
	}
	return n, nil
}

type mockPatients struct {
	mu      sync.Mutex
	owners  map[uuid.UUID]uuid.UUID
	photos  map[uuid.UUID][]string
	failAdd error
}

func newMockPatients() *mockPatients {
	return &mockPatients{owners: map[uuid.UUID]uuid.UUID{}, photos: map[uuid.UUID][]string{}}
}

func (m *mockPatients) add(owner uuid.UUID) uuid.UUID {
	id := uuid.New()
	m.owners[id] = owner
	return id
}

func (m *mockPatients) check(ownerID, patientID uuid.UUID) error {
	if o, ok := m.owners[patientID]; !ok || o != ownerID {
		return apperr.NotFound("patient")
	}
	return nil
}

func (m *mockPatients) PatientName(_ context.Context, ownerID, patientID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "Ana", m.check(ownerID, patientID)
}

func (m *mockPatients) AddPhoto(_ context.Context, ownerID, patientID uuid.UUID, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ownerID, patientID); err != nil {
		return err
	}
	if m.failAdd != nil {
		return m.failAdd
	}
	m.photos[patientID] = append(m.photos[patientID], photoID)
	return nil
}

func (m *mockPatients) RemovePhoto(_ context.Context, ownerID, patientID uuid.UUID, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ownerID, patientID); err != nil {
		return err
	}
	var kept []string
	for _, id := range m.photos[patientID] {
		if id != photoID {
			kept = append(kept, id)
		}
	}
	m.photos[patientID] = kept
	return nil
}

func (m *mockPatients) list(patientID uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.photos[patientID]...)
}

// flakyBlobStore fails the upload numbered failOn (1-based).
type flakyBlobStore struct {
	*blobstore.InMemoryBlobStore
	mu      sync.Mutex
	uploads int
	failOn  int
}

var errBlobDown = errors.New("blob backend unavailable")

func (f *flakyBlobStore) Upload(ctx context.Context, meta blobstore.BlobMetadata, r io.Reader) (*blobstore.BlobMetadata, error) {
	f.mu.Lock()
	f.uploads++
	n := f.uploads
	f.mu.Unlock()
	if n == f.failOn {
		return nil, errBlobDown
	}
	return f.InMemoryBlobStore.Upload(ctx, meta, r)
}

type mockRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *mockRecorder) RecordOperation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, operation+":"+outcome)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type mockNotifier struct{ actions []string }

func (n *mockNotifier) Notify(_ uuid.UUID, resource, action, _ string, _ any) {
	n.actions = append(n.actions, resource+":"+action)
}

// mockTx restores the repository and patient photo lists when fn fails,
// the way a database rollback would.
type mockTx struct {
	repo     *mockPhotoRepo
	patients *mockPatients
	calls    int
}

func (m *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++

	m.repo.mu.Lock()
	photos := make(map[uuid.UUID]*Photo, len(m.repo.photos))
	for k, v := range m.repo.photos {
		photos[k] = v
	}
	m.repo.mu.Unlock()

	m.patients.mu.Lock()
	refs := make(map[uuid.UUID][]string, len(m.patients.photos))
	for k, v := range m.patients.photos {
		refs[k] = append([]string(nil), v...)
	}
	m.patients.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.repo.mu.Lock()
		m.repo.photos = photos
		m.repo.mu.Unlock()
		m.patients.mu.Lock()
		m.patients.photos = refs
		m.patients.mu.Unlock()
		return err
	}
	return nil
}
