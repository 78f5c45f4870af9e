package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type mockPatientRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func clonePatient(p *Patient) *Patient {
	c := *p
	c.Treatments = append([]string(nil), p.Treatments...)
	c.PhotoIDs = append([]string{}, p.PhotoIDs...)
	return &c
}

func (m *mockPatientRepo) duplicate(p *Patient) bool {
	for _, other := range m.patients {
		if other.ID != p.ID && other.OwnerID == p.OwnerID && other.NationalID == p.NationalID {
			return true
		}
	}
	return false
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.duplicate(p) {
		return apperr.Conflict("a patient with this national id already exists")
	}
	p.ID = uuid.New()
	m.patients[p.ID] = clonePatient(p)
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, ownerID, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OwnerID != ownerID {
		return nil, apperr.NotFound("patient")
	}
	return clonePatient(p), nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.patients[p.ID]
	if !ok || cur.OwnerID != p.OwnerID {
		return apperr.NotFound("patient")
	}
	if m.duplicate(p) {
		return apperr.Conflict("a patient with this national id already exists")
	}
	next := clonePatient(p)
	next.PhotoIDs = cur.PhotoIDs
	m.patients[p.ID] = next
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OwnerID != ownerID {
		return apperr.NotFound("patient")
	}
	delete(m.patients, id)
	return nil
}

func (m *mockPatientRepo) filter(ownerID uuid.UUID, match func(*Patient) bool, limit, offset int) ([]*Patient, int) {
	var all []*Patient
	for _, p := range m.patients {
		if p.OwnerID == ownerID && match(p) {
			all = append(all, clonePatient(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name) })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]*Patient{}, all[offset:end]...), total
}

func (m *mockPatientRepo) List(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, total := m.filter(ownerID, func(*Patient) bool { return true }, limit, offset)
	return items, total, nil
}

func (m *mockPatientRepo) Search(_ context.Context, ownerID uuid.UUID, text string, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(text))
	items, total := m.filter(ownerID, func(p *Patient) bool {
		fields := []string{p.Name, p.NationalID, p.Phone}
		if p.Email != nil {
			fields = append(fields, *p.Email)
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), needle) {
				return true
			}
		}
		return false
	}, limit, offset)
	return items, total, nil
}

func (m *mockPatientRepo) AddPhoto(_ context.Context, ownerID, id uuid.UUID, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OwnerID != ownerID {
		return apperr.NotFound("patient")
	}
	for _, existing := range p.PhotoIDs {
		if existing == photoID {
			return nil
		}
	}
	p.PhotoIDs = append(p.PhotoIDs, photoID)
	return nil
}

func (m *mockPatientRepo) RemovePhoto(_ context.Context, ownerID, id uuid.UUID, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok || p.OwnerID != ownerID {
		return apperr.NotFound("patient")
	}
	kept := p.PhotoIDs[:0]
	for _, existing := range p.PhotoIDs {
		if existing != photoID {
			kept = append(kept, existing)
		}
	}
	p.PhotoIDs = kept
	return nil
}

// mockDependent holds child records per patient and can be told to fail
// a number of times before succeeding.
type mockDependent struct {
	mu       sync.Mutex
	children map[uuid.UUID]int
	failures int
	name     string
	log      *[]string
}

var errDependentDown = errors.New("dependent store unavailable")

func (d *mockDependent) DeleteByPatient(_ context.Context, _ uuid.UUID, patientID uuid.UUID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.log != nil {
		*d.log = append(*d.log, d.name)
	}
	if d.failures > 0 {
		d.failures--
		return 0, apperr.Storage("delete "+d.name, errDependentDown)
	}
	n := d.children[patientID]
	delete(d.children, patientID)
	return n, nil
}

type recordedOp struct{ operation, outcome string }

type mockRecorder struct{ ops []recordedOp }

func (r *mockRecorder) RecordOperation(operation, outcome string) {
	r.ops = append(r.ops, recordedOp{operation, outcome})
}

type mockNotifier struct{ actions []string }

func (n *mockNotifier) Notify(_ uuid.UUID, resource, action, _ string, _ any) {
	n.actions = append(n.actions, resource+":"+action)
}
