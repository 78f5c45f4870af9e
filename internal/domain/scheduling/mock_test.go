package scheduling

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type mockAppointmentRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
	// order preserves insertion for stable sorting.
	order []uuid.UUID
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func clone(a *Appointment) *Appointment {
	c := *a
	if a.Notes != nil {
		n := *a.Notes
		c.Notes = &n
	}
	return &c
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	m.appts[a.ID] = clone(a)
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, ownerID, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, apperr.NotFound("appointment")
	}
	return clone(a), nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appts[a.ID]
	if !ok || cur.OwnerID != a.OwnerID {
		return apperr.NotFound("appointment")
	}
	m.appts[a.ID] = clone(a)
	return nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok || a.OwnerID != ownerID {
		return apperr.NotFound("appointment")
	}
	delete(m.appts, id)
	return nil
}

func (m *mockAppointmentRepo) DeleteByPatient(_ context.Context, ownerID, patientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, a := range m.appts {
		if a.OwnerID == ownerID && a.PatientID == patientID {
			delete(m.appts, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAppointmentRepo) Search(_ context.Context, ownerID uuid.UUID, f Filter) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []*Appointment{}
	for _, id := range m.order {
		a, ok := m.appts[id]
		if !ok || a.OwnerID != ownerID {
			continue
		}
		if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.From != "" && a.Date < f.From {
			continue
		}
		if f.To != "" && a.Date > f.To {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ExcludeStatus != "" && a.Status == f.ExcludeStatus {
			continue
		}
		items = append(items, clone(a))
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date < items[j].Date
		}
		return items[i].Time < items[j].Time
	})
	return items, nil
}

func (m *mockAppointmentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appts)
}

type mockDirectory struct {
	names map[uuid.UUID]string
	owner map[uuid.UUID]uuid.UUID
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{names: map[uuid.UUID]string{}, owner: map[uuid.UUID]uuid.UUID{}}
}

func (d *mockDirectory) add(ownerID uuid.UUID, name string) uuid.UUID {
	id := uuid.New()
	d.names[id] = name
	d.owner[id] = ownerID
	return id
}

func (d *mockDirectory) PatientName(_ context.Context, ownerID, patientID uuid.UUID) (string, error) {
	if o, ok := d.owner[patientID]; !ok || o != ownerID {
		return "", apperr.NotFound("patient")
	}
	return d.names[patientID], nil
}

type notification struct {
	owner    uuid.UUID
	resource string
	action   string
	id       string
}

type mockNotifier struct {
	events []notification
}

func (m *mockNotifier) Notify(ownerID uuid.UUID, resource, action, id string, _ any) {
	m.events = append(m.events, notification{owner: ownerID, resource: resource, action: action, id: id})
}
