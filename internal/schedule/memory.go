package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-process Repository with the same
// commit-gate semantics as the Postgres implementation: CreateAppointment
// atomically re-checks overlap against active rows and fails with
// ErrBookingConflict for the loser of a race. Used by tests and local runs
// without a database.
type MemoryRepository struct {
	mu           sync.Mutex
	providers    map[uuid.UUID]*Provider
	resources    map[uuid.UUID]*Resource
	types        map[uuid.UUID]*AppointmentType
	appointments map[uuid.UUID]*Appointment
	series       map[uuid.UUID]*RecurrenceSeries
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:    make(map[uuid.UUID]*Provider),
		resources:    make(map[uuid.UUID]*Resource),
		types:        make(map[uuid.UUID]*AppointmentType),
		appointments: make(map[uuid.UUID]*Appointment),
		series:       make(map[uuid.UUID]*RecurrenceSeries),
	}
}

// Seed helpers, not part of the Repository interface.

func (m *MemoryRepository) PutProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = &p
}

func (m *MemoryRepository) PutResource(r Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = &r
}

func (m *MemoryRepository) PutAppointmentType(t AppointmentType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[t.ID] = &t
}

// Events returns a copy of the append-only event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventLog, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryRepository) ListClinics(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, p := range m.providers {
		if _, ok := seen[p.ClinicID]; !ok {
			seen[p.ClinicID] = struct{}{}
			out = append(out, p.ClinicID)
		}
	}
	return out, nil
}

func (m *MemoryRepository) GetProvider(_ context.Context, clinicID, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok || p.ClinicID != clinicID {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) GetResource(_ context.Context, clinicID, id uuid.UUID) (*Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok || r.ClinicID != clinicID {
		return nil, ErrResourceNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) ListResources(_ context.Context, clinicID uuid.UUID) ([]Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Resource
	for _, r := range m.resources {
		if r.ClinicID == clinicID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MemoryRepository) GetAppointmentType(_ context.Context, clinicID, id uuid.UUID) (*AppointmentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok || t.ClinicID != clinicID {
		return nil, ErrTypeNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepository) GetAppointment(_ context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) ListActiveOverlapping(_ context.Context, clinicID uuid.UUID, iv Interval, providerID, patientID uuid.UUID, resourceIDs []uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeOverlappingLocked(clinicID, iv, providerID, patientID, resourceIDs), nil
}

func (m *MemoryRepository) activeOverlappingLocked(clinicID uuid.UUID, iv Interval, providerID, patientID uuid.UUID, resourceIDs []uuid.UUID) []Appointment {
	var out []Appointment
	for _, a := range m.appointments {
		if a.ClinicID != clinicID || !a.Status.Active() || !a.Interval.Overlaps(iv) {
			continue
		}
		match := (providerID != uuid.Nil && a.ProviderID == providerID) ||
			(patientID != uuid.Nil && a.PatientID == patientID) ||
			sharesResource(a.ResourceIDs, resourceIDs)
		if match {
			out = append(out, *a)
		}
	}
	return out
}

func (m *MemoryRepository) ListActiveInRange(_ context.Context, clinicID uuid.UUID, iv Interval, providerID uuid.UUID, resourceID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.ClinicID != clinicID || !a.Status.Active() || !a.Interval.Overlaps(iv) {
			continue
		}
		if providerID != uuid.Nil && a.ProviderID == providerID {
			out = append(out, *a)
			continue
		}
		if resourceID != uuid.Nil && sharesResource(a.ResourceIDs, []uuid.UUID{resourceID}) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The commit gate: check-and-insert under one lock.
	clashes := m.activeOverlappingLocked(appt.ClinicID, appt.Interval, appt.ProviderID, appt.PatientID, appt.ResourceIDs)
	for _, c := range clashes {
		if c.ID != appt.ID {
			return ErrBookingConflict
		}
	}

	cp := *appt
	m.appointments[appt.ID] = &cp
	return nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, clinicID, id uuid.UUID, from, to AppointmentStatus, cancelReason *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.ClinicID != clinicID || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if cancelReason != nil {
		a.CancelReason = cancelReason
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) BindResources(_ context.Context, clinicID, apptID uuid.UUID, resourceIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[apptID]
	if !ok || a.ClinicID != clinicID {
		return ErrAppointmentNotFound
	}
	// Re-check the resource gate atomically with the bind.
	clashes := m.activeOverlappingLocked(clinicID, a.Interval, uuid.Nil, uuid.Nil, resourceIDs)
	for _, c := range clashes {
		if c.ID != apptID {
			return ErrBookingConflict
		}
	}
	for _, resID := range resourceIDs {
		if !sharesResource(a.ResourceIDs, []uuid.UUID{resID}) {
			a.ResourceIDs = append(a.ResourceIDs, resID)
		}
	}
	return nil
}

func (m *MemoryRepository) CreateSeries(_ context.Context, series *RecurrenceSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *series
	m.series[series.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetSeries(_ context.Context, clinicID, id uuid.UUID) (*RecurrenceSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[id]
	if !ok || s.ClinicID != clinicID {
		return nil, ErrSeriesNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) FindOverdueConfirmed(_ context.Context, clinicID uuid.UUID, startedBefore time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.ClinicID == clinicID && a.Status == StatusConfirmed && a.Interval.Start.Before(startedBefore) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	ev.ID = m.nextEventID
	m.events = append(m.events, ev)
	return nil
}
