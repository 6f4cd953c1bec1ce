package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests and
// database-free runs.
type MemoryRepository struct {
	mu          sync.Mutex
	visits      map[uuid.UUID]*Visit
	transitions []VisitTransition
	nextTransID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{visits: make(map[uuid.UUID]*Visit)}
}

func (m *MemoryRepository) CreateVisit(_ context.Context, v *Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetVisit(_ context.Context, clinicID, id uuid.UUID) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok || v.ClinicID != clinicID {
		return nil, ErrVisitNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *MemoryRepository) UpdateVisitState(_ context.Context, clinicID, id uuid.UUID, from, to VisitState, at time.Time) (*Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok || v.ClinicID != clinicID || v.State != from {
		return nil, ErrVisitNotFound
	}
	v.State = to
	v.StateSince = at
	m.nextTransID++
	m.transitions = append(m.transitions, VisitTransition{
		ID:         m.nextTransID,
		VisitID:    id,
		ClinicID:   clinicID,
		From:       from,
		To:         to,
		OccurredAt: at,
	})
	cp := *v
	return &cp, nil
}

func (m *MemoryRepository) ListInStates(_ context.Context, clinicID, locationID uuid.UUID, states []VisitState) ([]Visit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Visit
	for _, v := range m.visits {
		if v.ClinicID != clinicID {
			continue
		}
		if locationID != uuid.Nil && v.LocationID != locationID {
			continue
		}
		for _, s := range states {
			if v.State == s {
				out = append(out, *v)
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListTransitions(_ context.Context, clinicID, visitID uuid.UUID) ([]VisitTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VisitTransition
	for _, t := range m.transitions {
		if t.ClinicID == clinicID && t.VisitID == visitID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListClinics(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, v := range m.visits {
		if _, ok := seen[v.ClinicID]; !ok {
			seen[v.ClinicID] = struct{}{}
			out = append(out, v.ClinicID)
		}
	}
	return out, nil
}
