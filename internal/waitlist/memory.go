package waitlist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests and
// database-free runs, with the same CAS semantics as the Postgres one.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	offers  map[uuid.UUID]*Offer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]*Entry),
		offers:  make(map[uuid.UUID]*Offer),
	}
}

func (m *MemoryRepository) CreateEntry(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetEntry(_ context.Context, clinicID, id uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.ClinicID != clinicID {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) ListWaiting(_ context.Context, clinicID, typeID uuid.UUID) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.ClinicID == clinicID && e.TypeID == typeID && e.Status == EntryWaiting {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemoryRepository) UpdateEntryStatus(_ context.Context, clinicID, id uuid.UUID, from, to EntryStatus) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.ClinicID != clinicID || e.Status != from {
		return nil, ErrEntryNotFound
	}
	e.Status = to
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (m *MemoryRepository) CreateOffer(_ context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.offers[o.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetOffer(_ context.Context, clinicID, id uuid.UUID) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok || o.ClinicID != clinicID {
		return nil, ErrOfferNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryRepository) UpdateOfferStatus(_ context.Context, clinicID, id uuid.UUID, from, to OfferStatus) (*Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok || o.ClinicID != clinicID || o.Status != from {
		return nil, ErrOfferNotFound
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (m *MemoryRepository) FindExpiredOpenOffers(_ context.Context, clinicID uuid.UUID, now time.Time) ([]Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Offer
	for _, o := range m.offers {
		if o.ClinicID == clinicID && o.Status == OfferOpen && o.ExpiresAt.Before(now) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListClinics(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, e := range m.entries {
		if _, ok := seen[e.ClinicID]; !ok {
			seen[e.ClinicID] = struct{}{}
			out = append(out, e.ClinicID)
		}
	}
	return out, nil
}
