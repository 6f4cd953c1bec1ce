package waitlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/practiceops/clinic-scheduling/internal/schedule"
)

type EntryStatus string

const (
	EntryWaiting   EntryStatus = "waiting"
	EntryOffered   EntryStatus = "offered"
	EntryBooked    EntryStatus = "booked"
	EntryExpired   EntryStatus = "expired"
	EntryWithdrawn EntryStatus = "withdrawn"
)

type OfferStatus string

const (
	OfferOpen      OfferStatus = "open"
	OfferAccepted  OfferStatus = "accepted"
	OfferExpired   OfferStatus = "expired"
	OfferWithdrawn OfferStatus = "withdrawn"
)

// Entry is prioritized demand for a slot that was full at request time.
type Entry struct {
	ID          uuid.UUID
	ClinicID    uuid.UUID
	PatientID   uuid.UUID
	TypeID      uuid.UUID
	ProviderID  *uuid.UUID // nil means any provider
	Windows     []schedule.Interval
	Urgent      bool
	NoShowCount int
	Status      EntryStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AcceptsInterval reports whether the offered interval lies inside one of
// the entry's acceptable windows. An entry with no windows accepts anything.
// Entries outside the window are excluded from an offer, not deprioritized.
func (e Entry) AcceptsInterval(iv schedule.Interval) bool {
	if len(e.Windows) == 0 {
		return true
	}
	for _, w := range e.Windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}

const noShowPenalty = 24 * time.Hour

// Score ranks an entry within its urgency tier. Higher wins. Waiting time
// increases the score monotonically and a no-show history discounts it.
// Urgency is not part of the score: it sorts as an unconditional tier above
// every non-urgent entry, no matter how long they have waited.
func (e Entry) Score(now time.Time) time.Duration {
	s := now.Sub(e.CreatedAt)
	s -= time.Duration(e.NoShowCount) * noShowPenalty
	return s
}

// Offer is a time-boxed, revocable proposal of an opening to one entry. It
// is a soft reservation with an expiry, never a lock on the slot.
type Offer struct {
	ID         uuid.UUID
	EntryID    uuid.UUID
	ClinicID   uuid.UUID
	TypeID     uuid.UUID
	ProviderID uuid.UUID
	Interval   schedule.Interval
	Status     OfferStatus
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
