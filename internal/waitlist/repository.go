package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("waitlist entry not found")
	ErrOfferNotFound = errors.New("waitlist offer not found")
)

// Repository contains the waitlist store interactions. Status updates are
// compare-and-swap: a mismatch on the expected status returns the not-found
// sentinel, which the service reads as a lost race or a stale offer.
type Repository interface {
	CreateEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, clinicID, id uuid.UUID) (*Entry, error)
	ListWaiting(ctx context.Context, clinicID, typeID uuid.UUID) ([]Entry, error)
	UpdateEntryStatus(ctx context.Context, clinicID, id uuid.UUID, from, to EntryStatus) (*Entry, error)

	CreateOffer(ctx context.Context, o *Offer) error
	GetOffer(ctx context.Context, clinicID, id uuid.UUID) (*Offer, error)
	UpdateOfferStatus(ctx context.Context, clinicID, id uuid.UUID, from, to OfferStatus) (*Offer, error)
	FindExpiredOpenOffers(ctx context.Context, clinicID uuid.UUID, now time.Time) ([]Offer, error)

	ListClinics(ctx context.Context) ([]uuid.UUID, error)
}
