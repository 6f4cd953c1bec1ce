package waitlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/clock"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
)

var (
	// ErrStaleOffer means the offer was already consumed, expired, or
	// withdrawn. The caller must re-query the waitlist; a duplicate accept
	// never yields a second booking.
	ErrStaleOffer = errors.New("offer is no longer open")

	// ErrSlotTaken means acceptance re-validation found the underlying slot
	// booked in the interim, e.g. by a manual front-desk booking.
	ErrSlotTaken = errors.New("offered slot was booked in the meantime")
)

// Booker converts an accepted offer into a committed appointment. Satisfied
// by *schedule.Service.
type Booker interface {
	Book(ctx context.Context, clinicID uuid.UUID, req schedule.BookingRequest) ([]schedule.InstanceResult, error)
}

// Service maintains prioritized demand for full slots and runs the
// offer/accept protocol when cancellations reclaim openings.
type Service struct {
	repo     Repository
	booker   Booker
	clk      clock.Clock
	offerTTL time.Duration
	log      zerolog.Logger
	notifier schedule.Notifier
}

func NewService(repo Repository, booker Booker, clk clock.Clock, offerTTL time.Duration, log zerolog.Logger) *Service {
	if offerTTL <= 0 {
		offerTTL = 15 * time.Minute
	}
	return &Service{
		repo:     repo,
		booker:   booker,
		clk:      clk,
		offerTTL: offerTTL,
		log:      log,
	}
}

func (s *Service) SetNotifier(n schedule.Notifier) { s.notifier = n }

// AddEntryRequest creates demand when no slot is available.
type AddEntryRequest struct {
	PatientID  uuid.UUID
	TypeID     uuid.UUID
	ProviderID *uuid.UUID
	Windows    []schedule.Interval
	Urgent     bool
}

func (s *Service) AddEntry(ctx context.Context, clinicID uuid.UUID, req AddEntryRequest) (*Entry, error) {
	if req.PatientID == uuid.Nil || req.TypeID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient and appointment type are required", schedule.ErrValidation)
	}
	now := s.clk.Now()
	e := &Entry{
		ID:         uuid.New(),
		ClinicID:   clinicID,
		PatientID:  req.PatientID,
		TypeID:     req.TypeID,
		ProviderID: req.ProviderID,
		Windows:    req.Windows,
		Urgent:     req.Urgent,
		Status:     EntryWaiting,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("create waitlist entry: %w", err)
	}
	return e, nil
}

// Withdraw removes an entry at the patient's request.
func (s *Service) Withdraw(ctx context.Context, clinicID, entryID uuid.UUID) error {
	_, err := s.repo.UpdateEntryStatus(ctx, clinicID, entryID, EntryWaiting, EntryWithdrawn)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// May be mid-offer; withdrawing an offered entry also revokes
			// the open offer on the next sweep.
			_, err = s.repo.UpdateEntryStatus(ctx, clinicID, entryID, EntryOffered, EntryWithdrawn)
		}
	}
	return err
}

// Candidates ranks the waiting entries eligible for an opening: window
// containment filters hard, urgent entries form an unconditional top tier,
// waiting time accrues within a tier, ties break on earliest creation.
func (s *Service) Candidates(ctx context.Context, clinicID, typeID, providerID uuid.UUID, iv schedule.Interval) ([]Entry, error) {
	waiting, err := s.repo.ListWaiting(ctx, clinicID, typeID)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}

	now := s.clk.Now()
	var eligible []Entry
	for _, e := range waiting {
		if !e.AcceptsInterval(iv) {
			continue
		}
		if e.ProviderID != nil && *e.ProviderID != providerID {
			continue
		}
		eligible = append(eligible, e)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Urgent != b.Urgent {
			return a.Urgent
		}
		si, sj := a.Score(now), b.Score(now)
		if si != sj {
			return si > sj
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return eligible, nil
}

// OpeningAvailable implements schedule.OpeningListener: a cancellation or
// no-show reclaimed an interval, so offer it to the best-ranked entry. When
// nobody is eligible the slot simply stays in general availability.
func (s *Service) OpeningAvailable(ctx context.Context, clinicID, typeID, providerID uuid.UUID, iv schedule.Interval) {
	if _, err := s.offerToNext(ctx, clinicID, typeID, providerID, iv); err != nil {
		s.log.Error().Err(err).
			Str("clinic_id", clinicID.String()).
			Time("start", iv.Start).
			Msg("offer opening failed")
	}
}

// offerToNext offers iv to the top candidate. Returns nil offer when the
// list is exhausted, at which point the slot stays in general availability.
func (s *Service) offerToNext(ctx context.Context, clinicID, typeID, providerID uuid.UUID, iv schedule.Interval) (*Offer, error) {
	candidates, err := s.Candidates(ctx, clinicID, typeID, providerID, iv)
	if err != nil {
		return nil, err
	}

	for _, entry := range candidates {
		// CAS guards against concurrent sweeps offering the same entry.
		if _, err := s.repo.UpdateEntryStatus(ctx, clinicID, entry.ID, EntryWaiting, EntryOffered); err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				continue
			}
			return nil, err
		}

		now := s.clk.Now()
		offer := &Offer{
			ID:         uuid.New(),
			EntryID:    entry.ID,
			ClinicID:   clinicID,
			TypeID:     typeID,
			ProviderID: providerID,
			Interval:   iv,
			Status:     OfferOpen,
			ExpiresAt:  now.Add(s.offerTTL),
			CreatedAt:  now,
		}
		if err := s.repo.CreateOffer(ctx, offer); err != nil {
			return nil, fmt.Errorf("create offer: %w", err)
		}
		if s.notifier != nil {
			s.notifier.Notify(ctx, clinicID, "WAITLIST_OFFER", offer.ID)
		}
		return offer, nil
	}
	return nil, nil
}

// AcceptOffer converts an open offer into a committed appointment. The
// protocol is idempotent: the offer moves open -> accepted exactly once;
// any later accept gets ErrStaleOffer. Acceptance re-validates the slot
// through the booking engine's commit gate, because an operator may have
// booked it directly since the offer was made.
func (s *Service) AcceptOffer(ctx context.Context, clinicID, entryID, offerID uuid.UUID) (*schedule.Appointment, error) {
	offer, err := s.repo.GetOffer(ctx, clinicID, offerID)
	if err != nil {
		return nil, err
	}
	if offer.EntryID != entryID {
		return nil, fmt.Errorf("%w: offer does not belong to entry", schedule.ErrValidation)
	}
	if offer.Status != OfferOpen || s.clk.Now().After(offer.ExpiresAt) {
		return nil, ErrStaleOffer
	}

	entry, err := s.repo.GetEntry(ctx, clinicID, entryID)
	if err != nil {
		return nil, err
	}
	// The entry may have been withdrawn while its offer was open; an offer
	// never outlives its entry.
	if entry.Status != EntryOffered {
		return nil, ErrStaleOffer
	}

	// Consume the offer first; a concurrent duplicate accept loses here.
	if _, err := s.repo.UpdateOfferStatus(ctx, clinicID, offerID, OfferOpen, OfferAccepted); err != nil {
		if errors.Is(err, ErrOfferNotFound) {
			return nil, ErrStaleOffer
		}
		return nil, err
	}

	results, err := s.booker.Book(ctx, clinicID, schedule.BookingRequest{
		PatientID:  entry.PatientID,
		ProviderID: offer.ProviderID,
		TypeID:     entry.TypeID,
		Start:      offer.Interval.Start,
	})
	if err != nil {
		// Slot gone: the entry goes back to waiting for the next opening.
		if _, ok := schedule.AsConflict(err); ok || errors.Is(err, schedule.ErrBookingConflict) {
			if _, uerr := s.repo.UpdateEntryStatus(ctx, clinicID, entryID, EntryOffered, EntryWaiting); uerr != nil {
				s.log.Error().Err(uerr).Str("entry_id", entryID.String()).Msg("restore entry after lost slot failed")
			}
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("book accepted offer: %w", err)
	}

	if _, err := s.repo.UpdateEntryStatus(ctx, clinicID, entryID, EntryOffered, EntryBooked); err != nil {
		s.log.Error().Err(err).Str("entry_id", entryID.String()).Msg("mark entry booked failed")
	}
	return results[0].Appointment, nil
}

// SweepExpiredOffers withdraws open offers past expiry and cascades each
// opening to the next-ranked entry. Driven by the periodic worker; there is
// never a parked goroutine per offer.
func (s *Service) SweepExpiredOffers(ctx context.Context) error {
	clinics, err := s.repo.ListClinics(ctx)
	if err != nil {
		return fmt.Errorf("list clinics: %w", err)
	}
	now := s.clk.Now()

	for _, clinicID := range clinics {
		expired, err := s.repo.FindExpiredOpenOffers(ctx, clinicID, now)
		if err != nil {
			return fmt.Errorf("find expired offers: %w", err)
		}
		for _, offer := range expired {
			if _, err := s.repo.UpdateOfferStatus(ctx, clinicID, offer.ID, OfferOpen, OfferExpired); err != nil {
				if errors.Is(err, ErrOfferNotFound) {
					continue // accepted while we swept
				}
				s.log.Error().Err(err).Str("offer_id", offer.ID.String()).Msg("expire offer failed")
				continue
			}

			// The entry let its offer lapse and leaves the list, so the
			// cascade can only move down the ranking and must terminate.
			if _, err := s.repo.UpdateEntryStatus(ctx, clinicID, offer.EntryID, EntryOffered, EntryExpired); err != nil && !errors.Is(err, ErrEntryNotFound) {
				s.log.Error().Err(err).Str("entry_id", offer.EntryID.String()).Msg("expire entry failed")
			}

			// Cascade to the next-ranked entry.
			if _, err := s.offerToNext(ctx, clinicID, offer.TypeID, offer.ProviderID, offer.Interval); err != nil {
				s.log.Error().Err(err).Str("offer_id", offer.ID.String()).Msg("re-offer after expiry failed")
			}
		}
	}
	return nil
}

// GetEntry exposes entry lookup for the API layer.
func (s *Service) GetEntry(ctx context.Context, clinicID, id uuid.UUID) (*Entry, error) {
	return s.repo.GetEntry(ctx, clinicID, id)
}
