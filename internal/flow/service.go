package flow

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

// Service tracks each Visit through the clinic and derives the daily queue.
// Transitions are low-contention (one staff member per visit at a time) and
// use last-write-wins CAS with an append-only history.
type Service struct {
	repo       Repository
	clk        clock.Clock
	waitingSLA time.Duration
	log        zerolog.Logger
}

func NewService(repo Repository, clk clock.Clock, waitingSLA time.Duration, log zerolog.Logger) *Service {
	if waitingSLA <= 0 {
		waitingSLA = 30 * time.Minute
	}
	return &Service{repo: repo, clk: clk, waitingSLA: waitingSLA, log: log}
}

// SpawnVisit implements schedule.VisitSpawner: a check-in on the appointment
// state machine opens the day-of-service tracker.
func (s *Service) SpawnVisit(ctx context.Context, clinicID, appointmentID, patientID uuid.UUID) error {
	_, err := s.Open(ctx, clinicID, OpenVisitRequest{
		AppointmentID: &appointmentID,
		PatientID:     patientID,
		LocationID:    clinicID, // default location is the clinic itself
	})
	return err
}

type OpenVisitRequest struct {
	AppointmentID *uuid.UUID // nil for walk-ins
	PatientID     uuid.UUID
	LocationID    uuid.UUID
	Priority      bool
}

// Open creates a Visit in the arrived state and immediately moves it to
// waiting, which places it in the queue.
func (s *Service) Open(ctx context.Context, clinicID uuid.UUID, req OpenVisitRequest) (*Visit, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient is required", schedule.ErrValidation)
	}
	now := s.clk.Now()
	v := &Visit{
		ID:            uuid.New(),
		ClinicID:      clinicID,
		LocationID:    req.LocationID,
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		State:         StateArrived,
		ArrivedAt:     now,
		Priority:      req.Priority,
		StateSince:    now,
		CreatedAt:     now,
	}
	if err := s.repo.CreateVisit(ctx, v); err != nil {
		return nil, fmt.Errorf("create visit: %w", err)
	}
	return s.Transition(ctx, clinicID, v.ID, StateWaiting)
}

// Transition advances a visit. Illegal moves, including anything out of a
// terminal state, surface as ErrInvalidTransition.
func (s *Service) Transition(ctx context.Context, clinicID, visitID uuid.UUID, target VisitState) (*Visit, error) {
	v, err := s.repo.GetVisit(ctx, clinicID, visitID)
	if err != nil {
		return nil, err
	}
	if v.State.Terminal() {
		return nil, fmt.Errorf("%w: visit is %s", schedule.ErrInvalidTransition, v.State)
	}
	if !ValidTransition(v.State, target) {
		return nil, fmt.Errorf("%w: %s -> %s", schedule.ErrInvalidTransition, v.State, target)
	}

	updated, err := s.repo.UpdateVisitState(ctx, clinicID, visitID, v.State, target, s.clk.Now())
	if err != nil {
		if errors.Is(err, ErrVisitNotFound) {
			return nil, fmt.Errorf("%w: visit moved concurrently", schedule.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("transition visit: %w", err)
	}
	return updated, nil
}

// History returns the append-only transition log of one visit.
func (s *Service) History(ctx context.Context, clinicID, visitID uuid.UUID) ([]VisitTransition, error) {
	return s.repo.ListTransitions(ctx, clinicID, visitID)
}

// Get retrieves a visit.
func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*Visit, error) {
	return s.repo.GetVisit(ctx, clinicID, id)
}

// Queue derives the current queue for a location. Already-called visits keep
// their place at the head in call order; among waiting visits, priority
// selects ahead of arrival order without touching arrival timestamps.
func (s *Service) Queue(ctx context.Context, clinicID, locationID uuid.UUID) ([]QueueTicket, error) {
	visits, err := s.repo.ListInStates(ctx, clinicID, locationID, []VisitState{StateCalled, StateWaiting})
	if err != nil {
		return nil, fmt.Errorf("list queue visits: %w", err)
	}

	sort.SliceStable(visits, func(i, j int) bool {
		a, b := visits[i], visits[j]
		// Called visits always stay ahead of waiting ones.
		if (a.State == StateCalled) != (b.State == StateCalled) {
			return a.State == StateCalled
		}
		if a.State == StateCalled {
			return a.StateSince.Before(b.StateSince)
		}
		if a.Priority != b.Priority {
			return a.Priority
		}
		return a.ArrivedAt.Before(b.ArrivedAt)
	})

	now := s.clk.Now()
	tickets := make([]QueueTicket, len(visits))
	for i, v := range visits {
		tickets[i] = QueueTicket{
			Position:  i + 1,
			VisitID:   v.ID,
			PatientID: v.PatientID,
			State:     v.State,
			ArrivedAt: v.ArrivedAt,
			Priority:  v.Priority,
			Waiting:   now.Sub(v.ArrivedAt).Round(time.Second).String(),
		}
	}
	return tickets, nil
}

// WaitingBeyondSLA returns visits that have been waiting longer than the
// configured threshold, the basis for wait-time alerts.
func (s *Service) WaitingBeyondSLA(ctx context.Context, clinicID uuid.UUID) ([]Visit, error) {
	visits, err := s.repo.ListInStates(ctx, clinicID, uuid.Nil, []VisitState{StateWaiting})
	if err != nil {
		return nil, err
	}
	cutoff := s.clk.Now().Add(-s.waitingSLA)
	var out []Visit
	for _, v := range visits {
		if v.StateSince.Before(cutoff) {
			out = append(out, v)
		}
	}
	return out, nil
}

// SweepSLA logs an alert per visit over the waiting threshold, across all
// clinics. Intended for the periodic worker.
func (s *Service) SweepSLA(ctx context.Context) error {
	clinics, err := s.repo.ListClinics(ctx)
	if err != nil {
		return fmt.Errorf("list clinics: %w", err)
	}
	for _, clinicID := range clinics {
		over, err := s.WaitingBeyondSLA(ctx, clinicID)
		if err != nil {
			return fmt.Errorf("waiting beyond sla: %w", err)
		}
		for _, v := range over {
			s.log.Warn().
				Str("clinic_id", clinicID.String()).
				Str("visit_id", v.ID.String()).
				Time("waiting_since", v.StateSince).
				Msg("visit waiting beyond threshold")
		}
	}
	return nil
}
