package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/clock"
	redisclient "github.com/practiceops/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCheckedIn = "APPOINTMENT_CHECKED_IN"
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventSeriesBooked         = "SERIES_BOOKED"
	EventResourcesBound       = "RESOURCES_BOUND"
)

var (
	// ErrSlotBeingBooked means another request holds the booking lock for
	// the same provider-day; the caller should retry shortly.
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
)

// OpeningListener is told when a committed interval is released back to
// availability (cancellation or no-show) so a waitlist can claim it.
type OpeningListener interface {
	OpeningAvailable(ctx context.Context, clinicID, typeID, providerID uuid.UUID, iv Interval)
}

// VisitSpawner creates the day-of-service flow tracker when an appointment
// checks in.
type VisitSpawner interface {
	SpawnVisit(ctx context.Context, clinicID, appointmentID, patientID uuid.UUID) error
}

// Notifier is invoked fire-and-forget on transitions that warrant a patient
// notification. The scheduling core never blocks on delivery.
type Notifier interface {
	Notify(ctx context.Context, clinicID uuid.UUID, event string, appointmentID uuid.UUID)
}

// ServiceConfig carries the tunable guard parameters.
type ServiceConfig struct {
	// ArrivalEarly/ArrivalLate bound the check-in window around the
	// appointment start, e.g. -60m/+30m.
	ArrivalEarly      time.Duration
	ArrivalLate       time.Duration
	RecurrenceHorizon int
}

// Service owns appointment booking and the appointment lifecycle. Reads run
// lock-free; the commit path takes a short per provider-day Redis lock and
// relies on the repository's insert gate as the authoritative check, so a
// lost race always surfaces as a conflict rather than a silent retry.
type Service struct {
	repo     Repository
	detector *ConflictDetector
	locker   redisclient.Locker
	clk      clock.Clock
	cfg      ServiceConfig
	log      zerolog.Logger

	openings OpeningListener
	visits   VisitSpawner
	notifier Notifier
}

func NewService(repo Repository, locker redisclient.Locker, clk clock.Clock, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.RecurrenceHorizon <= 0 {
		cfg.RecurrenceHorizon = 52
	}
	return &Service{
		repo:     repo,
		detector: NewConflictDetector(repo),
		locker:   locker,
		clk:      clk,
		cfg:      cfg,
		log:      log,
	}
}

func (s *Service) SetOpeningListener(l OpeningListener) { s.openings = l }
func (s *Service) SetVisitSpawner(v VisitSpawner)       { s.visits = v }
func (s *Service) SetNotifier(n Notifier)               { s.notifier = n }

// Detector exposes the conflict detector for collaborators that must re-run
// a class of checks, such as the resource allocator.
func (s *Service) Detector() *ConflictDetector { return s.detector }

// Repo exposes the calendar store to collaborators wired in main.
func (s *Service) Repo() Repository { return s.repo }

// BookingRequest is one appointment draft entering the engine.
type BookingRequest struct {
	PatientID   uuid.UUID
	ProviderID  uuid.UUID
	ResourceIDs []uuid.UUID
	TypeID      uuid.UUID
	Start       time.Time
	Recurrence  *RecurrenceRule
}

// InstanceResult reports the outcome of one occurrence of a booking. For a
// single (non-recurring) booking there is exactly one result.
type InstanceResult struct {
	Occurrence  int
	Appointment *Appointment
	SkipReason  string
}

func (r InstanceResult) Booked() bool { return r.Appointment != nil }

// Book validates the request, expands any recurrence, and commits each
// occurrence independently. A conflicting occurrence is reported as skipped;
// siblings still book. For a single booking a conflict is returned as the
// error directly.
func (s *Service) Book(ctx context.Context, clinicID uuid.UUID, req BookingRequest) ([]InstanceResult, error) {
	apptType, err := s.repo.GetAppointmentType(ctx, clinicID, req.TypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}
	if _, err := s.repo.GetProvider(ctx, clinicID, req.ProviderID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	for _, resID := range req.ResourceIDs {
		if _, err := s.repo.GetResource(ctx, clinicID, resID); err != nil {
			return nil, fmt.Errorf("load resource: %w", err)
		}
	}

	seed, err := NewInterval(req.Start, req.Start.Add(apptType.PaddedDuration()))
	if err != nil {
		return nil, err
	}

	if req.Recurrence == nil {
		appt, err := s.bookOne(ctx, clinicID, req, seed, nil)
		if err != nil {
			return nil, err
		}
		return []InstanceResult{{Occurrence: 0, Appointment: appt}}, nil
	}

	series := &RecurrenceSeries{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		Rule:      *req.Recurrence,
		TypeID:    req.TypeID,
		CreatedAt: s.clk.Now(),
	}
	if err := s.repo.CreateSeries(ctx, series); err != nil {
		return nil, fmt.Errorf("create series: %w", err)
	}

	drafts := Expand(*req.Recurrence, seed, s.cfg.RecurrenceHorizon)
	results := make([]InstanceResult, 0, len(drafts))
	for _, draft := range drafts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		appt, err := s.bookOne(ctx, clinicID, req, draft.Interval, &series.ID)
		switch {
		case err == nil:
			results = append(results, InstanceResult{Occurrence: draft.Occurrence, Appointment: appt})
		case isConflictErr(err):
			// Partial success is the expected outcome for a series.
			results = append(results, InstanceResult{Occurrence: draft.Occurrence, SkipReason: err.Error()})
		default:
			// Infrastructure failure: earlier occurrences stand, this and
			// later ones are reported against the failed occurrence.
			return results, fmt.Errorf("book occurrence %d: %w", draft.Occurrence, err)
		}
	}

	s.logEvent(ctx, clinicID, nil, EventSeriesBooked, map[string]any{
		"series_id": series.ID.String(),
		"requested": len(drafts),
		"booked":    countBooked(results),
	})
	return results, nil
}

func (s *Service) bookOne(ctx context.Context, clinicID uuid.UUID, req BookingRequest, iv Interval, seriesID *uuid.UUID) (*Appointment, error) {
	appt := &Appointment{
		ID:          uuid.New(),
		ClinicID:    clinicID,
		PatientID:   req.PatientID,
		ProviderID:  req.ProviderID,
		ResourceIDs: req.ResourceIDs,
		TypeID:      req.TypeID,
		Interval:    iv,
		Status:      StatusScheduled,
		SeriesID:    seriesID,
		CreatedAt:   s.clk.Now(),
		UpdatedAt:   s.clk.Now(),
	}

	lockKey := bookingLockKey(clinicID, req.ProviderID, iv.Start)
	err := s.locker.WithLock(ctx, lockKey, func(lockCtx context.Context) error {
		if err := s.detector.Check(lockCtx, appt); err != nil {
			return err
		}
		if err := s.repo.CreateAppointment(lockCtx, appt); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, clinicID, &appt.ID, EventAppointmentBooked, map[string]any{
		"provider_id": req.ProviderID.String(),
		"patient_id":  req.PatientID.String(),
		"start":       iv.Start,
		"end":         iv.End,
	})
	s.notify(ctx, clinicID, EventAppointmentBooked, appt.ID)
	return appt, nil
}

// bookingLockKey serializes commits per provider-day. The lock only narrows
// the race window; the repository gate is what makes the commit atomic.
func bookingLockKey(clinicID, providerID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("lock:booking:%s:%s:%s", clinicID, providerID, start.UTC().Format("2006-01-02"))
}

// Transition moves an appointment to the target status, enforcing the state
// machine and the check-in arrival window. Cancellation and no-show release
// the interval and hand the opening to the waitlist.
func (s *Service) Transition(ctx context.Context, clinicID, id uuid.UUID, target AppointmentStatus, cancelReason *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, clinicID, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status.Terminal() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, appt.Status)
	}
	if !ValidTransition(appt.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, target)
	}

	if target == StatusCheckedIn {
		now := s.clk.Now()
		earliest := appt.Interval.Start.Add(-s.cfg.ArrivalEarly)
		latest := appt.Interval.Start.Add(s.cfg.ArrivalLate)
		if now.Before(earliest) || now.After(latest) {
			return nil, fmt.Errorf("%w: check-in at %s is outside arrival window [%s, %s]",
				ErrGuardViolation, now.Format(time.RFC3339), earliest.Format(time.RFC3339), latest.Format(time.RFC3339))
		}
	}
	if target != StatusCancelled {
		cancelReason = nil
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, clinicID, id, appt.Status, target, cancelReason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with a concurrent transition.
			return nil, fmt.Errorf("%w: appointment moved concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("transition appointment: %w", err)
	}

	event := eventForStatus(target)
	payload := map[string]any{"from": string(appt.Status), "to": string(target)}
	if cancelReason != nil {
		payload["reason"] = *cancelReason
	}
	s.logEvent(ctx, clinicID, &updated.ID, event, payload)
	s.notify(ctx, clinicID, event, updated.ID)

	switch target {
	case StatusCheckedIn:
		if s.visits != nil {
			if err := s.visits.SpawnVisit(ctx, clinicID, updated.ID, updated.PatientID); err != nil {
				s.log.Error().Err(err).Str("appointment_id", updated.ID.String()).Msg("spawn visit failed")
			}
		}
	case StatusCancelled, StatusNoShow:
		s.releaseOpening(ctx, updated)
	}

	return updated, nil
}

// releaseOpening returns the interval to availability. The row's status
// change already freed it for the conflict detector; here the waitlist gets
// first claim on the opening.
func (s *Service) releaseOpening(ctx context.Context, appt *Appointment) {
	if s.openings == nil {
		return
	}
	s.openings.OpeningAvailable(ctx, appt.ClinicID, appt.TypeID, appt.ProviderID, appt.Interval)
}

// SweepNoShows marks confirmed appointments whose arrival window fully
// elapsed without a check-in. Intended for the periodic worker.
func (s *Service) SweepNoShows(ctx context.Context) error {
	clinics, err := s.repo.ListClinics(ctx)
	if err != nil {
		return fmt.Errorf("list clinics: %w", err)
	}
	cutoff := s.clk.Now().Add(-s.cfg.ArrivalLate)
	for _, clinicID := range clinics {
		overdue, err := s.repo.FindOverdueConfirmed(ctx, clinicID, cutoff)
		if err != nil {
			return fmt.Errorf("find overdue confirmed: %w", err)
		}
		for _, appt := range overdue {
			updated, err := s.repo.UpdateAppointmentStatus(ctx, clinicID, appt.ID, StatusConfirmed, StatusNoShow, nil)
			if err != nil {
				if errors.Is(err, ErrAppointmentNotFound) {
					continue // checked in or cancelled since the query
				}
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("no-show sweep update failed")
				continue
			}
			s.logEvent(ctx, clinicID, &updated.ID, EventAppointmentNoShow, map[string]any{"reason": "sweep"})
			s.notify(ctx, clinicID, EventAppointmentNoShow, updated.ID)
			s.releaseOpening(ctx, updated)
		}
	}
	return nil
}

// Get retrieves an appointment by id.
func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, clinicID, id)
}

// Calendar returns the committed active appointments for a provider or
// resource within the range.
func (s *Service) Calendar(ctx context.Context, clinicID uuid.UUID, rng Interval, providerID, resourceID uuid.UUID) ([]Appointment, error) {
	if !rng.Start.Before(rng.End) {
		return nil, fmt.Errorf("%w: empty date range", ErrValidation)
	}
	return s.repo.ListActiveInRange(ctx, clinicID, rng, providerID, resourceID)
}

func (s *Service) notify(ctx context.Context, clinicID uuid.UUID, event string, apptID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, clinicID, event, apptID)
}

func (s *Service) logEvent(ctx context.Context, clinicID uuid.UUID, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload failed")
		data = nil
	}
	ev := EventLog{
		ClinicID:      clinicID,
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.clk.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("insert event log failed")
	}
}

func eventForStatus(st AppointmentStatus) string {
	switch st {
	case StatusConfirmed:
		return EventAppointmentConfirmed
	case StatusCheckedIn:
		return EventAppointmentCheckedIn
	case StatusInProgress:
		return EventAppointmentStarted
	case StatusCompleted:
		return EventAppointmentCompleted
	case StatusCancelled:
		return EventAppointmentCancelled
	case StatusNoShow:
		return EventAppointmentNoShow
	}
	return "APPOINTMENT_TRANSITION"
}

func isConflictErr(err error) bool {
	if _, ok := AsConflict(err); ok {
		return true
	}
	return errors.Is(err, ErrBookingConflict) || errors.Is(err, ErrSlotBeingBooked)
}

func countBooked(results []InstanceResult) int {
	n := 0
	for _, r := range results {
		if r.Booked() {
			n++
		}
	}
	return n
}
