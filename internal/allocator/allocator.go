// Package allocator binds concrete chairs, rooms, and equipment to an
// appointment at confirmation or check-in time. Late binding lets a
// generically booked "any chair" appointment take whichever qualifying
// resource is still free when it actually matters.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/schedule"
)

var (
	// ErrResourceUnavailable means no free resource satisfies the
	// appointment type's capability requirements. The appointment stays in
	// its prior state; a non-qualifying resource is never substituted.
	ErrResourceUnavailable = errors.New("no qualifying resource available")
)

type Allocator struct {
	repo     schedule.Repository
	detector *schedule.ConflictDetector
	log      zerolog.Logger
}

func New(repo schedule.Repository, detector *schedule.ConflictDetector, log zerolog.Logger) *Allocator {
	return &Allocator{repo: repo, detector: detector, log: log}
}

// Allocate picks one free resource per unmet capability tag and binds the
// set to the appointment. Resources already bound at booking time count
// toward the requirements, so a concretely booked appointment allocates
// nothing and a repeat run is a no-op. Resource conflicts are re-checked
// immediately before binding, since time has passed since the original
// booking, and the bind itself goes through the repository's atomic gate.
func (a *Allocator) Allocate(ctx context.Context, appt *schedule.Appointment) ([]schedule.Resource, error) {
	apptType, err := a.repo.GetAppointmentType(ctx, appt.ClinicID, appt.TypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	all, err := a.repo.ListResources(ctx, appt.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	// Stable order keeps allocation deterministic under equal fit.
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	bound := boundResources(all, appt.ResourceIDs)
	remaining := unmetTags(apptType.RequiredTags, bound)
	if len(remaining) == 0 {
		if len(apptType.RequiredTags) > 0 || len(appt.ResourceIDs) > 0 {
			// Requirements already satisfied; nothing to bind.
			return nil, nil
		}
		remaining = []string{""} // bind any one resource for untagged types
	}

	var chosen []schedule.Resource
	for _, tag := range remaining {
		res, err := a.pickFree(ctx, appt, all, tag, chosen)
		if err != nil {
			return nil, err
		}
		chosen = append(chosen, *res)
	}

	ids := make([]uuid.UUID, len(chosen))
	for i, r := range chosen {
		ids[i] = r.ID
	}
	if err := a.repo.BindResources(ctx, appt.ClinicID, appt.ID, ids); err != nil {
		if errors.Is(err, schedule.ErrBookingConflict) {
			// Lost the bind race; report it, never downgrade.
			return nil, ErrResourceUnavailable
		}
		return nil, fmt.Errorf("bind resources: %w", err)
	}

	a.log.Info().
		Str("appointment_id", appt.ID.String()).
		Int("resources", len(ids)).
		Msg("resources allocated")
	return chosen, nil
}

func (a *Allocator) pickFree(ctx context.Context, appt *schedule.Appointment, all []schedule.Resource, tag string, taken []schedule.Resource) (*schedule.Resource, error) {
	for i := range all {
		res := &all[i]
		if tag != "" && !res.HasCapabilities([]string{tag}) {
			continue
		}
		if containsResource(taken, res.ID) || containsID(appt.ResourceIDs, res.ID) {
			continue
		}
		err := a.detector.CheckResources(ctx, appt, []uuid.UUID{res.ID})
		if err == nil {
			return res, nil
		}
		if _, ok := schedule.AsConflict(err); ok {
			continue // busy, try the next qualifying resource
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: capability %q", ErrResourceUnavailable, tag)
}

func boundResources(all []schedule.Resource, ids []uuid.UUID) []schedule.Resource {
	var out []schedule.Resource
	for _, r := range all {
		if containsID(ids, r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// unmetTags returns the required tags not covered by any bound resource.
func unmetTags(required []string, bound []schedule.Resource) []string {
	var out []string
	for _, tag := range required {
		satisfied := false
		for _, r := range bound {
			if r.HasCapabilities([]string{tag}) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			out = append(out, tag)
		}
	}
	return out
}

func containsResource(rs []schedule.Resource, id uuid.UUID) bool {
	for _, r := range rs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
