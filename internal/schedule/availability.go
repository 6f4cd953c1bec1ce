package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AvailabilityEngine computes open, bookable candidate slots for a provider
// and a set of required resources. All read-side work runs lock-free; the
// result is only a suggestion and every booking is re-validated at commit.
type AvailabilityEngine struct {
	repo         Repository
	maxRangeDays int
}

func NewAvailabilityEngine(repo Repository, maxRangeDays int) *AvailabilityEngine {
	if maxRangeDays <= 0 {
		maxRangeDays = 90
	}
	return &AvailabilityEngine{repo: repo, maxRangeDays: maxRangeDays}
}

// SlotQuery describes one availability request.
type SlotQuery struct {
	ProviderID  uuid.UUID
	ResourceIDs []uuid.UUID
	TypeID      uuid.UUID
	Range       Interval
}

// OpenSlots returns candidate intervals at the appointment type's padded
// duration, within provider working hours, minus blackouts and committed
// appointments, intersected with every required resource's own free time.
// The scan is bounded by the configured maximum range and the ctx deadline.
func (e *AvailabilityEngine) OpenSlots(ctx context.Context, clinicID uuid.UUID, q SlotQuery) ([]Interval, error) {
	if !q.Range.Start.Before(q.Range.End) {
		return nil, fmt.Errorf("%w: empty date range", ErrValidation)
	}
	maxEnd := q.Range.Start.AddDate(0, 0, e.maxRangeDays)
	if q.Range.End.After(maxEnd) {
		q.Range.End = maxEnd
	}

	provider, err := e.repo.GetProvider(ctx, clinicID, q.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	apptType, err := e.repo.GetAppointmentType(ctx, clinicID, q.TypeID)
	if err != nil {
		return nil, fmt.Errorf("load appointment type: %w", err)
	}

	free, err := e.freeWindows(ctx, clinicID, q.Range, provider.Hours, provider.Blackouts, q.ProviderID, uuid.Nil)
	if err != nil {
		return nil, err
	}

	for _, resID := range q.ResourceIDs {
		res, err := e.repo.GetResource(ctx, clinicID, resID)
		if err != nil {
			return nil, fmt.Errorf("load resource: %w", err)
		}
		resFree, err := e.freeWindows(ctx, clinicID, q.Range, res.Hours, res.Blackouts, uuid.Nil, resID)
		if err != nil {
			return nil, err
		}
		free = Intersect(free, resFree)
		if len(free) == 0 {
			return nil, nil
		}
	}

	return carve(free, apptType.PaddedDuration()), nil
}

// freeWindows computes the working windows of one provider or resource over
// the range, minus blackouts and committed active appointments.
func (e *AvailabilityEngine) freeWindows(ctx context.Context, clinicID uuid.UUID, rng Interval, hours WeekTemplate, blackouts []Interval, providerID, resourceID uuid.UUID) ([]Interval, error) {
	var windows []Interval
	for day := rng.Start; day.Before(rng.End); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		windows = append(windows, hours.WindowsOn(day)...)
	}
	// Clamp to the requested range, then truncate around blackouts.
	windows = Intersect(windows, []Interval{rng})
	windows = SubtractAll(windows, blackouts)

	booked, err := e.repo.ListActiveInRange(ctx, clinicID, rng, providerID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load committed appointments: %w", err)
	}
	cuts := make([]Interval, 0, len(booked))
	for _, a := range booked {
		cuts = append(cuts, a.Interval)
	}
	return SubtractAll(windows, cuts), nil
}

// carve cuts free windows into candidate slots of the requested duration,
// aligned to window starts. A window shorter than one slot yields nothing,
// so a closed day produces no candidates at all.
func carve(free []Interval, slot time.Duration) []Interval {
	if slot <= 0 {
		return nil
	}
	var out []Interval
	for _, w := range free {
		for start := w.Start; !start.Add(slot).After(w.End); start = start.Add(slot) {
			out = append(out, Interval{Start: start, End: start.Add(slot)})
		}
	}
	return out
}
