package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ConflictDetector validates a proposed appointment against every committed
// active appointment. Half-open interval semantics: appointments that abut
// are never in conflict. The detector is advisory; the repository's insert
// gate is the authoritative check at commit time.
type ConflictDetector struct {
	repo Repository
}

func NewConflictDetector(repo Repository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// Check runs the independent conflict classes (provider, then each resource,
// then patient) and returns a *ConflictError for the first class that fails,
// or nil.
func (d *ConflictDetector) Check(ctx context.Context, proposed *Appointment) error {
	overlapping, err := d.repo.ListActiveOverlapping(ctx, proposed.ClinicID, proposed.Interval, proposed.ProviderID, proposed.PatientID, proposed.ResourceIDs)
	if err != nil {
		return fmt.Errorf("list overlapping appointments: %w", err)
	}

	var providerIDs, resourceIDs, patientIDs []uuid.UUID
	for _, other := range overlapping {
		if other.ID == proposed.ID {
			continue
		}
		if other.ProviderID == proposed.ProviderID {
			providerIDs = append(providerIDs, other.ID)
		}
		if sharesResource(other.ResourceIDs, proposed.ResourceIDs) {
			resourceIDs = append(resourceIDs, other.ID)
		}
		if other.PatientID == proposed.PatientID {
			patientIDs = append(patientIDs, other.ID)
		}
	}

	switch {
	case len(providerIDs) > 0:
		return &ConflictError{Class: ConflictProvider, ConflictingIDs: providerIDs}
	case len(resourceIDs) > 0:
		return &ConflictError{Class: ConflictResource, ConflictingIDs: resourceIDs}
	case len(patientIDs) > 0:
		// Patient overlap is a hard block even across providers; a patient
		// cannot hold two active appointments at the same time anywhere.
		return &ConflictError{Class: ConflictPatient, ConflictingIDs: patientIDs}
	}
	return nil
}

// CheckResources re-validates only the resource class against a candidate
// resource set, used by late allocation where the provider and patient
// intervals are already committed.
func (d *ConflictDetector) CheckResources(ctx context.Context, appt *Appointment, candidates []uuid.UUID) error {
	overlapping, err := d.repo.ListActiveOverlapping(ctx, appt.ClinicID, appt.Interval, uuid.Nil, uuid.Nil, candidates)
	if err != nil {
		return fmt.Errorf("list overlapping appointments: %w", err)
	}
	var ids []uuid.UUID
	for _, other := range overlapping {
		if other.ID == appt.ID {
			continue
		}
		if sharesResource(other.ResourceIDs, candidates) {
			ids = append(ids, other.ID)
		}
	}
	if len(ids) > 0 {
		return &ConflictError{Class: ConflictResource, ConflictingIDs: ids}
	}
	return nil
}

func sharesResource(a, b []uuid.UUID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
