package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// monday returns a weekday inside the fixture's working hours.
func monday(hour, min int) time.Time {
	return time.Date(2026, time.March, 2, hour, min, 0, 0, time.UTC)
}

func seedAppointment(f *fixture, patientID uuid.UUID, start, end time.Time, resources ...uuid.UUID) *Appointment {
	appt := &Appointment{
		ID:          uuid.New(),
		ClinicID:    f.clinicID,
		PatientID:   patientID,
		ProviderID:  f.provider.ID,
		ResourceIDs: resources,
		TypeID:      f.checkup.ID,
		Interval:    Interval{Start: start, End: end},
		Status:      StatusScheduled,
	}
	if err := f.repo.CreateAppointment(context.Background(), appt); err != nil {
		panic(err)
	}
	return appt
}

func TestConflictDetectorProviderOverlap(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	existing := seedAppointment(f, uuid.New(), monday(10, 0), monday(11, 0))

	detector := NewConflictDetector(f.repo)
	proposed := &Appointment{
		ID:         uuid.New(),
		ClinicID:   f.clinicID,
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Interval:   Interval{Start: monday(10, 30), End: monday(11, 30)},
	}

	err := detector.Check(context.Background(), proposed)
	ce, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Class != ConflictProvider {
		t.Fatalf("class=%s, want provider", ce.Class)
	}
	if len(ce.ConflictingIDs) != 1 || ce.ConflictingIDs[0] != existing.ID {
		t.Fatalf("conflicting ids=%v, want [%s]", ce.ConflictingIDs, existing.ID)
	}
}

func TestConflictDetectorBackToBackIsClean(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	seedAppointment(f, uuid.New(), monday(10, 0), monday(11, 0))

	detector := NewConflictDetector(f.repo)
	proposed := &Appointment{
		ID:         uuid.New(),
		ClinicID:   f.clinicID,
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Interval:   Interval{Start: monday(11, 0), End: monday(12, 0)},
	}

	if err := detector.Check(context.Background(), proposed); err != nil {
		t.Fatalf("back-to-back flagged as conflict: %v", err)
	}
}

func TestConflictDetectorPatientHardBlockAcrossProviders(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	patientID := uuid.New()
	seedAppointment(f, patientID, monday(10, 0), monday(11, 0))

	otherProvider := Provider{ID: uuid.New(), ClinicID: f.clinicID, Name: "Dr. Okafor", Hours: weekdayTemplate()}
	f.repo.PutProvider(otherProvider)

	detector := NewConflictDetector(f.repo)
	proposed := &Appointment{
		ID:         uuid.New(),
		ClinicID:   f.clinicID,
		PatientID:  patientID,
		ProviderID: otherProvider.ID,
		TypeID:     f.checkup.ID,
		Interval:   Interval{Start: monday(10, 30), End: monday(11, 30)},
	}

	err := detector.Check(context.Background(), proposed)
	ce, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Class != ConflictPatient {
		t.Fatalf("class=%s, want patient", ce.Class)
	}
}

func TestConflictDetectorResourceOverlap(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	otherProvider := Provider{ID: uuid.New(), ClinicID: f.clinicID, Name: "Dr. Okafor", Hours: weekdayTemplate()}
	f.repo.PutProvider(otherProvider)
	seedAppointment(f, uuid.New(), monday(10, 0), monday(11, 0), f.chair.ID)

	detector := NewConflictDetector(f.repo)
	proposed := &Appointment{
		ID:          uuid.New(),
		ClinicID:    f.clinicID,
		PatientID:   uuid.New(),
		ProviderID:  otherProvider.ID,
		ResourceIDs: []uuid.UUID{f.chair.ID},
		TypeID:      f.checkup.ID,
		Interval:    Interval{Start: monday(10, 30), End: monday(11, 30)},
	}

	err := detector.Check(context.Background(), proposed)
	ce, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if ce.Class != ConflictResource {
		t.Fatalf("class=%s, want resource", ce.Class)
	}
}

func TestCheckResourcesIgnoresOwnRows(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	appt := seedAppointment(f, uuid.New(), monday(10, 0), monday(11, 0), f.chair.ID)

	detector := NewConflictDetector(f.repo)
	// The appointment's own binding does not conflict with itself.
	if err := detector.CheckResources(context.Background(), appt, []uuid.UUID{f.chair.ID}); err != nil {
		t.Fatalf("self-conflict reported: %v", err)
	}

	other := seedAppointment(f, uuid.New(), monday(14, 0), monday(15, 0))
	other.Interval = Interval{Start: monday(10, 30), End: monday(11, 30)}
	if err := detector.CheckResources(context.Background(), other, []uuid.UUID{f.chair.ID}); err == nil {
		t.Fatal("expected resource conflict for overlapping candidate")
	}
}
