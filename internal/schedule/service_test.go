package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestBookSingleAppointment(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	patientID := uuid.New()

	appt := f.book(t, BookingRequest{
		PatientID:  patientID,
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})

	if appt.Status != StatusScheduled {
		t.Fatalf("status=%s, want scheduled", appt.Status)
	}
	if !appt.Interval.End.Equal(monday(10, 30)) {
		t.Fatalf("end=%s, want 10:30", appt.Interval.End)
	}

	stored, err := f.svc.Get(context.Background(), f.clinicID, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.PatientID != patientID {
		t.Fatalf("stored patient=%s, want %s", stored.PatientID, patientID)
	}

	events := f.repo.Events()
	if len(events) != 1 || events[0].EventType != EventAppointmentBooked {
		t.Fatalf("events=%v, want one booked event", events)
	}
}

func TestBookRejectsUnknownReferences(t *testing.T) {
	f := newFixture(t, monday(8, 0))

	_, err := f.svc.Book(context.Background(), f.clinicID, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: uuid.New(), // not seeded
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("err=%v, want ErrProviderNotFound", err)
	}

	_, err = f.svc.Book(context.Background(), f.clinicID, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     uuid.New(),
		Start:      monday(10, 0),
	})
	if !errors.Is(err, ErrTypeNotFound) {
		t.Fatalf("err=%v, want ErrTypeNotFound", err)
	}
}

func TestBookOverlapIsConflict(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})

	_, err := f.svc.Book(context.Background(), f.clinicID, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 15),
	})
	ce, ok := AsConflict(err)
	if !ok {
		t.Fatalf("err=%v, want ConflictError", err)
	}
	if ce.Class != ConflictProvider {
		t.Fatalf("class=%s, want provider", ce.Class)
	}
}

func TestBookBackToBackSucceeds(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})
	f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 30),
	})
}

// TestConcurrentBookingSingleWinner drives many goroutines at one slot. The
// commit gate must let exactly one through; every loser gets an explicit
// conflict-shaped error, never a silent retry or a second row.
func TestConcurrentBookingSingleWinner(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	const attempts = 16

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.clinicID, BookingRequest{
				PatientID:  uuid.New(),
				ProviderID: f.provider.ID,
				TypeID:     f.checkup.ID,
				Start:      monday(10, 0),
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if !isConflictErr(err) {
			t.Fatalf("loser got non-conflict error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners=%d, want exactly 1", winners)
	}

	committed, err := f.repo.ListActiveOverlapping(context.Background(), f.clinicID,
		Interval{Start: monday(10, 0), End: monday(10, 30)}, f.provider.ID, uuid.Nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(committed) != 1 {
		t.Fatalf("committed=%d appointments, want 1", len(committed))
	}
}

func TestBookSeriesPartialSuccess(t *testing.T) {
	f := newFixture(t, monday(8, 0))

	// Pre-book the slot of occurrence 3 for another patient.
	blockStart := monday(10, 0).AddDate(0, 0, 21)
	f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      blockStart,
	})

	rule, err := NewRecurrenceRule(FreqWeekly, 1, 10, nil)
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	results, err := f.svc.Book(context.Background(), f.clinicID, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
		Recurrence: &rule,
	})
	if err != nil {
		t.Fatalf("book series: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}

	booked, skipped := 0, 0
	for _, res := range results {
		if res.Booked() {
			booked++
			continue
		}
		skipped++
		if res.Occurrence != 3 {
			t.Fatalf("occurrence %d skipped, want 3", res.Occurrence)
		}
		if res.SkipReason == "" {
			t.Fatal("skipped occurrence has no reason")
		}
	}
	if booked != 9 || skipped != 1 {
		t.Fatalf("booked=%d skipped=%d, want 9/1", booked, skipped)
	}

	// Every booked instance carries the series id.
	for _, res := range results {
		if res.Booked() && res.Appointment.SeriesID == nil {
			t.Fatalf("occurrence %d has no series id", res.Occurrence)
		}
	}
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	visits := &visitRecorder{}
	f.svc.SetVisitSpawner(visits)

	appt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})

	confirmed, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusConfirmed, nil)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Fatalf("status=%s, want confirmed", confirmed.Status)
	}

	// 09:30 is inside the -60m arrival window for a 10:00 start.
	f.clk.Set(monday(9, 30))
	checkedIn, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusCheckedIn, nil)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checkedIn.Status != StatusCheckedIn {
		t.Fatalf("status=%s, want checked_in", checkedIn.Status)
	}
	if spawned := visits.Spawned(); len(spawned) != 1 || spawned[0] != appt.ID {
		t.Fatalf("spawned=%v, want [%s]", spawned, appt.ID)
	}

	if _, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusInProgress, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	completed, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusCompleted, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Terminal states admit nothing further.
	if _, err := f.svc.Transition(context.Background(), f.clinicID, completed.ID, StatusCancelled, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err=%v, want ErrInvalidTransition out of completed", err)
	}
}

func TestTransitionRejectsUndefinedEdge(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	appt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})

	// scheduled -> in_progress skips two states.
	if _, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusInProgress, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err=%v, want ErrInvalidTransition", err)
	}
}

func TestCheckInOutsideArrivalWindow(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	appt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})
	if _, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// 08:00 is earlier than start-60m.
	f.clk.Set(monday(8, 0))
	if _, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusCheckedIn, nil); !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("err=%v, want ErrGuardViolation before window", err)
	}

	// 10:31 is past start+30m.
	f.clk.Set(monday(10, 31))
	if _, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusCheckedIn, nil); !errors.Is(err, ErrGuardViolation) {
		t.Fatalf("err=%v, want ErrGuardViolation after window", err)
	}
}

func TestCancelReleasesOpeningAndFreesSlot(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	openings := &openingRecorder{}
	f.svc.SetOpeningListener(openings)

	appt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})

	reason := "patient request"
	cancelled, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusCancelled, &reason)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != reason {
		t.Fatalf("cancel reason not recorded: %+v", cancelled.CancelReason)
	}

	released := openings.Released()
	if len(released) != 1 || !released[0].Start.Equal(monday(10, 0)) {
		t.Fatalf("released=%v, want the cancelled interval", released)
	}

	// The slot is bookable again.
	f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})
}

func TestSweepNoShows(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	openings := &openingRecorder{}
	f.svc.SetOpeningListener(openings)

	appt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})
	if _, err := f.svc.Transition(context.Background(), f.clinicID, appt.ID, StatusConfirmed, nil); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Inside the arrival window nothing happens yet.
	f.clk.Set(monday(10, 15))
	if err := f.svc.SweepNoShows(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	mid, _ := f.svc.Get(context.Background(), f.clinicID, appt.ID)
	if mid.Status != StatusConfirmed {
		t.Fatalf("status=%s after early sweep, want confirmed", mid.Status)
	}

	// Past start+30m the sweep flips it to no_show and releases the slot.
	f.clk.Set(monday(10, 45))
	if err := f.svc.SweepNoShows(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	after, _ := f.svc.Get(context.Background(), f.clinicID, appt.ID)
	if after.Status != StatusNoShow {
		t.Fatalf("status=%s, want no_show", after.Status)
	}
	if len(openings.Released()) != 1 {
		t.Fatalf("released=%v, want one opening", openings.Released())
	}
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	appt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})

	otherClinic := uuid.New()
	if _, err := f.svc.Get(context.Background(), otherClinic, appt.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("err=%v, want not-found across clinics", err)
	}
	if _, err := f.svc.Transition(context.Background(), otherClinic, appt.ID, StatusConfirmed, nil); err == nil {
		t.Fatal("cross-clinic transition succeeded")
	}
}

func TestCalendarListsCommitted(t *testing.T) {
	f := newFixture(t, monday(8, 0))
	f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(10, 0),
	})
	cancelledAppt := f.book(t, BookingRequest{
		PatientID:  uuid.New(),
		ProviderID: f.provider.ID,
		TypeID:     f.checkup.ID,
		Start:      monday(11, 0),
	})
	if _, err := f.svc.Transition(context.Background(), f.clinicID, cancelledAppt.ID, StatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	day := Interval{Start: monday(0, 0), End: monday(0, 0).AddDate(0, 0, 1)}
	got, err := f.svc.Calendar(context.Background(), f.clinicID, day, f.provider.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d committed, want 1 (cancelled excluded)", len(got))
	}
	if got[0].Interval.Start != monday(10, 0) {
		t.Fatalf("unexpected committed appointment: %v", got[0].Interval)
	}
}
