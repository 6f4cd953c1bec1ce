package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practiceops/clinic-scheduling/internal/clock"
	redisclient "github.com/practiceops/clinic-scheduling/internal/redis"
)

// fixture wires a Service against in-memory infrastructure with one clinic,
// one provider working weekdays 09:00-17:00 with a 12:00-13:00 break, one
// chair, and one 30-minute appointment type.
type fixture struct {
	repo     *MemoryRepository
	svc      *Service
	clk      *clock.Fake
	clinicID uuid.UUID
	provider Provider
	chair    Resource
	checkup  AppointmentType
}

func weekdayTemplate() WeekTemplate {
	days := map[time.Weekday][]DayWindow{}
	breaks := map[time.Weekday][]DayWindow{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		days[wd] = []DayWindow{{OpenMinute: 9 * 60, CloseMinute: 17 * 60}}
		breaks[wd] = []DayWindow{{OpenMinute: 12 * 60, CloseMinute: 13 * 60}}
	}
	return WeekTemplate{Days: days, Breaks: breaks}
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	f := &fixture{
		repo:     NewMemoryRepository(),
		clk:      clock.NewFake(now),
		clinicID: uuid.New(),
	}
	f.provider = Provider{
		ID:       uuid.New(),
		ClinicID: f.clinicID,
		Name:     "Dr. Reyes",
		Hours:    weekdayTemplate(),
	}
	f.chair = Resource{
		ID:       uuid.New(),
		ClinicID: f.clinicID,
		Name:     "Chair 1",
		Kind:     ResourceChair,
		Hours:    weekdayTemplate(),
	}
	f.checkup = AppointmentType{
		ID:       uuid.New(),
		ClinicID: f.clinicID,
		Name:     "Checkup",
		Duration: 30 * time.Minute,
	}
	f.repo.PutProvider(f.provider)
	f.repo.PutResource(f.chair)
	f.repo.PutAppointmentType(f.checkup)

	f.svc = NewService(f.repo, redisclient.NewInMemoryLocker(), f.clk, ServiceConfig{
		ArrivalEarly:      60 * time.Minute,
		ArrivalLate:       30 * time.Minute,
		RecurrenceHorizon: 52,
	}, zerolog.Nop())
	return f
}

// book commits a single appointment or fails the test.
func (f *fixture) book(t *testing.T, req BookingRequest) *Appointment {
	t.Helper()
	results, err := f.svc.Book(context.Background(), f.clinicID, req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(results) != 1 || !results[0].Booked() {
		t.Fatalf("expected one booked instance, got %+v", results)
	}
	return results[0].Appointment
}

// openingRecorder captures released openings.
type openingRecorder struct {
	mu       sync.Mutex
	released []Interval
}

func (r *openingRecorder) OpeningAvailable(_ context.Context, _, _, _ uuid.UUID, iv Interval) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, iv)
}

func (r *openingRecorder) Released() []Interval {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Interval, len(r.released))
	copy(out, r.released)
	return out
}

// visitRecorder captures spawned visits.
type visitRecorder struct {
	mu      sync.Mutex
	spawned []uuid.UUID
}

func (r *visitRecorder) SpawnVisit(_ context.Context, _, appointmentID, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawned = append(r.spawned, appointmentID)
	return nil
}

func (r *visitRecorder) Spawned() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, len(r.spawned))
	copy(out, r.spawned)
	return out
}
