package flow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiceops/clinic-scheduling/internal/clock"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
)

type fixture struct {
	repo     *MemoryRepository
	svc      *Service
	clk      *clock.Fake
	clinicID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMemoryRepository(),
		clk:      clock.NewFake(time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)),
		clinicID: uuid.New(),
	}
	f.svc = NewService(f.repo, f.clk, 30*time.Minute, zerolog.Nop())
	return f
}

func (f *fixture) open(t *testing.T, req OpenVisitRequest) *Visit {
	t.Helper()
	if req.LocationID == uuid.Nil {
		req.LocationID = f.clinicID
	}
	v, err := f.svc.Open(context.Background(), f.clinicID, req)
	require.NoError(t, err)
	return v
}

func TestOpenCreatesWaitingVisit(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, OpenVisitRequest{PatientID: uuid.New()})

	assert.Equal(t, StateWaiting, v.State)
	assert.Equal(t, f.clk.Now(), v.ArrivedAt)
	assert.Nil(t, v.AppointmentID)

	history, err := f.svc.History(context.Background(), f.clinicID, v.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StateArrived, history[0].From)
	assert.Equal(t, StateWaiting, history[0].To)
}

func TestOpenRequiresPatient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Open(context.Background(), f.clinicID, OpenVisitRequest{LocationID: f.clinicID})
	assert.ErrorIs(t, err, schedule.ErrValidation)
}

func TestSpawnVisitDefaultsLocationToClinic(t *testing.T) {
	f := newFixture(t)
	apptID := uuid.New()
	patientID := uuid.New()

	require.NoError(t, f.svc.SpawnVisit(context.Background(), f.clinicID, apptID, patientID))

	queue, err := f.svc.Queue(context.Background(), f.clinicID, f.clinicID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, patientID, queue[0].PatientID)

	v, err := f.svc.Get(context.Background(), f.clinicID, queue[0].VisitID)
	require.NoError(t, err)
	require.NotNil(t, v.AppointmentID)
	assert.Equal(t, apptID, *v.AppointmentID)
	assert.Equal(t, f.clinicID, v.LocationID)
}

func TestTransitionWalksTheFlow(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, OpenVisitRequest{PatientID: uuid.New()})

	for _, target := range []VisitState{StateCalled, StateSeated, StateInTreatment, StateCheckout, StateDeparted} {
		f.clk.Advance(5 * time.Minute)
		updated, err := f.svc.Transition(context.Background(), f.clinicID, v.ID, target)
		require.NoError(t, err)
		assert.Equal(t, target, updated.State)
		assert.Equal(t, f.clk.Now(), updated.StateSince)
	}

	history, err := f.svc.History(context.Background(), f.clinicID, v.ID)
	require.NoError(t, err)
	assert.Len(t, history, 6) // arrived->waiting plus five staff moves
}

func TestTransitionRejectsSkippedStates(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, OpenVisitRequest{PatientID: uuid.New()})

	_, err := f.svc.Transition(context.Background(), f.clinicID, v.ID, StateInTreatment)
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

func TestTerminalVisitIsImmutable(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, OpenVisitRequest{PatientID: uuid.New()})

	_, err := f.svc.Transition(context.Background(), f.clinicID, v.ID, StateLeftUnseen)
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), f.clinicID, v.ID, StateCalled)
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

func TestQueueOrdersCalledThenPriorityThenArrival(t *testing.T) {
	f := newFixture(t)

	first := f.open(t, OpenVisitRequest{PatientID: uuid.New()})
	f.clk.Advance(time.Minute)
	second := f.open(t, OpenVisitRequest{PatientID: uuid.New()})
	f.clk.Advance(time.Minute)

	// Staff calls the earliest arrival back.
	_, err := f.svc.Transition(context.Background(), f.clinicID, first.ID, StateCalled)
	require.NoError(t, err)

	// An emergency arrives after everyone else.
	f.clk.Advance(time.Minute)
	emergency := f.open(t, OpenVisitRequest{PatientID: uuid.New(), Priority: true})

	queue, err := f.svc.Queue(context.Background(), f.clinicID, f.clinicID)
	require.NoError(t, err)
	require.Len(t, queue, 3)

	// Called visits hold the head; priority jumps the waiting line only.
	assert.Equal(t, first.ID, queue[0].VisitID)
	assert.Equal(t, emergency.ID, queue[1].VisitID)
	assert.Equal(t, second.ID, queue[2].VisitID)
	assert.Equal(t, 1, queue[0].Position)
	assert.Equal(t, 3, queue[2].Position)

	// Priority selection never rewrites when the patient arrived.
	assert.True(t, queue[1].ArrivedAt.After(queue[2].ArrivedAt))
}

func TestQueueScopedToLocation(t *testing.T) {
	f := newFixture(t)
	hygiene := uuid.New()

	f.open(t, OpenVisitRequest{PatientID: uuid.New()})
	inHygiene := f.open(t, OpenVisitRequest{PatientID: uuid.New(), LocationID: hygiene})

	queue, err := f.svc.Queue(context.Background(), f.clinicID, hygiene)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, inHygiene.ID, queue[0].VisitID)
}

func TestWaitingBeyondSLA(t *testing.T) {
	f := newFixture(t)

	stale := f.open(t, OpenVisitRequest{PatientID: uuid.New()})
	f.clk.Advance(31 * time.Minute)
	f.open(t, OpenVisitRequest{PatientID: uuid.New()}) // fresh, inside the threshold

	over, err := f.svc.WaitingBeyondSLA(context.Background(), f.clinicID)
	require.NoError(t, err)
	require.Len(t, over, 1)
	assert.Equal(t, stale.ID, over[0].ID)

	// A called visit stops accruing waiting time.
	_, err = f.svc.Transition(context.Background(), f.clinicID, stale.ID, StateCalled)
	require.NoError(t, err)
	over, err = f.svc.WaitingBeyondSLA(context.Background(), f.clinicID)
	require.NoError(t, err)
	assert.Empty(t, over)

	require.NoError(t, f.svc.SweepSLA(context.Background()))
}

func TestVisitTenantIsolation(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, OpenVisitRequest{PatientID: uuid.New()})

	otherClinic := uuid.New()
	_, err := f.svc.Get(context.Background(), otherClinic, v.ID)
	assert.ErrorIs(t, err, ErrVisitNotFound)

	_, err = f.svc.Transition(context.Background(), otherClinic, v.ID, StateCalled)
	assert.ErrorIs(t, err, ErrVisitNotFound)
}
