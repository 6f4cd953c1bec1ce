package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiceops/clinic-scheduling/internal/allocator"
	"github.com/practiceops/clinic-scheduling/internal/clock"
	"github.com/practiceops/clinic-scheduling/internal/config"
	"github.com/practiceops/clinic-scheduling/internal/flow"
	redisclient "github.com/practiceops/clinic-scheduling/internal/redis"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
	"github.com/practiceops/clinic-scheduling/internal/waitlist"
)

// testServer runs the full router over in-memory repositories, so handler
// tests cover routing, tenant scoping, and status mapping end to end.
type testServer struct {
	handler  http.Handler
	repo     *schedule.MemoryRepository
	clk      *clock.Fake
	clinicID uuid.UUID
	provider schedule.Provider
	checkup  schedule.AppointmentType
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		repo:     schedule.NewMemoryRepository(),
		clk:      clock.NewFake(time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)),
		clinicID: uuid.New(),
	}

	days := map[time.Weekday][]schedule.DayWindow{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		days[wd] = []schedule.DayWindow{{OpenMinute: 9 * 60, CloseMinute: 17 * 60}}
	}
	ts.provider = schedule.Provider{
		ID:       uuid.New(),
		ClinicID: ts.clinicID,
		Name:     "Dr. Reyes",
		Hours:    schedule.WeekTemplate{Days: days},
	}
	ts.checkup = schedule.AppointmentType{
		ID:       uuid.New(),
		ClinicID: ts.clinicID,
		Name:     "Checkup",
		Duration: 30 * time.Minute,
	}
	ts.repo.PutProvider(ts.provider)
	ts.repo.PutAppointmentType(ts.checkup)
	// Confirm-time allocation needs at least one bindable resource.
	ts.repo.PutResource(schedule.Resource{
		ID:       uuid.New(),
		ClinicID: ts.clinicID,
		Name:     "Chair 1",
		Kind:     schedule.ResourceChair,
	})

	log := zerolog.Nop()
	sched := schedule.NewService(ts.repo, redisclient.NewInMemoryLocker(), ts.clk, schedule.ServiceConfig{
		ArrivalEarly: time.Hour,
		ArrivalLate:  30 * time.Minute,
	}, log)
	wl := waitlist.NewService(waitlist.NewMemoryRepository(), sched, ts.clk, 15*time.Minute, log)
	fl := flow.NewService(flow.NewMemoryRepository(), ts.clk, 30*time.Minute, log)
	sched.SetVisitSpawner(fl)
	sched.SetOpeningListener(wl)

	ts.handler = NewRouter(RouterConfig{
		Schedule:     sched,
		Availability: schedule.NewAvailabilityEngine(ts.repo, 90),
		Waitlist:     wl,
		Flow:         fl,
		Allocator:    allocator.New(ts.repo, sched.Detector(), log),
		AllocateOn:   config.AllocateOnConfirm,
		Logger:       log,
		Env:          "test",
		Version:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinic-ID", ts.clinicID.String())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) book(t *testing.T, patientID uuid.UUID, start time.Time) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID:  patientID.String(),
		ProviderID: ts.provider.ID.String(),
		TypeID:     ts.checkup.ID.String(),
		Start:      start,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp BookingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Instances, 1)
	require.NotNil(t, resp.Instances[0].Appointment)
	return *resp.Instances[0].Appointment
}

func TestMissingClinicHeaderRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "missing_clinic_id", resp.Error)
}

func TestHealthLive(t *testing.T) {
	ts := newTestServer(t)

	// No tenant header needed outside the domain routes.
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookAndFetchAppointment(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	appt := ts.book(t, uuid.New(), start)
	assert.Equal(t, "scheduled", appt.Status)
	assert.True(t, appt.End.Equal(start.Add(30*time.Minute)))

	rec := ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, appt.ID, got.ID)
}

func TestDoubleBookReturnsConflictBody(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	first := ts.book(t, uuid.New(), start)

	rec := ts.do(t, http.MethodPost, "/appointments", CreateAppointmentRequest{
		PatientID:  uuid.New().String(),
		ProviderID: ts.provider.ID.String(),
		TypeID:     ts.checkup.ID.String(),
		Start:      start.Add(15 * time.Minute),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "conflict", resp.Error)
	assert.Contains(t, resp.ConflictingIDs, first.ID)
}

func TestTransitionEndpointDrivesLifecycle(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	appt := ts.book(t, uuid.New(), start)

	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/transition", TransitionRequest{Target: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "confirmed", got.Status)

	// Skipping straight to completed is an illegal edge.
	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/transition", TransitionRequest{Target: "completed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCheckInSpawnsQueueTicket(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	patientID := uuid.New()
	appt := ts.book(t, patientID, start)

	rec := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/transition", TransitionRequest{Target: "confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ts.clk.Set(start.Add(-10 * time.Minute))
	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/transition", TransitionRequest{Target: "checked_in"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/queue?location_id="+ts.clinicID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var queue QueueResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&queue))
	require.Len(t, queue.Tickets, 1)
	assert.Equal(t, patientID, queue.Tickets[0].PatientID)
	assert.Equal(t, 1, queue.Tickets[0].Position)
}

func TestCalendarEndpoint(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	appt := ts.book(t, uuid.New(), start)

	url := "/calendar?provider_id=" + ts.provider.ID.String() +
		"&type_id=" + ts.checkup.ID.String() +
		"&from=2026-03-02T09:00:00Z&to=2026-03-02T17:00:00Z"
	rec := ts.do(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CalendarResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Committed, 1)
	assert.Equal(t, appt.ID, resp.Committed[0].ID)
	require.NotEmpty(t, resp.OpenSlots)
	for _, slot := range resp.OpenSlots {
		assert.False(t, slot.Start.Before(start) && slot.End.After(start), "open slot overlaps booking")
	}
}

func TestWaitlistLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

	// Fill the slot, then queue demand for it.
	booked := ts.book(t, uuid.New(), start)

	rec := ts.do(t, http.MethodPost, "/waitlist", CreateWaitlistRequest{
		PatientID: uuid.New().String(),
		TypeID:    ts.checkup.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry WaitlistEntryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	assert.Equal(t, "waiting", entry.Status)

	// Cancelling the appointment releases the opening to the waitlist.
	reason := "patient request"
	rec = ts.do(t, http.MethodPost, "/appointments/"+booked.ID.String()+"/transition", TransitionRequest{Target: "cancelled", Reason: &reason})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/waitlist/"+entry.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	assert.Equal(t, "offered", entry.Status)
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	appt := ts.book(t, uuid.New(), start)

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	req.Header.Set("X-Clinic-ID", uuid.New().String())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
