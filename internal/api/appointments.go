package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/practiceops/clinic-scheduling/internal/allocator"
	"github.com/practiceops/clinic-scheduling/internal/config"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
)

func createAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		typeID, err := uuid.Parse(req.TypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
			return
		}
		resourceIDs := make([]uuid.UUID, 0, len(req.ResourceIDs))
		for _, raw := range req.ResourceIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_resource_id", "resource_ids must be valid UUIDs")
				return
			}
			resourceIDs = append(resourceIDs, id)
		}

		booking := schedule.BookingRequest{
			PatientID:   patientID,
			ProviderID:  providerID,
			ResourceIDs: resourceIDs,
			TypeID:      typeID,
			Start:       req.Start,
		}
		if req.Recurrence != nil {
			rule, err := schedule.NewRecurrenceRule(
				schedule.Frequency(req.Recurrence.Freq),
				req.Recurrence.Interval,
				req.Recurrence.Count,
				req.Recurrence.Until,
			)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			booking.Recurrence = &rule
		}

		results, err := svc.Book(r.Context(), ClinicID(r.Context()), booking)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{Instances: instanceResponses(results)})
	}
}

func getAppointmentHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), ClinicID(r.Context()), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

// transitionAppointmentHandler drives the appointment state machine. When
// the target is the configured allocation stage, concrete resources are
// bound first; an allocation failure leaves the appointment in its prior
// state.
func transitionAppointmentHandler(svc *schedule.Service, alloc *allocator.Allocator, allocateOn config.AllocateOn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		target := schedule.AppointmentStatus(req.Target)

		clinicID := ClinicID(r.Context())
		if alloc != nil && target == allocationStage(allocateOn) {
			appt, err := svc.Get(r.Context(), clinicID, id)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if _, err := alloc.Allocate(r.Context(), appt); err != nil {
				writeServiceError(w, err)
				return
			}
		}

		updated, err := svc.Transition(r.Context(), clinicID, id, target, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(updated))
	}
}

func allocationStage(on config.AllocateOn) schedule.AppointmentStatus {
	if on == config.AllocateOnCheckIn {
		return schedule.StatusCheckedIn
	}
	return schedule.StatusConfirmed
}

// calendarHandler returns committed intervals plus the availability engine's
// open-slot candidates for a provider.
func calendarHandler(svc *schedule.Service, engine *schedule.AvailabilityEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		providerID, err := uuid.Parse(q.Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		var resourceID uuid.UUID
		if raw := q.Get("resource_id"); raw != "" {
			resourceID, err = uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_resource_id", "resource_id must be a valid UUID")
				return
			}
		}
		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}
		rng, err := schedule.NewInterval(from, to)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		clinicID := ClinicID(r.Context())
		committed, err := svc.Calendar(r.Context(), clinicID, rng, providerID, resourceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := CalendarResponse{
			Committed: make([]AppointmentResponse, 0, len(committed)),
			OpenSlots: []IntervalPayload{},
		}
		for i := range committed {
			resp.Committed = append(resp.Committed, appointmentResponse(&committed[i]))
		}

		if typeRaw := q.Get("type_id"); typeRaw != "" {
			typeID, err := uuid.Parse(typeRaw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
				return
			}
			var resourceIDs []uuid.UUID
			if resourceID != uuid.Nil {
				resourceIDs = []uuid.UUID{resourceID}
			}
			slots, err := engine.OpenSlots(r.Context(), clinicID, schedule.SlotQuery{
				ProviderID:  providerID,
				ResourceIDs: resourceIDs,
				TypeID:      typeID,
				Range:       rng,
			})
			if err != nil {
				writeServiceError(w, err)
				return
			}
			for _, s := range slots {
				resp.OpenSlots = append(resp.OpenSlots, IntervalPayload{Start: s.Start, End: s.End})
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func instanceResponses(results []schedule.InstanceResult) []InstanceResponse {
	out := make([]InstanceResponse, 0, len(results))
	for _, res := range results {
		ir := InstanceResponse{Occurrence: res.Occurrence}
		if res.Booked() {
			ir.Status = "booked"
			ar := appointmentResponse(res.Appointment)
			ir.Appointment = &ar
		} else {
			ir.Status = "skipped"
			ir.SkipReason = res.SkipReason
		}
		out = append(out, ir)
	}
	return out
}
