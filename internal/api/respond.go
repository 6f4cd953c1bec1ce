package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/practiceops/clinic-scheduling/internal/allocator"
	"github.com/practiceops/clinic-scheduling/internal/flow"
	redisclient "github.com/practiceops/clinic-scheduling/internal/redis"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
	"github.com/practiceops/clinic-scheduling/internal/waitlist"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses. The
// ordering matters: conflicts carry their conflicting ids into the body so
// the caller can retry against fresh availability.
func writeServiceError(w http.ResponseWriter, err error) {
	if ce, ok := schedule.AsConflict(err); ok {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:          "conflict",
			Details:        ce.Error(),
			ConflictingIDs: ce.ConflictingIDs,
		})
		return
	}

	switch {
	case errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, schedule.ErrGuardViolation):
		writeError(w, http.StatusConflict, "guard_violation", err.Error())
	case errors.Is(err, schedule.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, schedule.ErrBookingConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, schedule.ErrSlotBeingBooked), errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, allocator.ErrResourceUnavailable):
		writeError(w, http.StatusConflict, "resource_unavailable", err.Error())
	case errors.Is(err, waitlist.ErrStaleOffer):
		writeError(w, http.StatusConflict, "stale_offer", err.Error())
	case errors.Is(err, waitlist.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, schedule.ErrProviderNotFound),
		errors.Is(err, schedule.ErrResourceNotFound),
		errors.Is(err, schedule.ErrTypeNotFound),
		errors.Is(err, schedule.ErrAppointmentNotFound),
		errors.Is(err, schedule.ErrSeriesNotFound),
		errors.Is(err, waitlist.ErrEntryNotFound),
		errors.Is(err, waitlist.ErrOfferNotFound),
		errors.Is(err, flow.ErrVisitNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func appointmentResponse(a *schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		ProviderID:  a.ProviderID,
		ResourceIDs: a.ResourceIDs,
		TypeID:      a.TypeID,
		Start:       a.Interval.Start,
		End:         a.Interval.End,
		Status:      string(a.Status),
		SeriesID:    a.SeriesID,
	}
}

func visitResponse(v *flow.Visit) VisitResponse {
	return VisitResponse{
		ID:            v.ID,
		AppointmentID: v.AppointmentID,
		PatientID:     v.PatientID,
		LocationID:    v.LocationID,
		State:         string(v.State),
		ArrivedAt:     v.ArrivedAt,
		Priority:      v.Priority,
	}
}
