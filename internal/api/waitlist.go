package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/practiceops/clinic-scheduling/internal/schedule"
	"github.com/practiceops/clinic-scheduling/internal/waitlist"
)

func createWaitlistEntryHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		typeID, err := uuid.Parse(req.TypeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_type_id", "type_id must be a valid UUID")
			return
		}
		var providerID *uuid.UUID
		if req.ProviderID != nil {
			id, err := uuid.Parse(*req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &id
		}

		windows := make([]schedule.Interval, 0, len(req.Windows))
		for _, raw := range req.Windows {
			iv, err := schedule.NewInterval(raw.Start, raw.End)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			windows = append(windows, iv)
		}

		entry, err := svc.AddEntry(r.Context(), ClinicID(r.Context()), waitlist.AddEntryRequest{
			PatientID:  patientID,
			TypeID:     typeID,
			ProviderID: providerID,
			Windows:    windows,
			Urgent:     req.Urgent,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, entryResponse(entry))
	}
}

func getWaitlistEntryHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
			return
		}
		entry, err := svc.GetEntry(r.Context(), ClinicID(r.Context()), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entryResponse(entry))
	}
}

func acceptOfferHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
			return
		}
		offerID, err := uuid.Parse(chi.URLParam(r, "offerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offer_id", "offerID must be a valid UUID")
			return
		}

		appt, err := svc.AcceptOffer(r.Context(), ClinicID(r.Context()), entryID, offerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func withdrawWaitlistEntryHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entry_id", "id must be a valid UUID")
			return
		}
		if err := svc.Withdraw(r.Context(), ClinicID(r.Context()), id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func entryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:        e.ID,
		PatientID: e.PatientID,
		TypeID:    e.TypeID,
		Status:    string(e.Status),
		Urgent:    e.Urgent,
		CreatedAt: e.CreatedAt,
	}
}
