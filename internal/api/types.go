package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/practiceops/clinic-scheduling/internal/flow"
)

type RecurrencePayload struct {
	Freq     string     `json:"freq"`
	Interval int        `json:"interval"`
	Count    int        `json:"count,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
}

type CreateAppointmentRequest struct {
	PatientID   string             `json:"patient_id"`
	ProviderID  string             `json:"provider_id"`
	ResourceIDs []string           `json:"resource_ids,omitempty"`
	TypeID      string             `json:"type_id"`
	Start       time.Time          `json:"start"`
	Recurrence  *RecurrencePayload `json:"recurrence,omitempty"`
}

type AppointmentResponse struct {
	ID          uuid.UUID   `json:"id"`
	PatientID   uuid.UUID   `json:"patient_id"`
	ProviderID  uuid.UUID   `json:"provider_id"`
	ResourceIDs []uuid.UUID `json:"resource_ids,omitempty"`
	TypeID      uuid.UUID   `json:"type_id"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Status      string      `json:"status"`
	SeriesID    *uuid.UUID  `json:"series_id,omitempty"`
}

type InstanceResponse struct {
	Occurrence  int                  `json:"occurrence"`
	Status      string               `json:"status"` // booked or skipped
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	SkipReason  string               `json:"skip_reason,omitempty"`
}

type BookingResponse struct {
	Instances []InstanceResponse `json:"instances"`
}

type TransitionRequest struct {
	Target string  `json:"target"`
	Reason *string `json:"reason,omitempty"`
}

type IntervalPayload struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type CalendarResponse struct {
	Committed []AppointmentResponse `json:"committed"`
	OpenSlots []IntervalPayload     `json:"open_slots"`
}

type CreateWaitlistRequest struct {
	PatientID  string            `json:"patient_id"`
	TypeID     string            `json:"type_id"`
	ProviderID *string           `json:"provider_id,omitempty"`
	Windows    []IntervalPayload `json:"windows,omitempty"`
	Urgent     bool              `json:"urgent,omitempty"`
}

type WaitlistEntryResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	TypeID    uuid.UUID `json:"type_id"`
	Status    string    `json:"status"`
	Urgent    bool      `json:"urgent"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateVisitRequest struct {
	AppointmentID *string `json:"appointment_id,omitempty"`
	PatientID     string  `json:"patient_id"`
	LocationID    string  `json:"location_id"`
	Priority      bool    `json:"priority,omitempty"`
}

type VisitResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `json:"patient_id"`
	LocationID    uuid.UUID  `json:"location_id"`
	State         string     `json:"state"`
	ArrivedAt     time.Time  `json:"arrived_at"`
	Priority      bool       `json:"priority"`
}

type QueueResponse struct {
	Tickets []flow.QueueTicket `json:"tickets"`
}

type ErrorResponse struct {
	Error          string      `json:"error"`
	Details        string      `json:"details,omitempty"`
	ConflictingIDs []uuid.UUID `json:"conflicting_ids,omitempty"`
}
