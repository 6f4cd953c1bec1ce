package flow

import (
	"time"

	"github.com/google/uuid"
)

// VisitState tracks the patient's physical progress through the clinic on
// the day of service. One Visit per attendance, distinct from the scheduled
// appointment it may be linked to.
type VisitState string

const (
	StateArrived     VisitState = "arrived"
	StateWaiting     VisitState = "waiting"
	StateCalled      VisitState = "called"
	StateSeated      VisitState = "seated"
	StateInTreatment VisitState = "in_treatment"
	StateCheckout    VisitState = "checkout"
	StateDeparted    VisitState = "departed"
	StateLeftUnseen  VisitState = "left_without_being_seen"
)

func (s VisitState) Terminal() bool {
	return s == StateDeparted || s == StateLeftUnseen
}

type Visit struct {
	ID            uuid.UUID
	ClinicID      uuid.UUID
	LocationID    uuid.UUID
	AppointmentID *uuid.UUID // nil for walk-ins
	PatientID     uuid.UUID
	State         VisitState
	ArrivedAt     time.Time
	Priority      bool // emergency override for queue selection
	StateSince    time.Time
	CreatedAt     time.Time
}

// VisitTransition is one append-only history row. Rows are never updated or
// deleted; the audit trail survives every later transition.
type VisitTransition struct {
	ID         int64
	VisitID    uuid.UUID
	ClinicID   uuid.UUID
	From       VisitState
	To         VisitState
	OccurredAt time.Time
}

// QueueTicket is a Visit's position in the daily queue of one location. The
// ordering is derived, not stored: priority reorders selection but the
// underlying arrival timestamps are never mutated.
type QueueTicket struct {
	Position  int        `json:"position"`
	VisitID   uuid.UUID  `json:"visit_id"`
	PatientID uuid.UUID  `json:"patient_id"`
	State     VisitState `json:"state"`
	ArrivedAt time.Time  `json:"arrived_at"`
	Priority  bool       `json:"priority"`
	Waiting   string     `json:"waiting"`
}
