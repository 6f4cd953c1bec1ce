package flow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrVisitNotFound = errors.New("visit not found")

type Repository interface {
	CreateVisit(ctx context.Context, v *Visit) error
	GetVisit(ctx context.Context, clinicID, id uuid.UUID) (*Visit, error)

	// UpdateVisitState compares-and-swaps the state and appends the
	// transition to the history in the same atomic step.
	UpdateVisitState(ctx context.Context, clinicID, id uuid.UUID, from, to VisitState, at time.Time) (*Visit, error)

	// ListInStates returns visits currently in any of the given states at a
	// location, for queue reads and SLA sweeps. A nil locationID matches
	// every location in the clinic.
	ListInStates(ctx context.Context, clinicID, locationID uuid.UUID, states []VisitState) ([]Visit, error)

	ListTransitions(ctx context.Context, clinicID, visitID uuid.UUID) ([]VisitTransition, error)

	ListClinics(ctx context.Context) ([]uuid.UUID, error)
}
