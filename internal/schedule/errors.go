package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrValidation marks malformed input rejected before any conflict
	// checking runs.
	ErrValidation = errors.New("validation failed")

	// ErrGuardViolation marks a transition whose guard condition failed,
	// such as a check-in outside the arrival window.
	ErrGuardViolation = errors.New("transition guard violated")

	// ErrInvalidTransition marks a transition the state machine does not
	// define at all.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type ConflictClass string

const (
	ConflictProvider ConflictClass = "provider"
	ConflictResource ConflictClass = "resource"
	ConflictPatient  ConflictClass = "patient"
)

// ConflictError reports a double-booking with enough detail for the caller
// to retry against fresh availability. The engine never retries on its own.
type ConflictError struct {
	Class          ConflictClass
	ConflictingIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.ConflictingIDs))
	for i, id := range e.ConflictingIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s double-booking with appointments [%s]", e.Class, strings.Join(ids, ", "))
}

// AsConflict unwraps err into a *ConflictError if there is one in the chain.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
