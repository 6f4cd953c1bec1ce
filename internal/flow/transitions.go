package flow

// transitionMap lists, per target state, the states it may be entered from.
// The flow only moves forward; left_without_being_seen is the single side
// exit, available while the patient is still in the queue.
var transitionMap = map[VisitState][]VisitState{
	StateWaiting:     {StateArrived},
	StateCalled:      {StateWaiting},
	StateSeated:      {StateCalled},
	StateInTreatment: {StateSeated},
	StateCheckout:    {StateInTreatment},
	StateDeparted:    {StateCheckout},
	StateLeftUnseen:  {StateWaiting, StateCalled},
}

func ValidTransition(from, to VisitState) bool {
	allowed, ok := transitionMap[to]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == from {
			return true
		}
	}
	return false
}
