package schedule

// transitionMap lists, per target status, the statuses it may be entered
// from. Transitions are one-directional; nothing re-enters an earlier state
// and terminal states have no outgoing edges.
var transitionMap = map[AppointmentStatus][]AppointmentStatus{
	StatusConfirmed:  {StatusScheduled},
	StatusCheckedIn:  {StatusConfirmed},
	StatusInProgress: {StatusCheckedIn},
	StatusCompleted:  {StatusInProgress},
	StatusCancelled:  {StatusScheduled, StatusConfirmed, StatusCheckedIn},
	StatusNoShow:     {StatusConfirmed, StatusCheckedIn},
}

// ValidTransition reports whether an appointment may move from one status to
// another.
func ValidTransition(from, to AppointmentStatus) bool {
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
