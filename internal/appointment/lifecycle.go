package appointment

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is an allowed lifecycle step.
// Rescheduling is not a transition; see CanReschedule.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReschedule reports whether an appointment in this status may move to
// another slot. A reschedule always lands back in SCHEDULED.
func CanReschedule(from AppointmentStatus) bool {
	return from == StatusScheduled || from == StatusConfirmed
}

func validateTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func eventForStatus(to AppointmentStatus) string {
	if to == StatusCancelled {
		return EventAppointmentCancelled
	}
	return EventAppointmentStatusChanged
}
