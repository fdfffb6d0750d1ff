package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrSlotTaken         = errors.New("slot already booked")
	ErrSlotBusy          = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDoctorUnavailable = errors.New("doctor unavailable")
	ErrReasonRequired    = errors.New("a reason is required")
	ErrInvalidRequest    = errors.New("invalid request")
)

const (
	ReasonOutsideWorkingHours = "OUTSIDE_WORKING_HOURS"
	ReasonBlocked             = "BLOCKED"
)

// UnavailableError explains why a doctor cannot be booked at a requested
// date and time. Reason is one of the schedule.Reason* values or
// ReasonOutsideWorkingHours / ReasonBlocked.
type UnavailableError struct {
	Reason string
	Detail string
}

func (e *UnavailableError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("doctor unavailable: %s (%s)", e.Reason, e.Detail)
	}
	return "doctor unavailable: " + e.Reason
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrDoctorUnavailable
}

type InvalidTransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
