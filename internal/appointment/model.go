package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "SCHEDULED"
	StatusConfirmed  AppointmentStatus = "CONFIRMED"
	StatusInProgress AppointmentStatus = "IN_PROGRESS"
	StatusCompleted  AppointmentStatus = "COMPLETED"
	StatusCancelled  AppointmentStatus = "CANCELLED"
	StatusNoShow     AppointmentStatus = "NO_SHOW"
)

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusInProgress}

func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
	}
}

// IsActive reports whether an appointment in this status holds its slot.
// Completed, cancelled and no-show slots are rebookable.
func (s AppointmentStatus) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

type AppointmentType string

const (
	TypeConsultation   AppointmentType = "CONSULTATION"
	TypeFollowUp       AppointmentType = "FOLLOW_UP"
	TypeRoutineCheckup AppointmentType = "ROUTINE_CHECKUP"
	TypeEmergency      AppointmentType = "EMERGENCY"
)

// ParseType defaults an empty value to a consultation.
func ParseType(s string) (AppointmentType, error) {
	switch t := AppointmentType(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return TypeConsultation, nil
	case TypeConsultation, TypeFollowUp, TypeRoutineCheckup, TypeEmergency:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown appointment type %q", ErrInvalidRequest, s)
	}
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	Number             string
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               time.Time
	Time               schedule.Clock
	DurationMinutes    int
	Status             AppointmentStatus
	Type               AppointmentType
	BookedBy           string
	Reason             string
	Notes              string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Appointment) SlotTime() schedule.Clock { return a.Time }
func (a Appointment) HoldsSlot() bool          { return a.Status.IsActive() }

// StartsAt is the wall-clock start in the clinic's timezone, carried as UTC.
func (a Appointment) StartsAt() time.Time {
	return schedule.At(a.Date, a.Time)
}

func (a Appointment) EndsAt() time.Time {
	return a.StartsAt().Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// NewAppointment carries the fields the ledger needs to insert a booking.
type NewAppointment struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time
	Time            schedule.Clock
	DurationMinutes int
	Type            AppointmentType
	BookedBy        string
	Reason          string
	Notes           string
}

// StatusChange is a compare-and-set status update: it only applies while the
// appointment is still in From.
type StatusChange struct {
	ID                 uuid.UUID
	From               AppointmentStatus
	To                 AppointmentStatus
	Notes              string
	CancellationReason string
}

// FormatNumber renders the human-readable appointment number, e.g.
// APT-2025-000123.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("APT-%d-%06d", year, seq)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
