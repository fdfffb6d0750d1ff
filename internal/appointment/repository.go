package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository is the appointment ledger. Insert and Reschedule must enforce
// at most one active appointment per (doctor, date, time) and report a
// violation as ErrSlotTaken.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks and the slot grid
	ListActive(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)

	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Creation and updates. Reschedule and UpdateStatus return
	// ErrAppointmentNotFound when the row is no longer in the expected status.
	Insert(ctx context.Context, in NewAppointment) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, from AppointmentStatus, date time.Time, at schedule.Clock) (*Appointment, error)
	UpdateStatus(ctx context.Context, change StatusChange) (*Appointment, error)

	// No-show sweep: active SCHEDULED/CONFIRMED appointments dated on or
	// before the given day.
	FindOverdue(ctx context.Context, onOrBefore time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Locker serializes booking attempts for one doctor-day across processes.
type Locker interface {
	WithDayLock(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error
}
