package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentBooked        = "appointment.booked"
	EventAppointmentRescheduled   = "appointment.rescheduled"
	EventAppointmentCancelled     = "appointment.cancelled"
	EventAppointmentStatusChanged = "appointment.status_changed"
)

// Event describes a committed change to an appointment. It is emitted after
// the ledger write, so receiving one means the change already happened.
type Event struct {
	Type           string            `json:"type"`
	AppointmentID  uuid.UUID         `json:"appointmentId"`
	Number         string            `json:"number"`
	DoctorID       uuid.UUID         `json:"doctorId"`
	PatientID      uuid.UUID         `json:"patientId"`
	Date           string            `json:"date"`
	Time           string            `json:"time"`
	Status         AppointmentStatus `json:"status"`
	PreviousStatus AppointmentStatus `json:"previousStatus,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

// EventPublisher hands events to whoever delivers notifications.
// Errors are logged by the caller and never fail the change.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// BillingHook creates a charge for a new booking.
type BillingHook interface {
	OnBooked(ctx context.Context, appt Appointment) error
}

// Metrics records booking outcomes and lifecycle transitions.
type Metrics interface {
	BookingOutcome(ctx context.Context, op, outcome string)
	Transition(ctx context.Context, from, to AppointmentStatus)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopBilling struct{}

func (nopBilling) OnBooked(context.Context, Appointment) error { return nil }

type nopMetrics struct{}

func (nopMetrics) BookingOutcome(context.Context, string, string)              {}
func (nopMetrics) Transition(context.Context, AppointmentStatus, AppointmentStatus) {}
