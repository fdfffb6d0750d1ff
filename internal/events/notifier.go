package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// LogNotifier writes the patient-facing message to the log instead of
// sending it. Email and SMS delivery live outside this service.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, ev appointment.Event) error {
	n.log.Info().
		Str("event", ev.Type).
		Str("appointment_id", ev.AppointmentID.String()).
		Str("patient_id", ev.PatientID.String()).
		Msg(Message(ev))
	return nil
}

// Message renders the text a patient would receive for the event.
func Message(ev appointment.Event) string {
	when := ev.Date + " at " + ev.Time
	switch ev.Type {
	case appointment.EventAppointmentBooked:
		return fmt.Sprintf("Appointment %s booked for %s.", ev.Number, when)
	case appointment.EventAppointmentRescheduled:
		return fmt.Sprintf("Appointment %s moved to %s.", ev.Number, when)
	case appointment.EventAppointmentCancelled:
		if ev.Reason != "" {
			return fmt.Sprintf("Appointment %s on %s was cancelled: %s.", ev.Number, when, ev.Reason)
		}
		return fmt.Sprintf("Appointment %s on %s was cancelled.", ev.Number, when)
	default:
		return fmt.Sprintf("Appointment %s on %s is now %s.", ev.Number, when, ev.Status)
	}
}
