package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	TypeNotify = "appointment:notify"
	TypeCharge = "billing:charge"

	QueueDefault = "default"
	QueueBilling = "billing"
)

// ChargePayload is what the billing task needs to raise a charge for a
// booking.
type ChargePayload struct {
	AppointmentID uuid.UUID                   `json:"appointmentId"`
	Number        string                      `json:"number"`
	PatientID     uuid.UUID                   `json:"patientId"`
	DoctorID      uuid.UUID                   `json:"doctorId"`
	Type          appointment.AppointmentType `json:"type"`
	Date          string                      `json:"date"`
	Time          string                      `json:"time"`
}

func NewNotifyTask(ev appointment.Event) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeNotify, b)
	opts := []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
	}
	return task, opts, nil
}

// NewChargeTask uses the appointment id as task id, so a booking can only
// ever be queued for billing once.
func NewChargeTask(appt appointment.Appointment) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ChargePayload{
		AppointmentID: appt.ID,
		Number:        appt.Number,
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		Type:          appt.Type,
		Date:          schedule.FormatDate(appt.Date),
		Time:          appt.Time.String(),
	})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeCharge, b)
	opts := []asynq.Option{
		asynq.TaskID("charge:" + appt.ID.String()),
		asynq.Queue(QueueBilling),
		asynq.MaxRetry(10),
		asynq.Retention(24 * time.Hour),
	}
	return task, opts, nil
}
