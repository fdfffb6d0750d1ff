package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctorId"`
	PatientID string `json:"patientId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Notes     string `json:"notes,omitempty"`
	BookedBy  string `json:"bookedBy,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	Number             string    `json:"number"`
	DoctorID           uuid.UUID `json:"doctorId"`
	PatientID          uuid.UUID `json:"patientId"`
	Date               string    `json:"date"`
	Time               string    `json:"time"`
	DurationMinutes    int       `json:"durationMinutes"`
	Status             string    `json:"status"`
	Type               string    `json:"type"`
	BookedBy           string    `json:"bookedBy,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CancellationReason string    `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type AppointmentEnvelope struct {
	Appointment AppointmentResponse `json:"appointment"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit,omitempty"`
	Offset       int                   `json:"offset,omitempty"`
}

type SlotsResponse struct {
	Date        string          `json:"date"`
	DoctorID    uuid.UUID       `json:"doctorId"`
	SlotMinutes int             `json:"slotMinutes"`
	Reason      string          `json:"reason,omitempty"`
	Slots       []schedule.Slot `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		Number:             a.Number,
		DoctorID:           a.DoctorID,
		PatientID:          a.PatientID,
		Date:               schedule.FormatDate(a.Date),
		Time:               a.Time.String(),
		DurationMinutes:    a.DurationMinutes,
		Status:             string(a.Status),
		Type:               string(a.Type),
		BookedBy:           a.BookedBy,
		Reason:             a.Reason,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentList(in []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}
