package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	codeInvalidRequest    = "INVALID_REQUEST"
	codeNotFound          = "NOT_FOUND"
	codeSlotTaken         = "SLOT_TAKEN"
	codeSlotBusy          = "SLOT_BUSY"
	codeDoctorUnavailable = "DOCTOR_UNAVAILABLE"
	codeInvalidTransition = "INVALID_TRANSITION"
	codeReasonRequired    = "REASON_REQUIRED"
	codeRateLimited       = "RATE_LIMITED"
	codeInternal          = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps domain errors to HTTP responses. Anything unknown is
// logged and reported as an opaque 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var unavailable *appointment.UnavailableError

	switch {
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   codeDoctorUnavailable,
			Reason:  unavailable.Reason,
			Details: unavailable.Detail,
		})
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, codeSlotTaken, err.Error())
	case errors.Is(err, appointment.ErrSlotBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, codeSlotBusy, err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, codeInvalidTransition, err.Error())
	case errors.Is(err, appointment.ErrReasonRequired):
		writeError(w, http.StatusBadRequest, codeReasonRequired, err.Error())
	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, schedule.ErrInvalidClock),
		errors.Is(err, schedule.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrPatientNotFound),
		errors.Is(err, schedule.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}
