package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func slotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "date must be YYYY-MM-DD")
			return
		}

		day, err := svc.Slots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			Date:        schedule.FormatDate(day.Date),
			DoctorID:    day.DoctorID,
			SlotMinutes: day.SlotMinutes,
			Reason:      day.Reason,
			Slots:       day.Slots,
		})
	}
}

func doctorDayHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.ListDoctorDay(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{Appointments: toAppointmentList(appts)})
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "doctorId must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "patientId must be a valid UUID")
			return
		}
		date, at, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}
		apptType, err := appointment.ParseType(req.Type)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			Date:      date,
			Time:      at,
			Type:      apptType,
			BookedBy:  req.BookedBy,
			Reason:    req.Reason,
			Notes:     req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		patientID, err := uuid.Parse(q.Get("patientId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "patientId must be a valid UUID")
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, offset = appointment.NormalizePage(limit, offset)

		appts, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Appointments: toAppointmentList(appts),
			Limit:        limit,
			Offset:       offset,
		})
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not parse JSON")
			return
		}
		date, at, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, appointment.RescheduleRequest{
			Date:   date,
			Time:   at,
			Reason: req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not parse JSON")
			return
		}
		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, status, req.Notes)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentEnvelope{Appointment: toAppointmentResponse(*appt)})
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseSlot(w http.ResponseWriter, rawDate, rawTime string) (time.Time, schedule.Clock, bool) {
	date, err := schedule.ParseDate(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "date must be YYYY-MM-DD")
		return time.Time{}, 0, false
	}
	at, err := schedule.ParseClock(rawTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "time must be HH:MM")
		return time.Time{}, 0, false
	}
	return date, at, true
}
