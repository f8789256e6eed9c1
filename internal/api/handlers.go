package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careline/scheduling/internal/appointment"
)

// BookingService is what the HTTP adapter needs from the lifecycle service.
type BookingService interface {
	Create(ctx context.Context, p appointment.CreateParams) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	AvailableSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]time.Time, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func createAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at must be RFC 3339")
			return
		}

		// validate tag guarantees these parse
		patientID, _ := uuid.Parse(req.PatientID)
		doctorID, _ := uuid.Parse(req.DoctorID)

		appt, err := svc.Create(r.Context(), appointment.CreateParams{
			PatientID:   patientID,
			DoctorID:    doctorID,
			ScheduledAt: scheduledAt,
			Notes:       req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		newAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at must be RFC 3339")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, newAt)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
		for i := range appts {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listDoctorSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		dateStr := r.URL.Query().Get("date")
		day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, day)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []time.Time{}
		}

		writeJSON(w, http.StatusOK, SlotListResponse{
			DoctorID: doctorID,
			Date:     dateStr,
			Slots:    slots,
		})
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError is the single place domain errors become status codes.
// The core carries no HTTP vocabulary; this switch is the whole mapping.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidInput),
		errors.Is(err, appointment.ErrScheduledInPast),
		errors.Is(err, appointment.ErrOffSlotGrid):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrSlotLockBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrAppointmentCancelled):
		writeError(w, http.StatusConflict, "appointment_cancelled", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
