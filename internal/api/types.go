package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/careline/scheduling/internal/appointment"
)

var validate = validator.New()

type CreateAppointmentRequest struct {
	PatientID   string `json:"patient_id" validate:"required,uuid"`
	DoctorID    string `json:"doctor_id" validate:"required,uuid"`
	ScheduledAt string `json:"scheduled_at" validate:"required"` // RFC 3339
	Notes       string `json:"notes" validate:"max=2000"`
}

type RescheduleAppointmentRequest struct {
	ScheduledAt string `json:"scheduled_at" validate:"required"` // RFC 3339
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		DoctorID:    a.DoctorID,
		ScheduledAt: a.ScheduledAt,
		Notes:       a.Notes,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

type SlotListResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Date     string      `json:"date"`
	Slots    []time.Time `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
