package appointment

import "errors"

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable means another live booking already holds the
	// (doctor, timestamp) pair. The client should re-query available slots.
	ErrSlotUnavailable = errors.New("slot is already booked for this doctor")

	// ErrSlotLockBusy means a concurrent request holds the slot's critical
	// section. Transient; the client may retry immediately.
	ErrSlotLockBusy = errors.New("slot is currently being booked, please retry")

	// ErrAppointmentCancelled rejects any mutation of a cancelled
	// appointment. Cancelled is terminal.
	ErrAppointmentCancelled = errors.New("appointment is cancelled and can no longer be changed")

	ErrScheduledInPast = errors.New("scheduled time is in the past")
	ErrOffSlotGrid     = errors.New("scheduled time is not a bookable slot")

	ErrInvalidInput = errors.New("invalid input")
)
