package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
)

// Booking requests confirm immediately; there is no approval step, so
// pending exists only for wire compatibility and is never written.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduled, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the appointment admits no further transitions.
// Cancelled rows are kept as history and never mutated again.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// Occupies reports whether an appointment in this status holds its slot
// against other bookings.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

func (s Status) CanTransitionTo(to Status) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case StatusRescheduled, StatusCancelled:
		return true
	}
	return false
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ScheduledAt time.Time // UTC, always a grid-aligned instant
	Notes       string
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
