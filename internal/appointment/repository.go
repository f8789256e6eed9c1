package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the checker and service.
//
// Write methods enforce the one-live-booking-per-slot invariant at the
// storage level: an insert or reschedule that would collide with a
// non-cancelled appointment fails with ErrSlotUnavailable, regardless of any
// application-level availability check that preceded it.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreateAppointment inserts a confirmed appointment and assigns its ID.
	CreateAppointment(ctx context.Context, patientID, doctorID uuid.UUID, at time.Time, notes string) (*Appointment, error)

	// RescheduleAppointment moves a non-cancelled appointment to a new
	// timestamp and marks it rescheduled. Returns ErrAppointmentNotFound if
	// no non-cancelled row with this id exists.
	RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time) (*Appointment, error)

	// CancelAppointment marks a non-cancelled appointment cancelled, keeping
	// its timestamp for history. Returns ErrAppointmentNotFound if no
	// non-cancelled row with this id exists.
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListByDoctorAndDate returns every appointment (any status) for the
	// doctor on the calendar day containing `day`, in no guaranteed order.
	ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// InsertEvent appends to the audit event log.
	InsertEvent(ctx context.Context, ev EventLog) error
}
