package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/careline/scheduling/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
)

// Notifier delivers a message to a user. Implementations are fire-and-forget:
// a failed delivery is the notifier's problem, never the booking's.
type Notifier interface {
	Send(ctx context.Context, recipientID uuid.UUID, title, body string) error
}

type CreateParams struct {
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	ScheduledAt time.Time
	Notes       string
}

// Service owns every legal state transition of an Appointment. It is the only
// component that writes status or scheduled_at.
//
// The no-double-booking invariant is enforced twice: a per (doctor, timestamp)
// Redis lock serializes the availability check against the write, and the
// partial unique index in Postgres rejects whatever still slips through.
type Service struct {
	repo     Repository
	checker  *Checker
	locker   redisclient.Locker
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, checker *Checker, locker redisclient.Locker, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		checker:  checker,
		locker:   locker,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Create books a confirmed appointment if the slot is free.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Appointment, error) {
	if p.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	if p.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrInvalidInput)
	}

	at := p.ScheduledAt.UTC()
	if err := s.validateSlotTime(at); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, p.DoctorID, at, func(lockCtx context.Context) error {
		free, err := s.checker.IsSlotAvailable(lockCtx, p.DoctorID, at)
		if err != nil {
			return fmt.Errorf("check availability: %w", err)
		}
		if !free {
			return ErrSlotUnavailable
		}

		appt, err := s.repo.CreateAppointment(lockCtx, p.PatientID, p.DoctorID, at, p.Notes)
		if err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotLockBusy
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"doctor_id":    created.DoctorID.String(),
		"patient_id":   created.PatientID.String(),
		"scheduled_at": created.ScheduledAt,
	})
	s.notify(ctx, created.PatientID, "Appointment Confirmed",
		fmt.Sprintf("Your appointment on %s is confirmed.", created.ScheduledAt.Format(time.RFC1123)))

	return created, nil
}

// Reschedule moves an appointment to a new timestamp. The parties never
// change; a cancelled appointment cannot be revived.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.CanTransitionTo(StatusRescheduled) {
		return nil, ErrAppointmentCancelled
	}

	at := newAt.UTC()
	if err := s.validateSlotTime(at); err != nil {
		return nil, err
	}

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, appt.DoctorID, at, func(lockCtx context.Context) error {
		free, err := s.checker.IsSlotAvailable(lockCtx, appt.DoctorID, at)
		if err != nil {
			return fmt.Errorf("check availability: %w", err)
		}
		if !free {
			return ErrSlotUnavailable
		}

		moved, err := s.repo.RescheduleAppointment(lockCtx, appt.ID, at)
		if err != nil {
			// The row was live a moment ago; no-rows here means a
			// concurrent cancel won.
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrAppointmentCancelled
			}
			return err
		}

		updated = moved
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotLockBusy
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from": appt.ScheduledAt,
		"to":   updated.ScheduledAt,
	})
	s.notify(ctx, updated.PatientID, "Appointment Rescheduled",
		fmt.Sprintf("Your appointment has been moved to %s.", updated.ScheduledAt.Format(time.RFC1123)))

	return updated, nil
}

// Cancel marks an appointment cancelled, freeing its slot. The row and its
// timestamp are kept for history.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return nil, ErrAppointmentCancelled
	}

	cancelled, err := s.repo.CancelAppointment(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAppointmentCancelled
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"scheduled_at": cancelled.ScheduledAt,
	})
	s.notify(ctx, cancelled.PatientID, "Appointment Cancelled",
		fmt.Sprintf("Your appointment on %s has been cancelled.", cancelled.ScheduledAt.Format(time.RFC1123)))

	return cancelled, nil
}

// Get retrieves an appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// AvailableSlots lists the bookable timestamps for a doctor on a calendar day.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]time.Time, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return s.checker.ListAvailableSlots(ctx, doctorID, day)
}

func (s *Service) validateSlotTime(at time.Time) error {
	if !at.After(s.now()) {
		return ErrScheduledInPast
	}
	if !s.checker.OnGrid(at) {
		return ErrOffSlotGrid
	}
	return nil
}

// notify is best-effort. The booking is already committed when this runs;
// an enqueue failure is logged and swallowed.
func (s *Service) notify(ctx context.Context, recipientID uuid.UUID, title, body string) {
	// Detached from request cancellation: a client disconnect after commit
	// should not drop the notification.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.notifier.Send(sendCtx, recipientID, title, body); err != nil {
		s.log.Warn("notification send failed",
			zap.String("recipient_id", recipientID.String()),
			zap.String("title", title),
			zap.Error(err),
		)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload failed", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log failed",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
