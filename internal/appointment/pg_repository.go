package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ScheduledAt,
		&a.Notes,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

// isSlotConflict recognizes the partial unique index on
// (doctor_id, scheduled_at) WHERE status <> 'cancelled'. It is the storage
// backstop for the no-double-booking invariant.
func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == "appointments_doctor_slot_active"
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, patientID, doctorID uuid.UUID, at time.Time, notes string) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'confirmed', now(), now())
		RETURNING id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at
	`, id, patientID, doctorID, at.UTC(), notes)

	appt, err := scanAppointment(row)
	if err != nil {
		if isSlotConflict(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at
	`, id, newAt.UTC())

	appt, err := scanAppointment(row)
	if err != nil {
		if isSlotConflict(err) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
	`, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, doctor_id, scheduled_at, notes, status, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
