package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memRepo is an in-memory Repository that mirrors the Postgres behavior the
// service depends on, including the partial unique index on live
// (doctor_id, scheduled_at) pairs.
type memRepo struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]Doctor
	patients map[uuid.UUID]Patient
	appts    map[uuid.UUID]*Appointment
	events   []EventLog

	failListByDoctor error // injected storage failure
}

func newMemRepo() *memRepo {
	return &memRepo{
		doctors:  make(map[uuid.UUID]Doctor),
		patients: make(map[uuid.UUID]Patient),
		appts:    make(map[uuid.UUID]*Appointment),
	}
}

func (r *memRepo) addDoctor(id uuid.UUID)  { r.doctors[id] = Doctor{ID: id, Name: "Dr. Test"} }
func (r *memRepo) addPatient(id uuid.UUID) { r.patients[id] = Patient{ID: id, Name: "Pat Test"} }

func (r *memRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.doctors[id]; ok {
		return &d, nil
	}
	return nil, ErrDoctorNotFound
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.patients[id]; ok {
		return &p, nil
	}
	return nil, ErrPatientNotFound
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.appts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

// hasLiveBookingLocked mirrors the appointments_doctor_slot_active index.
func (r *memRepo) hasLiveBookingLocked(doctorID uuid.UUID, at time.Time, excluding uuid.UUID) bool {
	for _, a := range r.appts {
		if a.ID != excluding && a.DoctorID == doctorID && a.Status.Occupies() && a.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (r *memRepo) CreateAppointment(_ context.Context, patientID, doctorID uuid.UUID, at time.Time, notes string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasLiveBookingLocked(doctorID, at, uuid.Nil) {
		return nil, ErrSlotUnavailable
	}

	now := time.Now()
	a := &Appointment{
		ID:          uuid.New(),
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: at.UTC(),
		Notes:       notes,
		Status:      StatusConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.appts[a.ID] = a

	cp := *a
	return &cp, nil
}

func (r *memRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, newAt time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status == StatusCancelled {
		return nil, ErrAppointmentNotFound
	}
	if r.hasLiveBookingLocked(a.DoctorID, newAt, a.ID) {
		return nil, ErrSlotUnavailable
	}

	a.ScheduledAt = newAt.UTC()
	a.Status = StatusRescheduled
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *memRepo) CancelAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appts[id]
	if !ok || a.Status == StatusCancelled {
		return nil, ErrAppointmentNotFound
	}

	a.Status = StatusCancelled
	a.UpdatedAt = time.Now()

	cp := *a
	return &cp, nil
}

func (r *memRepo) ListByDoctorAndDate(_ context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failListByDoctor != nil {
		return nil, r.failListByDoctor
	}

	day = day.UTC()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var result []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && !a.ScheduledAt.Before(dayStart) && a.ScheduledAt.Before(dayEnd) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID {
			result = append(result, *a)
		}
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) liveCountAt(doctorID uuid.UUID, at time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Status.Occupies() && a.ScheduledAt.Equal(at) {
			n++
		}
	}
	return n
}

// memLocker serializes critical sections per slot key. Unlike the Redis
// try-lock it blocks instead of failing, which makes concurrent tests
// deterministic: every contender runs, exactly one finds the slot free.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, at time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%s:%d", doctorID, at.UTC().Unix())

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type sentNote struct {
	recipient uuid.UUID
	title     string
	body      string
}

type recordSender struct {
	mu   sync.Mutex
	sent []sentNote
	err  error
}

func (s *recordSender) Send(_ context.Context, recipientID uuid.UUID, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentNote{recipient: recipientID, title: title, body: body})
	return nil
}

func (s *recordSender) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, n := range s.sent {
		out[i] = n.title
	}
	return out
}

var testHours = WorkingHours{
	Start: 9 * time.Hour,
	End:   17 * time.Hour,
	Slot:  30 * time.Minute,
}

// newTestService wires a service over the in-memory stack with a fixed clock.
func newTestService(now time.Time) (*Service, *memRepo, *recordSender) {
	repo := newMemRepo()
	sender := &recordSender{}
	checker := NewChecker(repo, testHours)
	svc := NewService(repo, checker, newMemLocker(), sender, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, repo, sender
}
