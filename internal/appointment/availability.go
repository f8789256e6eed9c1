package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkingHours is the fixed daily template the slot grid is generated from.
// Start and End are offsets from midnight UTC; bookable instants are
// Start, Start+Slot, ... up to (not including) End.
type WorkingHours struct {
	Start time.Duration
	End   time.Duration
	Slot  time.Duration
}

// Checker answers "can doctor D be booked at T" against the live appointment
// set. Results are recomputed from storage on every call; bookings can land
// between any two calls, so callers must not cache them. The service re-checks
// inside the slot lock and the storage unique index is the final word.
type Checker struct {
	repo  Repository
	hours WorkingHours
}

func NewChecker(repo Repository, hours WorkingHours) *Checker {
	return &Checker{repo: repo, hours: hours}
}

// OnGrid reports whether ts is one of the pre-quantized bookable instants.
// Conflict detection is exact-timestamp equality, which is only sound when
// every booking sits on the same grid, so off-grid requests are rejected
// before they reach storage.
func (c *Checker) OnGrid(ts time.Time) bool {
	ts = ts.UTC()
	midnight := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	offset := ts.Sub(midnight)

	if offset < c.hours.Start || offset >= c.hours.End {
		return false
	}
	return (offset-c.hours.Start)%c.hours.Slot == 0
}

// IsSlotAvailable reports whether no non-cancelled appointment for the doctor
// occupies the exact timestamp. A storage error is returned as-is and must
// never be read as "available".
func (c *Checker) IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, ts time.Time) (bool, error) {
	ts = ts.UTC()

	booked, err := c.repo.ListByDoctorAndDate(ctx, doctorID, ts)
	if err != nil {
		return false, fmt.Errorf("list doctor appointments: %w", err)
	}

	for _, a := range booked {
		if a.Status.Occupies() && a.ScheduledAt.Equal(ts) {
			return false, nil
		}
	}
	return true, nil
}

// ListAvailableSlots enumerates the bookable timestamps for the doctor on the
// calendar day containing `day`: the working-hours grid minus occupied slots.
func (c *Checker) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]time.Time, error) {
	day = day.UTC()

	booked, err := c.repo.ListByDoctorAndDate(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}

	occupied := make(map[int64]struct{}, len(booked))
	for _, a := range booked {
		if a.Status.Occupies() {
			occupied[a.ScheduledAt.Unix()] = struct{}{}
		}
	}

	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var slots []time.Time
	for off := c.hours.Start; off < c.hours.End; off += c.hours.Slot {
		ts := midnight.Add(off)
		if _, taken := occupied[ts.Unix()]; taken {
			continue
		}
		slots = append(slots, ts)
	}

	return slots, nil
}
