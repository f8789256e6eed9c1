package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAvailableSlotsFullDay(t *testing.T) {
	repo := newMemRepo()
	checker := NewChecker(repo, testHours)
	doctorID := uuid.New()

	day := time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)
	slots, err := checker.ListAvailableSlots(context.Background(), doctorID, day)
	require.NoError(t, err)

	// 09:00–17:00 at 30 minutes is 16 slots.
	require.Len(t, slots, 16)
	assert.True(t, slots[0].Equal(day.Add(9*time.Hour)))
	assert.True(t, slots[15].Equal(day.Add(16*time.Hour+30*time.Minute)))
	for i := 1; i < len(slots); i++ {
		assert.Equal(t, 30*time.Minute, slots[i].Sub(slots[i-1]))
	}
}

func TestListAvailableSlotsExcludesBooked(t *testing.T) {
	repo := newMemRepo()
	checker := NewChecker(repo, testHours)
	doctorID := uuid.New()
	patientID := uuid.New()

	_, err := repo.CreateAppointment(context.Background(), patientID, doctorID, slot9am, "")
	require.NoError(t, err)

	slots, err := checker.ListAvailableSlots(context.Background(), doctorID, slot9am)
	require.NoError(t, err)

	assert.Len(t, slots, 15)
	for _, s := range slots {
		assert.False(t, s.Equal(slot9am))
	}
}

func TestListAvailableSlotsIgnoresCancelled(t *testing.T) {
	repo := newMemRepo()
	checker := NewChecker(repo, testHours)
	doctorID := uuid.New()
	patientID := uuid.New()

	appt, err := repo.CreateAppointment(context.Background(), patientID, doctorID, slot9am, "")
	require.NoError(t, err)
	_, err = repo.CancelAppointment(context.Background(), appt.ID)
	require.NoError(t, err)

	slots, err := checker.ListAvailableSlots(context.Background(), doctorID, slot9am)
	require.NoError(t, err)
	assert.Len(t, slots, 16)
}

func TestIsSlotAvailable(t *testing.T) {
	repo := newMemRepo()
	checker := NewChecker(repo, testHours)
	doctorID := uuid.New()
	otherDoctor := uuid.New()
	patientID := uuid.New()

	free, err := checker.IsSlotAvailable(context.Background(), doctorID, slot9am)
	require.NoError(t, err)
	assert.True(t, free)

	_, err = repo.CreateAppointment(context.Background(), patientID, doctorID, slot9am, "")
	require.NoError(t, err)

	free, err = checker.IsSlotAvailable(context.Background(), doctorID, slot9am)
	require.NoError(t, err)
	assert.False(t, free)

	// Another doctor's calendar is unaffected.
	free, err = checker.IsSlotAvailable(context.Background(), otherDoctor, slot9am)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestIsSlotAvailablePropagatesStorageError(t *testing.T) {
	repo := newMemRepo()
	repo.failListByDoctor = assert.AnError
	checker := NewChecker(repo, testHours)

	_, err := checker.IsSlotAvailable(context.Background(), uuid.New(), slot9am)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOnGrid(t *testing.T) {
	checker := NewChecker(newMemRepo(), testHours)

	cases := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"first slot of the day", slot9am, true},
		{"last slot of the day", time.Date(2025, 3, 21, 16, 30, 0, 0, time.UTC), true},
		{"closing time itself", time.Date(2025, 3, 21, 17, 0, 0, 0, time.UTC), false},
		{"before opening", time.Date(2025, 3, 21, 8, 30, 0, 0, time.UTC), false},
		{"off the half-hour", slot9am.Add(7 * time.Minute), false},
		{"midday on the grid", time.Date(2025, 3, 21, 13, 30, 0, 0, time.UTC), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, checker.OnGrid(tc.ts))
		})
	}
}
