package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSlotLocker(client, 5*time.Second), mr
}

func TestWithSlotLockRunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	doctorID := uuid.New()
	at := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

	ran := false
	err := locker.WithSlotLock(context.Background(), doctorID, at, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(slotLockKey(doctorID, at)))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Released on the way out.
	assert.False(t, mr.Exists(slotLockKey(doctorID, at)))
}

func TestWithSlotLockIsExclusivePerSlot(t *testing.T) {
	locker, _ := newTestLocker(t)
	doctorID := uuid.New()
	at := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

	err := locker.WithSlotLock(context.Background(), doctorID, at, func(ctx context.Context) error {
		// A contender for the same (doctor, timestamp) is turned away.
		innerErr := locker.WithSlotLock(ctx, doctorID, at, func(context.Context) error {
			t.Fatal("second holder entered the critical section")
			return nil
		})
		assert.ErrorIs(t, innerErr, ErrLockNotAcquired)

		// A different timestamp for the same doctor is independent.
		otherErr := locker.WithSlotLock(ctx, doctorID, at.Add(30*time.Minute), func(context.Context) error {
			return nil
		})
		assert.NoError(t, otherErr)

		// As is the same timestamp for a different doctor.
		otherDoctorErr := locker.WithSlotLock(ctx, uuid.New(), at, func(context.Context) error {
			return nil
		})
		assert.NoError(t, otherDoctorErr)

		return nil
	})
	require.NoError(t, err)
}

func TestWithSlotLockReleasesAfterError(t *testing.T) {
	locker, mr := newTestLocker(t)
	doctorID := uuid.New()
	at := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := locker.WithSlotLock(context.Background(), doctorID, at, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(slotLockKey(doctorID, at)))

	// The slot is lockable again.
	err = locker.WithSlotLock(context.Background(), doctorID, at, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestWithSlotLockExpiresByTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisSlotLocker(client, 50*time.Millisecond)
	doctorID := uuid.New()
	at := time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)

	err := locker.WithSlotLock(context.Background(), doctorID, at, func(ctx context.Context) error {
		// A holder that outlives its TTL loses the key; miniredis advances
		// time manually.
		mr.FastForward(100 * time.Millisecond)
		assert.False(t, mr.Exists(slotLockKey(doctorID, at)))
		return nil
	})
	require.NoError(t, err)
}
