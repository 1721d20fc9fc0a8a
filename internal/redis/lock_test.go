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

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func testKey() SlotKey {
	return SlotKey{DoctorID: uuid.New(), Date: "2025-07-02", Slot: "09:30"}
}

func TestWithSlotLockRunsAndReleases(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	key := testKey()

	ran := false
	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key.String()), "lock key should exist inside the critical section")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key.String()), "lock key should be released")
}

func TestWithSlotLockRejectsSecondHolder(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	key := testKey()

	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithSlotLock(ctx, key, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		other := key
		other.Slot = "10:00"
		return locker.WithSlotLock(ctx, other, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestWithSlotLockPropagatesFnError(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	key := testKey()
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(key.String()))
}

func TestWithSlotLockDoesNotReleaseForeignToken(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second)
	key := testKey()

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		// Simulate expiry and takeover by another process.
		require.NoError(t, mr.Set(key.String(), "someone-else"))
		return nil
	})
	require.NoError(t, err)

	val, err := mr.Get(key.String())
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestWithSlotLockUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	locker := NewRedisSlotLocker(client, time.Second)
	mr.Close()

	err = locker.WithSlotLock(context.Background(), testKey(), func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockUnavailable)
}

func TestNoopLocker(t *testing.T) {
	ran := false
	err := NoopLocker{}.WithSlotLock(context.Background(), testKey(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
