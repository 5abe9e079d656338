package redisclient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotKeyString(t *testing.T) {
	id := uuid.MustParse("6f1c2d4e-8a9b-4c3d-9e8f-112233445566")
	key := SlotKey{DoctorID: id, SlotDate: "5_6_2025", SlotTime: "10:00 AM"}
	assert.Equal(t, "6f1c2d4e-8a9b-4c3d-9e8f-112233445566:5_6_2025:10:00 AM", key.String())
}

func TestLocalSlotLockerRejectsNestedSameSlot(t *testing.T) {
	l := NewLocalSlotLocker()
	key := SlotKey{DoctorID: uuid.New(), SlotDate: "5_6_2025", SlotTime: "10:00 AM"}

	var inner error
	err := l.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		inner = l.WithSlotLock(ctx, key, func(context.Context) error { return nil })
		return nil
	})

	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrLockNotAcquired)
}

func TestLocalSlotLockerAllowsOtherSlotsOfSameDoctor(t *testing.T) {
	l := NewLocalSlotLocker()
	doc := uuid.New()
	a := SlotKey{DoctorID: doc, SlotDate: "5_6_2025", SlotTime: "10:00 AM"}
	b := SlotKey{DoctorID: doc, SlotDate: "5_6_2025", SlotTime: "10:30 AM"}

	var inner error
	err := l.WithSlotLock(context.Background(), a, func(ctx context.Context) error {
		inner = l.WithSlotLock(ctx, b, func(context.Context) error { return nil })
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, inner)
}

func TestLocalSlotLockerReleasesOnError(t *testing.T) {
	l := NewLocalSlotLocker()
	key := SlotKey{DoctorID: uuid.New(), SlotDate: "5_6_2025", SlotTime: "10:00 AM"}
	boom := errors.New("boom")

	err := l.WithSlotLock(context.Background(), key, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = l.WithSlotLock(context.Background(), key, func(context.Context) error { return nil })
	assert.NoError(t, err)
}
