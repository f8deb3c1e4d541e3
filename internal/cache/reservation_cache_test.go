package cache_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbook/internal/booking"
	"carbook/internal/cache"
)

type staticLister struct {
	reservations []*booking.Reservation
	err          error
}

func (l *staticLister) GetAllActive(context.Context) ([]*booking.Reservation, error) {
	return l.reservations, l.err
}

func activeReservation() *booking.Reservation {
	return &booking.Reservation{
		ID:       uuid.New(),
		CarID:    "car-1",
		HolderID: "holder-1",
	}
}

func TestReservationCache_LoadInitialData(t *testing.T) {
	ctx := context.Background()

	t.Run("warms from lister", func(t *testing.T) {
		a, b := activeReservation(), activeReservation()
		c := cache.NewReservationCache(&staticLister{reservations: []*booking.Reservation{a, b}}, zap.NewNop())

		require.NoError(t, c.LoadInitialData(ctx))

		got, found := c.Get(a.ID)
		assert.True(t, found)
		assert.Equal(t, a.ID, got.ID)

		_, found = c.Get(uuid.New())
		assert.False(t, found)
	})

	t.Run("propagates lister error", func(t *testing.T) {
		c := cache.NewReservationCache(&staticLister{err: assert.AnError}, zap.NewNop())
		assert.ErrorIs(t, c.LoadInitialData(ctx), assert.AnError)
	})
}

func TestReservationCache_SetEvictsInactive(t *testing.T) {
	c := cache.NewReservationCache(&staticLister{}, zap.NewNop())

	res := activeReservation()
	c.Set(res)

	_, found := c.Get(res.ID)
	require.True(t, found)

	cancelled := *res
	cancelled.Cancelled = true
	c.Set(&cancelled)

	_, found = c.Get(res.ID)
	assert.False(t, found)
}

func TestReservationCache_GetReturnsCopy(t *testing.T) {
	c := cache.NewReservationCache(&staticLister{}, zap.NewNop())

	res := activeReservation()
	c.Set(res)

	got, found := c.Get(res.ID)
	require.True(t, found)

	got.CarID = "mutated"

	again, found := c.Get(res.ID)
	require.True(t, found)
	assert.Equal(t, "car-1", again.CarID)
}

func TestReservationCache_Delete(t *testing.T) {
	c := cache.NewReservationCache(&staticLister{}, zap.NewNop())

	res := activeReservation()
	c.Set(res)
	c.Delete(res.ID)

	_, found := c.Get(res.ID)
	assert.False(t, found)

	// Deleting an absent id is a no-op.
	c.Delete(uuid.New())
}
