package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbook/internal/booking"
	"carbook/internal/storage"
)

func window(t *testing.T, dep, ret string) booking.Window {
	t.Helper()
	depAt, err := time.Parse(time.RFC3339, dep)
	require.NoError(t, err)
	retAt, err := time.Parse(time.RFC3339, ret)
	require.NoError(t, err)
	w, err := booking.NewWindow(depAt, retAt)
	require.NoError(t, err)
	return w
}

func newReservation(t *testing.T, carID string, dep, ret string) *booking.Reservation {
	t.Helper()
	return &booking.Reservation{
		CarID:       carID,
		HolderID:    "holder-1",
		Window:      window(t, dep, ret),
		QuotedPrice: 15000,
	}
}

func TestFileStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	created, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "car-1", got.CarID)
	assert.True(t, got.Active())

	_, err = store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reservations.json")

	store, err := storage.NewFileStore(path)
	require.NoError(t, err)

	created, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)
	_, err = store.MarkPickedUp(ctx, created.ID, time.Date(2024, 5, 1, 9, 5, 0, 0, time.UTC))
	require.NoError(t, err)

	reopened, err := storage.NewFileStore(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.NotNil(t, got.PickedUpAt)

	history, err := reopened.GetHistory(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, booking.EventCreated, history[0].Kind)
	assert.Equal(t, booking.EventPickedUp, history[1].Kind)
}

func TestFileStore_Replacement(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	old, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)

	replacement := newReservation(t, "car-2", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z")
	oldID := old.ID
	replacement.ReplacesID = &oldID

	created, err := store.Create(ctx, replacement)
	require.NoError(t, err)
	require.NotNil(t, created.ReplacesID)
	assert.Equal(t, old.ID, *created.ReplacesID)

	oldNow, err := store.Get(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, oldNow.ReplacedByID)
	assert.Equal(t, created.ID, *oldNow.ReplacedByID)
	assert.False(t, oldNow.Active())

	t.Run("second replacement of same target rejected", func(t *testing.T) {
		again := newReservation(t, "car-3", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z")
		again.ReplacesID = &oldID

		_, err := store.Create(ctx, again)
		assert.ErrorIs(t, err, booking.ErrAlreadyReplaced)
	})

	t.Run("replacing an unknown target rejected", func(t *testing.T) {
		missing := uuid.New()
		res := newReservation(t, "car-3", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z")
		res.ReplacesID = &missing

		_, err := store.Create(ctx, res)
		assert.ErrorIs(t, err, booking.ErrNotFound)
	})
}

func TestFileStore_ListActiveForCar(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	// Insert out of departure order.
	second, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-10T09:00:00Z", "2024-05-11T09:00:00Z"))
	require.NoError(t, err)
	first, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)
	cancelled, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-20T09:00:00Z", "2024-05-21T09:00:00Z"))
	require.NoError(t, err)
	_, err = store.MarkCancelled(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = store.Create(ctx, newReservation(t, "car-2", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)

	active, err := store.ListActiveForCar(ctx, "car-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, second.ID, active[1].ID)

	active, err = store.ListActiveForCar(ctx, "car-9")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFileStore_Transitions(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	res, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)

	t.Run("cancel once", func(t *testing.T) {
		got, err := store.MarkCancelled(ctx, res.ID)
		require.NoError(t, err)
		assert.True(t, got.Cancelled)

		_, err = store.MarkCancelled(ctx, res.ID)
		assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
	})

	t.Run("return gated on pickup", func(t *testing.T) {
		other, err := store.Create(ctx, newReservation(t, "car-2", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
		require.NoError(t, err)

		_, err = store.MarkReturned(ctx, other.ID, time.Date(2024, 5, 3, 18, 0, 0, 0, time.UTC))
		assert.ErrorIs(t, err, booking.ErrNotPickedUpYet)

		pickupAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		_, err = store.MarkPickedUp(ctx, other.ID, pickupAt)
		require.NoError(t, err)

		_, err = store.MarkReturned(ctx, other.ID, pickupAt.Add(-time.Hour))
		assert.ErrorIs(t, err, booking.ErrReturnBeforePickup)

		got, err := store.MarkReturned(ctx, other.ID, pickupAt.Add(48*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, got.ReturnedAt)

		_, err = store.MarkReturned(ctx, other.ID, pickupAt.Add(49*time.Hour))
		assert.ErrorIs(t, err, booking.ErrAlreadyReturned)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.MarkCancelled(ctx, uuid.New())
		assert.ErrorIs(t, err, booking.ErrNotFound)
	})
}

func TestFileStore_GetHistoryIsolatedPerReservation(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	a, err := store.Create(ctx, newReservation(t, "car-1", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)
	b, err := store.Create(ctx, newReservation(t, "car-2", "2024-05-01T09:00:00Z", "2024-05-03T19:00:00Z"))
	require.NoError(t, err)
	_, err = store.MarkCancelled(ctx, b.ID)
	require.NoError(t, err)

	historyA, err := store.GetHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, historyA, 1)
	assert.Equal(t, booking.EventCreated, historyA[0].Kind)

	historyB, err := store.GetHistory(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, historyB, 2)
	assert.Equal(t, booking.EventCancelled, historyB[1].Kind)
}
