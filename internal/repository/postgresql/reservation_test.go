package postgresql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mock_database "carbook/internal/db/mocks"
	"carbook/internal/repository"
	"carbook/internal/repository/postgresql"
)

func testRow() *repository.Reservation {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return &repository.Reservation{
		ID:                 uuid.New(),
		CarID:              "car-1",
		HolderID:           "holder-1",
		PlannedDepartureAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		PlannedReturnAt:    time.Date(2024, 5, 3, 19, 0, 0, 0, time.UTC),
		QuotedPrice:        12000,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestReservationRepo_CreateTx(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		row := testRow()
		mockTx.EXPECT().Exec(
			gomock.Any(),
			gomock.Any(),
			gomock.Eq(row.ID),
			gomock.Eq(row.CarID),
			gomock.Eq(row.HolderID),
			gomock.Eq(row.PlannedDepartureAt),
			gomock.Eq(row.PlannedReturnAt),
			gomock.Eq(row.QuotedPrice),
			gomock.Eq(row.ReplacesID),
			gomock.Eq(row.Cancelled),
			gomock.Eq(row.CreatedAt),
			gomock.Eq(row.UpdatedAt),
		).Return(nil, nil)

		err := repo.CreateTx(ctx, mockTx, row)
		assert.NoError(t, err)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		expectedErr := errors.New("database error")
		mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, expectedErr)

		err := repo.CreateTx(ctx, mockTx, testRow())
		assert.Equal(t, expectedErr, err)
	})
}

func TestReservationRepo_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		want := testRow()
		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq(want.ID)).
			DoAndReturn(func(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
				*dest.(*repository.Reservation) = *want
				return nil
			})

		got, err := repo.GetByID(ctx, want.ID)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(pgx.ErrNoRows)

		_, err := repo.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		expectedErr := errors.New("database error")
		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(expectedErr)

		_, err := repo.GetByID(ctx, uuid.New())
		assert.Equal(t, expectedErr, err)
	})
}

func TestReservationRepo_GetByIDTx(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the row", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		want := testRow()
		mockTx.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Regex("FOR UPDATE OF r"), gomock.Eq(want.ID)).
			DoAndReturn(func(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
				*dest.(*repository.Reservation) = *want
				return nil
			})

		got, err := repo.GetByIDTx(ctx, mockTx, want.ID)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		mockTx.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(pgx.ErrNoRows)

		_, err := repo.GetByIDTx(ctx, mockTx, uuid.New())
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
	})
}

func TestReservationRepo_GetActiveByCarID(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		want := []*repository.Reservation{testRow(), testRow()}
		mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("car-1")).
			DoAndReturn(func(_ context.Context, dest interface{}, _ string, _ ...interface{}) error {
				*dest.(*[]*repository.Reservation) = want
				return nil
			})

		got, err := repo.GetActiveByCarID(ctx, "car-1")
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("database error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewReservationRepo(mockDB)

		expectedErr := errors.New("database error")
		mockDB.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(expectedErr)

		_, err := repo.GetActiveByCarID(ctx, "car-1")
		assert.Equal(t, expectedErr, err)
	})
}

func TestReservationRepo_SetCancelledTx(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	mockTx := mock_database.NewMockTx(ctrl)
	repo := postgresql.NewReservationRepo(mockDB)

	row := testRow()
	row.Cancelled = true

	mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq(row.ID), gomock.Eq(row.UpdatedAt)).Return(nil, nil)

	err := repo.SetCancelledTx(ctx, mockTx, row)
	assert.NoError(t, err)
}

func TestReservationRepo_SetPickedUpTx(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	mockTx := mock_database.NewMockTx(ctrl)
	repo := postgresql.NewReservationRepo(mockDB)

	row := testRow()
	pickupAt := time.Date(2024, 5, 1, 9, 15, 0, 0, time.UTC)
	row.PickedUpAt = &pickupAt

	mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq(row.ID), gomock.Eq(row.PickedUpAt), gomock.Eq(row.UpdatedAt)).Return(nil, nil)

	err := repo.SetPickedUpTx(ctx, mockTx, row)
	assert.NoError(t, err)
}

func TestReservationRepo_SetReturnedTx(t *testing.T) {
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	mockTx := mock_database.NewMockTx(ctrl)
	repo := postgresql.NewReservationRepo(mockDB)

	row := testRow()
	returnedAt := time.Date(2024, 5, 3, 18, 45, 0, 0, time.UTC)
	row.ReturnedAt = &returnedAt

	mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq(row.ID), gomock.Eq(row.ReturnedAt), gomock.Eq(row.UpdatedAt)).Return(nil, nil)

	err := repo.SetReturnedTx(ctx, mockTx, row)
	assert.NoError(t, err)
}
