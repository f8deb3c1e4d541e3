package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"carbook/internal/db"
	"carbook/internal/repository"
)

// selectReservation joins each row against its superseding row (if any) so
// replaced_by_id can be scanned alongside the stored columns.
const selectReservation = `
    SELECT r.id, r.car_id, r.holder_id, r.planned_departure_at, r.planned_return_at,
           r.quoted_price, r.replaces_id, s.id AS replaced_by_id, r.cancelled,
           r.picked_up_at, r.returned_at, r.created_at, r.updated_at
    FROM reservations r
    LEFT JOIN reservations s ON s.replaces_id = r.id
`

type ReservationRepo struct {
	db db.DB
}

func NewReservationRepo(db db.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func (r *ReservationRepo) CreateTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO reservations (
            id, car_id, holder_id, planned_departure_at, planned_return_at,
            quoted_price, replaces_id, cancelled, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, res.ID, res.CarID, res.HolderID, res.PlannedDepartureAt, res.PlannedReturnAt,
		res.QuotedPrice, res.ReplacesID, res.Cancelled, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *ReservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Reservation, error) {
	var res repository.Reservation
	err := r.db.Get(ctx, &res, selectReservation+" WHERE r.id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &res, nil
}

// GetByIDTx locks the reservation row for the duration of the transaction.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx db.Tx, id uuid.UUID) (*repository.Reservation, error) {
	var res repository.Reservation
	err := tx.Get(ctx, &res, selectReservation+" WHERE r.id = $1 FOR UPDATE OF r", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &res, nil
}

// GetActiveByCarID returns the reservations holding the car: not cancelled and
// not the target of any replaces_id link, planned departure ascending.
func (r *ReservationRepo) GetActiveByCarID(ctx context.Context, carID string) ([]*repository.Reservation, error) {
	var reservations []*repository.Reservation
	err := r.db.Select(ctx, &reservations, selectReservation+`
        WHERE r.car_id = $1 AND NOT r.cancelled AND s.id IS NULL
        ORDER BY r.planned_departure_at ASC
    `, carID)
	return reservations, err
}

// GetAllActive feeds the cache warm-up on startup.
func (r *ReservationRepo) GetAllActive(ctx context.Context) ([]*repository.Reservation, error) {
	var reservations []*repository.Reservation
	err := r.db.Select(ctx, &reservations, selectReservation+`
        WHERE NOT r.cancelled AND s.id IS NULL
        ORDER BY r.planned_departure_at ASC
    `)
	return reservations, err
}

func (r *ReservationRepo) SetCancelledTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error {
	_, err := tx.Exec(ctx, `
        UPDATE reservations
        SET cancelled = TRUE, updated_at = $2
        WHERE id = $1
    `, res.ID, res.UpdatedAt)
	return err
}

func (r *ReservationRepo) SetPickedUpTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error {
	_, err := tx.Exec(ctx, `
        UPDATE reservations
        SET picked_up_at = $2, updated_at = $3
        WHERE id = $1
    `, res.ID, res.PickedUpAt, res.UpdatedAt)
	return err
}

func (r *ReservationRepo) SetReturnedTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error {
	_, err := tx.Exec(ctx, `
        UPDATE reservations
        SET returned_at = $2, updated_at = $3
        WHERE id = $1
    `, res.ID, res.ReturnedAt, res.UpdatedAt)
	return err
}
