package postgresql

import (
	"context"

	"github.com/google/uuid"

	"carbook/internal/db"
	"carbook/internal/repository"
)

type EventRepo struct {
	db db.DB
}

func NewEventRepo(db db.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) CreateTx(ctx context.Context, tx db.Tx, entry *repository.ReservationEvent) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO reservation_events (
            reservation_id, kind, related_id, occurred_at
        ) VALUES ($1, $2, $3, $4)
    `, entry.ReservationID, entry.Kind, entry.RelatedID, entry.OccurredAt)
	return err
}

func (r *EventRepo) GetByReservationID(ctx context.Context, reservationID uuid.UUID) ([]*repository.ReservationEvent, error) {
	var entries []*repository.ReservationEvent
	err := r.db.Select(ctx, &entries, `
        SELECT * FROM reservation_events
        WHERE reservation_id = $1
        ORDER BY occurred_at ASC, id ASC
    `, reservationID)
	return entries, err
}
