package repository

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("not found")

// Reservation is the row shape of the reservations table. replaced_by_id is
// not a column; list/get queries derive it from the replaces_id back-reference
// of the superseding row.
type Reservation struct {
	ID                 uuid.UUID  `db:"id"`
	CarID              string     `db:"car_id"`
	HolderID           string     `db:"holder_id"`
	PlannedDepartureAt time.Time  `db:"planned_departure_at"`
	PlannedReturnAt    time.Time  `db:"planned_return_at"`
	QuotedPrice        int64      `db:"quoted_price"`
	ReplacesID         *uuid.UUID `db:"replaces_id"`
	ReplacedByID       *uuid.UUID `db:"replaced_by_id"`
	Cancelled          bool       `db:"cancelled"`
	PickedUpAt         *time.Time `db:"picked_up_at"`
	ReturnedAt         *time.Time `db:"returned_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

type ReservationEvent struct {
	ID            int64      `db:"id"`
	ReservationID uuid.UUID  `db:"reservation_id"`
	Kind          string     `db:"kind"`
	RelatedID     *uuid.UUID `db:"related_id"`
	OccurredAt    time.Time  `db:"occurred_at"`
}

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDone       TaskStatus = "DONE"
)

type OutboxTask struct {
	ID          uuid.UUID       `db:"id"`
	Status      TaskStatus      `db:"status"`
	Payload     json.RawMessage `db:"payload"`
	Topic       string          `db:"topic"`
	Attempts    int             `db:"attempts"`
	LastError   *string         `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at"`
}

// BookingEventPayload is the JSON shipped to the booking_events topic for
// every committed lifecycle transition.
type BookingEventPayload struct {
	ReservationID string    `json:"reservation_id"`
	CarID         string    `json:"car_id"`
	HolderID      string    `json:"holder_id"`
	Kind          string    `json:"kind"`
	RelatedID     string    `json:"related_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
