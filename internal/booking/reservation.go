package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reservation is the central record of the engine. The core fields (car,
// holder, planned window, quoted price) are immutable after creation; only
// the three lifecycle axes move, each monotonically:
//
//   - replacement: active -> superseded, by another reservation's creation
//   - cancellation: active -> cancelled
//   - fulfillment: planned -> picked up -> returned
//
// Records are never deleted.
type Reservation struct {
	ID           uuid.UUID  `json:"id"`
	CarID        string     `json:"car_id"`
	HolderID     string     `json:"holder_id"`
	Window       Window     `json:"window"`
	QuotedPrice  int64      `json:"quoted_price"`
	ReplacesID   *uuid.UUID `json:"replaces_id,omitempty"`
	ReplacedByID *uuid.UUID `json:"replaced_by_id,omitempty"`
	Cancelled    bool       `json:"cancelled"`
	PickedUpAt   *time.Time `json:"picked_up_at,omitempty"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Active reports whether the reservation still holds the car for its window.
// Cancellation and replacement deactivate independently.
func (r *Reservation) Active() bool {
	return !r.Cancelled && r.ReplacedByID == nil
}

func (r *Reservation) Replaced() bool {
	return r.ReplacedByID != nil
}

func (r *Reservation) PickedUp() bool {
	return r.PickedUpAt != nil
}

func (r *Reservation) Returned() bool {
	return r.ReturnedAt != nil
}

// EventKind labels an entry in a reservation's append-only history.
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventSuperseded EventKind = "superseded"
	EventCancelled  EventKind = "cancelled"
	EventPickedUp   EventKind = "picked_up"
	EventReturned   EventKind = "returned"
)

// Event is one recorded lifecycle transition.
type Event struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	Kind          EventKind  `json:"kind"`
	RelatedID     *uuid.UUID `json:"related_id,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Store is the durable reservation mapping the engine runs on. Implementations
// assign ids, keep every record forever and guarantee that a committed
// reservation is immediately visible to ListActiveForCar.
type Store interface {
	// Create persists a new reservation, assigning its id. When
	// res.ReplacesID is set the store must atomically reject the write with
	// ErrAlreadyReplaced if any other reservation already replaces that
	// target.
	Create(ctx context.Context, res *Reservation) (*Reservation, error)

	// Get returns the reservation or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// ListActiveForCar returns every reservation for the car that is neither
	// cancelled nor replaced, ordered by planned departure ascending.
	ListActiveForCar(ctx context.Context, carID string) ([]*Reservation, error)

	// MarkCancelled flips the cancelled flag exactly once.
	MarkCancelled(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// MarkPickedUp sets the pickup timestamp exactly once.
	MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) (*Reservation, error)

	// MarkReturned sets the return timestamp exactly once, after pickup and
	// never before it.
	MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (*Reservation, error)

	// GetHistory returns the recorded transitions for a reservation in
	// occurrence order.
	GetHistory(ctx context.Context, id uuid.UUID) ([]*Event, error)
}
