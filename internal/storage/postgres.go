package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"

	"carbook/internal/booking"
	"carbook/internal/cache"
	"carbook/internal/db"
	"carbook/internal/repository"
)

// TopicBookingEvents is the Kafka topic lifecycle transitions end up on, via
// the transactional outbox.
const TopicBookingEvents = "booking_events"

const uniqueViolationCode = "23505"

type ReservationRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Reservation, error)
	GetByIDTx(ctx context.Context, tx db.Tx, id uuid.UUID) (*repository.Reservation, error)
	GetActiveByCarID(ctx context.Context, carID string) ([]*repository.Reservation, error)
	GetAllActive(ctx context.Context) ([]*repository.Reservation, error)
	SetCancelledTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error
	SetPickedUpTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error
	SetReturnedTx(ctx context.Context, tx db.Tx, res *repository.Reservation) error
}

type EventRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, entry *repository.ReservationEvent) error
	GetByReservationID(ctx context.Context, reservationID uuid.UUID) ([]*repository.ReservationEvent, error)
}

type OutboxRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, task *repository.OutboxTask) error
}

// PostgresStore is the durable booking.Store. Every mutation commits the
// reservation row, its history event and the outbox task in one transaction,
// so a failed operation never leaves a partial record and a committed
// reservation is visible to the active-listing query immediately.
type PostgresStore struct {
	db           db.DB
	reservations ReservationRepository
	events       EventRepository
	outbox       OutboxRepository
	cache        *cache.ReservationCache
}

var _ booking.Store = (*PostgresStore)(nil)

func NewPostgresStore(
	db db.DB,
	reservations ReservationRepository,
	events EventRepository,
	outbox OutboxRepository,
) *PostgresStore {
	return &PostgresStore{
		db:           db,
		reservations: reservations,
		events:       events,
		outbox:       outbox,
	}
}

// WithCache attaches a read-side cache for point lookups.
func (s *PostgresStore) WithCache(c *cache.ReservationCache) *PostgresStore {
	s.cache = c
	return s
}

// GetAllActive implements cache.ActiveLister.
func (s *PostgresStore) GetAllActive(ctx context.Context) ([]*booking.Reservation, error) {
	rows, err := s.reservations.GetAllActive(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Op: "list active reservations", Err: err}
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) Create(ctx context.Context, res *booking.Reservation) (*booking.Reservation, error) {
	now := time.Now().UTC()
	row := toRow(res)
	row.ID = uuid.New()
	row.CreatedAt = now
	row.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Op: "create reservation", Err: err}
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	var oldRow *repository.Reservation
	if row.ReplacesID != nil {
		// Lock the superseded row so concurrent replacement attempts
		// serialize here; the loser then trips the unique index below.
		oldRow, err = s.reservations.GetByIDTx(ctx, tx, *row.ReplacesID)
		if err != nil {
			if errors.Is(err, repository.ErrObjectNotFound) {
				return nil, booking.ErrNotFound
			}
			return nil, &booking.PersistenceError{Op: "lock replaced reservation", Err: err}
		}
		if oldRow.ReplacedByID != nil {
			return nil, booking.ErrAlreadyReplaced
		}
	}

	if err := s.reservations.CreateTx(ctx, tx, row); err != nil {
		if isUniqueViolation(err) {
			return nil, booking.ErrAlreadyReplaced
		}
		return nil, &booking.PersistenceError{Op: "create reservation", Err: err}
	}

	if err := s.appendEventTx(ctx, tx, row, booking.EventCreated, row.ReplacesID, now); err != nil {
		return nil, err
	}
	if oldRow != nil {
		if err := s.appendEventTx(ctx, tx, oldRow, booking.EventSuperseded, &row.ID, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &booking.PersistenceError{Op: "create reservation", Err: err}
	}

	created := fromRow(row)
	if s.cache != nil {
		s.cache.Set(created)
		if row.ReplacesID != nil {
			s.cache.Delete(*row.ReplacesID)
		}
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*booking.Reservation, error) {
	if s.cache != nil {
		if res, found := s.cache.Get(id); found {
			return res, nil
		}
	}

	row, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, booking.ErrNotFound
		}
		return nil, &booking.PersistenceError{Op: "get reservation", Err: err}
	}

	res := fromRow(row)
	if s.cache != nil {
		s.cache.Set(res)
	}
	return res, nil
}

func (s *PostgresStore) ListActiveForCar(ctx context.Context, carID string) ([]*booking.Reservation, error) {
	rows, err := s.reservations.GetActiveByCarID(ctx, carID)
	if err != nil {
		return nil, &booking.PersistenceError{Op: "list active reservations", Err: err}
	}
	return fromRows(rows), nil
}

func (s *PostgresStore) MarkCancelled(ctx context.Context, id uuid.UUID) (*booking.Reservation, error) {
	return s.transition(ctx, id, booking.EventCancelled, func(row *repository.Reservation, now time.Time) error {
		if row.Cancelled {
			return booking.ErrAlreadyCancelled
		}
		row.Cancelled = true
		return nil
	}, s.reservations.SetCancelledTx)
}

func (s *PostgresStore) MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) (*booking.Reservation, error) {
	at = at.UTC()
	return s.transition(ctx, id, booking.EventPickedUp, func(row *repository.Reservation, now time.Time) error {
		if row.PickedUpAt != nil {
			return booking.ErrAlreadyPickedUp
		}
		row.PickedUpAt = &at
		return nil
	}, s.reservations.SetPickedUpTx)
}

func (s *PostgresStore) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (*booking.Reservation, error) {
	at = at.UTC()
	return s.transition(ctx, id, booking.EventReturned, func(row *repository.Reservation, now time.Time) error {
		switch {
		case row.PickedUpAt == nil:
			return booking.ErrNotPickedUpYet
		case row.ReturnedAt != nil:
			return booking.ErrAlreadyReturned
		case at.Before(*row.PickedUpAt):
			return booking.ErrReturnBeforePickup
		}
		row.ReturnedAt = &at
		return nil
	}, s.reservations.SetReturnedTx)
}

func (s *PostgresStore) GetHistory(ctx context.Context, id uuid.UUID) ([]*booking.Event, error) {
	rows, err := s.events.GetByReservationID(ctx, id)
	if err != nil {
		return nil, &booking.PersistenceError{Op: "get reservation history", Err: err}
	}

	events := make([]*booking.Event, len(rows))
	for i, row := range rows {
		events[i] = &booking.Event{
			ReservationID: row.ReservationID,
			Kind:          booking.EventKind(row.Kind),
			RelatedID:     row.RelatedID,
			OccurredAt:    row.OccurredAt,
		}
	}
	return events, nil
}

// transition applies a single-record guarded update: lock the row, run the
// guard, persist the changed field plus history and outbox, commit.
func (s *PostgresStore) transition(
	ctx context.Context,
	id uuid.UUID,
	kind booking.EventKind,
	guard func(row *repository.Reservation, now time.Time) error,
	apply func(ctx context.Context, tx db.Tx, row *repository.Reservation) error,
) (*booking.Reservation, error) {
	op := fmt.Sprintf("mark reservation %s", kind)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, &booking.PersistenceError{Op: op, Err: err}
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	row, err := s.reservations.GetByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, booking.ErrNotFound
		}
		return nil, &booking.PersistenceError{Op: op, Err: err}
	}

	now := time.Now().UTC()
	if err := guard(row, now); err != nil {
		return nil, err
	}
	row.UpdatedAt = now

	if err := apply(ctx, tx, row); err != nil {
		return nil, &booking.PersistenceError{Op: op, Err: err}
	}
	if err := s.appendEventTx(ctx, tx, row, kind, nil, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &booking.PersistenceError{Op: op, Err: err}
	}

	res := fromRow(row)
	if s.cache != nil {
		s.cache.Set(res)
	}
	return res, nil
}

func (s *PostgresStore) appendEventTx(ctx context.Context, tx db.Tx, row *repository.Reservation, kind booking.EventKind, relatedID *uuid.UUID, at time.Time) error {
	entry := &repository.ReservationEvent{
		ReservationID: row.ID,
		Kind:          string(kind),
		RelatedID:     relatedID,
		OccurredAt:    at,
	}
	if err := s.events.CreateTx(ctx, tx, entry); err != nil {
		return &booking.PersistenceError{Op: "append reservation event", Err: err}
	}

	payload := repository.BookingEventPayload{
		ReservationID: row.ID.String(),
		CarID:         row.CarID,
		HolderID:      row.HolderID,
		Kind:          string(kind),
		OccurredAt:    at,
	}
	if relatedID != nil {
		payload.RelatedID = relatedID.String()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return &booking.PersistenceError{Op: "encode booking event", Err: err}
	}

	task := &repository.OutboxTask{
		Payload: raw,
		Topic:   TopicBookingEvents,
	}
	if err := s.outbox.CreateTx(ctx, tx, task); err != nil {
		return &booking.PersistenceError{Op: "enqueue booking event", Err: err}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func toRow(res *booking.Reservation) *repository.Reservation {
	return &repository.Reservation{
		ID:                 res.ID,
		CarID:              res.CarID,
		HolderID:           res.HolderID,
		PlannedDepartureAt: res.Window.DepartureAt,
		PlannedReturnAt:    res.Window.ReturnAt,
		QuotedPrice:        res.QuotedPrice,
		ReplacesID:         res.ReplacesID,
		ReplacedByID:       res.ReplacedByID,
		Cancelled:          res.Cancelled,
		PickedUpAt:         res.PickedUpAt,
		ReturnedAt:         res.ReturnedAt,
		CreatedAt:          res.CreatedAt,
		UpdatedAt:          res.UpdatedAt,
	}
}

func fromRow(row *repository.Reservation) *booking.Reservation {
	return &booking.Reservation{
		ID:       row.ID,
		CarID:    row.CarID,
		HolderID: row.HolderID,
		Window: booking.Window{
			DepartureAt: row.PlannedDepartureAt,
			ReturnAt:    row.PlannedReturnAt,
		},
		QuotedPrice:  row.QuotedPrice,
		ReplacesID:   row.ReplacesID,
		ReplacedByID: row.ReplacedByID,
		Cancelled:    row.Cancelled,
		PickedUpAt:   row.PickedUpAt,
		ReturnedAt:   row.ReturnedAt,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func fromRows(rows []*repository.Reservation) []*booking.Reservation {
	reservations := make([]*booking.Reservation, len(rows))
	for i, row := range rows {
		reservations[i] = fromRow(row)
	}
	return reservations
}
