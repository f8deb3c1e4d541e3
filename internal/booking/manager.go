package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbook/internal/lock"
	"carbook/internal/metrics"
)

// CreateRequest carries the caller-supplied fields of a new reservation.
// The quoted price comes from the pricing collaborator; the engine only
// records it.
type CreateRequest struct {
	CarID       string
	HolderID    string
	DepartureAt time.Time
	ReturnAt    time.Time
	QuotedPrice int64
}

// ReplaceRequest supersedes an existing reservation with a new one. The new
// reservation may be for a different car.
type ReplaceRequest struct {
	OldID uuid.UUID
	CreateRequest
}

// Manager is the only mutator exposed to callers. It serializes the
// check-then-create sequence per car so two concurrent requests cannot both
// observe availability and both commit overlapping reservations.
type Manager struct {
	store   Store
	checker *Checker
	locks   *lock.Keyed
	logger  *zap.Logger
}

func NewManager(store Store, checker *Checker, locks *lock.Keyed, logger *zap.Logger) *Manager {
	return &Manager{
		store:   store,
		checker: checker,
		locks:   locks,
		logger:  logger,
	}
}

func (m *Manager) CreateReservation(ctx context.Context, req CreateRequest) (*Reservation, error) {
	window, err := NewWindow(req.DepartureAt, req.ReturnAt)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("create").Inc()
		return nil, err
	}

	release, err := m.lockCar(ctx, req.CarID)
	if err != nil {
		metrics.LockTimeoutsTotal.Inc()
		return nil, err
	}
	defer release()

	conflicts, err := m.checker.FindConflicts(ctx, req.CarID, window)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("create").Inc()
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.BookingConflictsTotal.Inc()
		return nil, conflictError(req.CarID, conflicts)
	}

	res, err := m.store.Create(ctx, &Reservation{
		CarID:       req.CarID,
		HolderID:    req.HolderID,
		Window:      window,
		QuotedPrice: req.QuotedPrice,
	})
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("create").Inc()
		return nil, err
	}

	metrics.ReservationsCreatedTotal.Inc()
	m.logger.Info("reservation created",
		zap.String("reservation_id", res.ID.String()),
		zap.String("car_id", res.CarID),
		zap.Time("departure_at", res.Window.DepartureAt),
		zap.Time("return_at", res.Window.ReturnAt))
	return res, nil
}

func (m *Manager) ReplaceReservation(ctx context.Context, req ReplaceRequest) (*Reservation, error) {
	window, err := NewWindow(req.DepartureAt, req.ReturnAt)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("replace").Inc()
		return nil, err
	}

	old, err := m.store.Get(ctx, req.OldID)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("replace").Inc()
		return nil, err
	}
	switch {
	case old.Replaced():
		return nil, ErrAlreadyReplaced
	case old.Cancelled:
		return nil, ErrAlreadyCancelled
	case old.PickedUp():
		return nil, ErrAlreadyFulfilled
	}

	release, err := m.lockCar(ctx, req.CarID)
	if err != nil {
		metrics.LockTimeoutsTotal.Inc()
		return nil, err
	}
	defer release()

	// The old reservation is being superseded, so it must not count as a
	// self-conflict while it is still technically active.
	conflicts, err := m.checker.FindConflicts(ctx, req.CarID, window, old.ID)
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("replace").Inc()
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.BookingConflictsTotal.Inc()
		return nil, conflictError(req.CarID, conflicts)
	}

	oldID := old.ID
	res, err := m.store.Create(ctx, &Reservation{
		CarID:       req.CarID,
		HolderID:    req.HolderID,
		Window:      window,
		QuotedPrice: req.QuotedPrice,
		ReplacesID:  &oldID,
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyReplaced) {
			metrics.OperationErrorsTotal.WithLabelValues("replace").Inc()
		}
		return nil, err
	}

	metrics.ReservationsReplacedTotal.Inc()
	m.logger.Info("reservation replaced",
		zap.String("reservation_id", res.ID.String()),
		zap.String("replaces_id", oldID.String()),
		zap.String("car_id", res.CarID))
	return res, nil
}

func (m *Manager) CancelReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	res, err := m.store.MarkCancelled(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrAlreadyCancelled) && !errors.Is(err, ErrNotFound) {
			metrics.OperationErrorsTotal.WithLabelValues("cancel").Inc()
		}
		return nil, err
	}
	metrics.ReservationsCancelledTotal.Inc()
	m.logger.Info("reservation cancelled", zap.String("reservation_id", id.String()))
	return res, nil
}

// RecordPickup and RecordReturn are audit events, not availability-affecting:
// the reservation's window was already exclusive. A zero timestamp means now.

func (m *Manager) RecordPickup(ctx context.Context, id uuid.UUID, at time.Time) (*Reservation, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := m.store.MarkPickedUp(ctx, id, at.UTC())
	if err != nil {
		return nil, err
	}
	metrics.PickupsRecordedTotal.Inc()
	m.logger.Info("pickup recorded", zap.String("reservation_id", id.String()), zap.Time("at", at))
	return res, nil
}

func (m *Manager) RecordReturn(ctx context.Context, id uuid.UUID, at time.Time) (*Reservation, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := m.store.MarkReturned(ctx, id, at.UTC())
	if err != nil {
		return nil, err
	}
	metrics.ReturnsRecordedTotal.Inc()
	m.logger.Info("return recorded", zap.String("reservation_id", id.String()), zap.Time("at", at))
	return res, nil
}

func (m *Manager) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) GetHistory(ctx context.Context, id uuid.UUID) ([]*Event, error) {
	if _, err := m.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.store.GetHistory(ctx, id)
}

func (m *Manager) ListActiveForCar(ctx context.Context, carID string) ([]*Reservation, error) {
	return m.store.ListActiveForCar(ctx, carID)
}

func (m *Manager) lockCar(ctx context.Context, carID string) (func(), error) {
	release, err := m.locks.Acquire(ctx, carID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Warn("car lock wait timed out", zap.String("car_id", carID))
		return nil, ErrLockTimeout
	}
	return release, nil
}

func conflictError(carID string, conflicts []*Reservation) error {
	ids := make([]uuid.UUID, len(conflicts))
	for i, c := range conflicts {
		ids[i] = c.ID
	}
	return &ConflictError{CarID: carID, ConflictIDs: ids}
}
