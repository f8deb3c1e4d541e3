package booking

import (
	"context"

	"github.com/google/uuid"
)

// Checker answers bookability questions over the store's committed state.
// It holds no state of its own; the caller is responsible for serializing
// check-then-create sequences (see Manager).
type Checker struct {
	store Store
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// FindConflicts returns the active reservations on the car whose planned
// windows overlap the requested one, excluding the given ids. Exclusion is
// how a replacement avoids conflicting with the reservation it supersedes.
func (c *Checker) FindConflicts(ctx context.Context, carID string, window Window, excludeIDs ...uuid.UUID) ([]*Reservation, error) {
	active, err := c.store.ListActiveForCar(ctx, carID)
	if err != nil {
		return nil, err
	}

	var conflicts []*Reservation
	for _, res := range active {
		if excluded(res.ID, excludeIDs) {
			continue
		}
		if res.Window.Overlaps(window) {
			conflicts = append(conflicts, res)
		}
	}
	return conflicts, nil
}

func (c *Checker) IsAvailable(ctx context.Context, carID string, window Window, excludeIDs ...uuid.UUID) (bool, error) {
	conflicts, err := c.FindConflicts(ctx, carID, window, excludeIDs...)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

func excluded(id uuid.UUID, excludeIDs []uuid.UUID) bool {
	for _, ex := range excludeIDs {
		if id == ex {
			return true
		}
	}
	return false
}
