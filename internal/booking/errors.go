package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidWindow      = errors.New("planned departure must be before planned return")
	ErrNotFound           = errors.New("reservation not found")
	ErrCarNotAvailable    = errors.New("car not available for the requested window")
	ErrAlreadyReplaced    = errors.New("reservation already replaced")
	ErrAlreadyCancelled   = errors.New("reservation already cancelled")
	ErrAlreadyFulfilled   = errors.New("reservation already picked up, cannot be replaced")
	ErrAlreadyPickedUp    = errors.New("pickup already recorded")
	ErrAlreadyReturned    = errors.New("return already recorded")
	ErrNotPickedUpYet     = errors.New("return cannot be recorded before pickup")
	ErrReturnBeforePickup = errors.New("return timestamp precedes pickup timestamp")
	ErrLockTimeout        = errors.New("timed out waiting for car booking lock")
)

// ConflictError reports which active reservations block a requested window.
// It unwraps to ErrCarNotAvailable so callers can match with errors.Is.
type ConflictError struct {
	CarID       string
	ConflictIDs []uuid.UUID
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.ConflictIDs))
	for i, id := range e.ConflictIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("car %s not available, conflicts with reservations [%s]", e.CarID, strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrCarNotAvailable
}

// PersistenceError marks storage failures as transient/retryable for the
// caller; the wrapped cause is preserved.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the failed operation as-is.
func Retryable(err error) bool {
	var pe *PersistenceError
	return errors.Is(err, ErrLockTimeout) || errors.As(err, &pe)
}
