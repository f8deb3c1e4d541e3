package storage

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"carbook/internal/booking"
)

type fileData struct {
	Reservations []*booking.Reservation `json:"reservations"`
	Events       []*booking.Event       `json:"events"`
}

// FileStore is a single-process booking.Store persisted as one JSON file.
// The mutex covers every operation end to end, which makes each transition
// atomic without row locking; it backs tests and deployments without Postgres.
type FileStore struct {
	filePath string
	mu       sync.Mutex
	data     *fileData
}

var _ booking.Store = (*FileStore)(nil)

// NewFileStore loads the store from filePath, creating it on first save.
// An empty path keeps the store purely in memory.
func NewFileStore(filePath string) (*FileStore, error) {
	fs := &FileStore{
		filePath: filePath,
		data:     &fileData{},
	}
	return fs, fs.load()
}

func (fs *FileStore) load() error {
	if fs.filePath == "" {
		return nil
	}

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(fs.data)
}

func (fs *FileStore) save() error {
	if fs.filePath == "" {
		return nil
	}

	file, err := os.Create(fs.filePath)
	if err != nil {
		return &booking.PersistenceError{Op: "save file store", Err: err}
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(fs.data); err != nil {
		return &booking.PersistenceError{Op: "save file store", Err: err}
	}
	return nil
}

func (fs *FileStore) Create(_ context.Context, res *booking.Reservation) (*booking.Reservation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now().UTC()
	created := *res
	created.ID = uuid.New()
	created.CreatedAt = now
	created.UpdatedAt = now

	var old *booking.Reservation
	if created.ReplacesID != nil {
		old = fs.find(*created.ReplacesID)
		if old == nil {
			return nil, booking.ErrNotFound
		}
		if old.ReplacedByID != nil {
			return nil, booking.ErrAlreadyReplaced
		}
	}

	reservationsBefore := len(fs.data.Reservations)
	eventsBefore := len(fs.data.Events)

	fs.data.Reservations = append(fs.data.Reservations, &created)
	fs.appendEvent(created.ID, booking.EventCreated, created.ReplacesID, now)
	if old != nil {
		newID := created.ID
		old.ReplacedByID = &newID
		fs.appendEvent(old.ID, booking.EventSuperseded, &newID, now)
	}

	if err := fs.save(); err != nil {
		fs.data.Reservations = fs.data.Reservations[:reservationsBefore]
		fs.data.Events = fs.data.Events[:eventsBefore]
		if old != nil {
			old.ReplacedByID = nil
		}
		return nil, err
	}

	result := created
	return &result, nil
}

func (fs *FileStore) Get(_ context.Context, id uuid.UUID) (*booking.Reservation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(id)
	if res == nil {
		return nil, booking.ErrNotFound
	}
	resCopy := *res
	return &resCopy, nil
}

func (fs *FileStore) ListActiveForCar(_ context.Context, carID string) ([]*booking.Reservation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var active []*booking.Reservation
	for _, res := range fs.data.Reservations {
		if res.CarID == carID && res.Active() {
			resCopy := *res
			active = append(active, &resCopy)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Window.DepartureAt.Before(active[j].Window.DepartureAt)
	})
	return active, nil
}

func (fs *FileStore) MarkCancelled(ctx context.Context, id uuid.UUID) (*booking.Reservation, error) {
	return fs.transition(id, booking.EventCancelled, func(res *booking.Reservation) error {
		if res.Cancelled {
			return booking.ErrAlreadyCancelled
		}
		res.Cancelled = true
		return nil
	})
}

func (fs *FileStore) MarkPickedUp(ctx context.Context, id uuid.UUID, at time.Time) (*booking.Reservation, error) {
	at = at.UTC()
	return fs.transition(id, booking.EventPickedUp, func(res *booking.Reservation) error {
		if res.PickedUpAt != nil {
			return booking.ErrAlreadyPickedUp
		}
		res.PickedUpAt = &at
		return nil
	})
}

func (fs *FileStore) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) (*booking.Reservation, error) {
	at = at.UTC()
	return fs.transition(id, booking.EventReturned, func(res *booking.Reservation) error {
		switch {
		case res.PickedUpAt == nil:
			return booking.ErrNotPickedUpYet
		case res.ReturnedAt != nil:
			return booking.ErrAlreadyReturned
		case at.Before(*res.PickedUpAt):
			return booking.ErrReturnBeforePickup
		}
		res.ReturnedAt = &at
		return nil
	})
}

func (fs *FileStore) GetHistory(_ context.Context, id uuid.UUID) ([]*booking.Event, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var history []*booking.Event
	for _, e := range fs.data.Events {
		if e.ReservationID == id {
			eventCopy := *e
			history = append(history, &eventCopy)
		}
	}
	return history, nil
}

func (fs *FileStore) transition(id uuid.UUID, kind booking.EventKind, guard func(res *booking.Reservation) error) (*booking.Reservation, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	res := fs.find(id)
	if res == nil {
		return nil, booking.ErrNotFound
	}

	before := *res
	eventsBefore := len(fs.data.Events)

	if err := guard(res); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res.UpdatedAt = now
	fs.appendEvent(id, kind, nil, now)

	if err := fs.save(); err != nil {
		*res = before
		fs.data.Events = fs.data.Events[:eventsBefore]
		return nil, err
	}

	resCopy := *res
	return &resCopy, nil
}

func (fs *FileStore) find(id uuid.UUID) *booking.Reservation {
	for _, res := range fs.data.Reservations {
		if res.ID == id {
			return res
		}
	}
	return nil
}

func (fs *FileStore) appendEvent(id uuid.UUID, kind booking.EventKind, relatedID *uuid.UUID, at time.Time) {
	fs.data.Events = append(fs.data.Events, &booking.Event{
		ReservationID: id,
		Kind:          kind,
		RelatedID:     relatedID,
		OccurredAt:    at,
	})
}
