package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbook/internal/booking"
	"carbook/internal/metrics"
)

type ActiveLister interface {
	GetAllActive(ctx context.Context) ([]*booking.Reservation, error)
}

// ReservationCache keeps the active reservations in memory for fast point
// reads. It is a read-side convenience only; availability scans always go to
// the store.
type ReservationCache struct {
	mu     sync.RWMutex
	cache  map[uuid.UUID]*booking.Reservation
	lister ActiveLister
	logger *zap.Logger
}

func NewReservationCache(lister ActiveLister, logger *zap.Logger) *ReservationCache {
	return &ReservationCache{
		cache:  make(map[uuid.UUID]*booking.Reservation),
		lister: lister,
		logger: logger,
	}
}

func (c *ReservationCache) LoadInitialData(ctx context.Context) error {
	reservations, err := c.lister.GetAllActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, res := range reservations {
		resCopy := *res
		c.cache[res.ID] = &resCopy
	}
	metrics.ActiveReservationCacheItems.Set(float64(len(c.cache)))
	c.logger.Info("reservation cache warmed", zap.Int("items", len(c.cache)))
	return nil
}

func (c *ReservationCache) Get(id uuid.UUID) (*booking.Reservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, found := c.cache[id]
	if !found {
		return nil, false
	}
	resCopy := *res
	return &resCopy, true
}

// Set stores active reservations and evicts deactivated ones, so callers can
// feed it every committed record unconditionally.
func (c *ReservationCache) Set(res *booking.Reservation) {
	if !res.Active() {
		c.Delete(res.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	resCopy := *res
	c.cache[res.ID] = &resCopy
	metrics.ActiveReservationCacheItems.Set(float64(len(c.cache)))
}

func (c *ReservationCache) Delete(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.cache[id]; found {
		delete(c.cache, id)
		metrics.ActiveReservationCacheItems.Set(float64(len(c.cache)))
	}
}
