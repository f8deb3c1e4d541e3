// Package lock provides mutual exclusion keyed by an arbitrary string,
// used to serialize the check-then-create booking sequence per car.
package lock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Keyed hands out one mutex per key on demand and reclaims it once no caller
// holds or waits on it. Acquisition is bounded: a waiter that cannot get the
// lock within the configured timeout fails instead of queueing forever.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

func NewKeyed(timeout time.Duration) *Keyed {
	return &Keyed{
		entries: make(map[string]*entry),
		timeout: timeout,
	}
}

// Acquire blocks until the key's lock is held, the timeout elapses or ctx is
// done. On success the returned release function must be called exactly once.
func (k *Keyed) Acquire(ctx context.Context, key string) (release func(), err error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		k.put(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.put(key, e)
		})
	}, nil
}

func (k *Keyed) put(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
