package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbook/internal/lock"
)

func TestKeyed_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewKeyed(time.Second)

	release, err := locks.Acquire(ctx, "car-1")
	require.NoError(t, err)
	release()

	// Reacquirable after release.
	release, err = locks.Acquire(ctx, "car-1")
	require.NoError(t, err)
	release()

	// Calling release twice is harmless.
	release()
}

func TestKeyed_DifferentKeysIndependent(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewKeyed(100 * time.Millisecond)

	release1, err := locks.Acquire(ctx, "car-1")
	require.NoError(t, err)
	defer release1()

	release2, err := locks.Acquire(ctx, "car-2")
	require.NoError(t, err)
	release2()
}

func TestKeyed_Timeout(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewKeyed(50 * time.Millisecond)

	release, err := locks.Acquire(ctx, "car-1")
	require.NoError(t, err)

	start := time.Now()
	_, err = locks.Acquire(ctx, "car-1")
	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	release()

	// Usable again once the holder lets go.
	release, err = locks.Acquire(ctx, "car-1")
	require.NoError(t, err)
	release()
}

func TestKeyed_ContextCancelled(t *testing.T) {
	locks := lock.NewKeyed(5 * time.Second)

	release, err := locks.Acquire(context.Background(), "car-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = locks.Acquire(ctx, "car-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyed_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewKeyed(5 * time.Second)

	const workers = 20
	var wg sync.WaitGroup
	var counter, max int
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			release, err := locks.Acquire(ctx, "car-1")
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, max)
	assert.Equal(t, 0, counter)
}
