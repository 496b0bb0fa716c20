package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runProviderContract checks the behaviour every backend must share.
// Durations are real, so they are kept short.
func runProviderContract(t *testing.T, newProvider func(instanceID string) Provider) {
	ctx := context.Background()
	short := func(name string) Config {
		return Config{Name: name, LockAtLeastFor: 500 * time.Millisecond, LockAtMostFor: 2 * time.Second}
	}

	t.Run("one winner among concurrent instances", func(t *testing.T) {
		cfg := short("contract-concurrent")
		const instances = 10

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			handles []*Handle
			other   []error
		)
		start := make(chan struct{})
		for i := 0; i < instances; i++ {
			provider := newProvider("node")
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				h, err := provider.TryAcquire(ctx, cfg)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					handles = append(handles, h)
				case !errors.Is(err, ErrLockUnavailable):
					other = append(other, err)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Empty(t, other)
		assert.Len(t, handles, 1)
	})

	t.Run("min hold survives early release", func(t *testing.T) {
		cfg := short("contract-min-hold")
		first, err := newProvider("a").TryAcquire(ctx, cfg)
		require.NoError(t, err)
		require.NoError(t, first.Release(ctx))

		_, err = newProvider("b").TryAcquire(ctx, cfg)
		assert.ErrorIs(t, err, ErrLockUnavailable)

		require.Eventually(t, func() bool {
			_, err := newProvider("b").TryAcquire(ctx, cfg)
			return err == nil
		}, 3*time.Second, 100*time.Millisecond)
	})

	t.Run("unreleased claim expires at max hold", func(t *testing.T) {
		cfg := short("contract-max-hold")
		crashed, err := newProvider("a").TryAcquire(ctx, cfg)
		require.NoError(t, err)

		time.Sleep(cfg.LockAtLeastFor + 100*time.Millisecond)
		_, err = newProvider("b").TryAcquire(ctx, cfg)
		assert.ErrorIs(t, err, ErrLockUnavailable)

		require.Eventually(t, func() bool {
			_, err := newProvider("b").TryAcquire(ctx, cfg)
			return err == nil
		}, 4*time.Second, 100*time.Millisecond)

		assert.ErrorIs(t, crashed.Release(ctx), ErrNotOwner)
	})

	t.Run("release after min hold frees the lock", func(t *testing.T) {
		cfg := short("contract-release")
		h, err := newProvider("a").TryAcquire(ctx, cfg)
		require.NoError(t, err)

		time.Sleep(cfg.LockAtLeastFor + 100*time.Millisecond)
		require.NoError(t, h.Release(ctx))

		_, err = newProvider("b").TryAcquire(ctx, cfg)
		assert.NoError(t, err)
	})

	t.Run("unreachable medium is not reported as held", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := newProvider("a").TryAcquire(cancelled, short("contract-unknown"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLockStateUnknown)
		assert.NotErrorIs(t, err, ErrLockUnavailable)
	})
}

func TestMemoryProvider_Contract(t *testing.T) {
	shared := NewMemoryProvider("node")
	runProviderContract(t, func(string) Provider { return shared })
}
