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

// fakeClock is a settable time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 16, 3, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var eodLock = Config{Name: "eod-job", LockAtLeastFor: time.Minute, LockAtMostFor: 30 * time.Minute}

func TestMemoryProvider_ExclusiveUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
	ctx := context.Background()

	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		denied  int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := provider.TryAcquire(ctx, eodLock)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				granted++
			} else if errors.Is(err, ErrLockUnavailable) {
				denied++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, callers-1, denied)
}

func TestMemoryProvider_MinHold(t *testing.T) {
	clock := newFakeClock()
	provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
	ctx := context.Background()

	handle, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	// Work finished instantly
	require.NoError(t, handle.Release(ctx))

	_, err = provider.TryAcquire(ctx, eodLock)
	assert.ErrorIs(t, err, ErrLockUnavailable)

	clock.Advance(59 * time.Second)
	_, err = provider.TryAcquire(ctx, eodLock)
	assert.ErrorIs(t, err, ErrLockUnavailable)

	clock.Advance(time.Second)
	second, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)
	assert.NotEqual(t, handle.Owner, second.Owner)
}

func TestMemoryProvider_ReleaseAfterMinHoldFreesImmediately(t *testing.T) {
	clock := newFakeClock()
	provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
	ctx := context.Background()

	handle, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	require.NoError(t, handle.Release(ctx))

	_, err = provider.TryAcquire(ctx, eodLock)
	assert.NoError(t, err)
}

func TestMemoryProvider_MaxHoldExpiry(t *testing.T) {
	clock := newFakeClock()
	provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
	ctx := context.Background()

	crashed, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	clock.Advance(30*time.Minute - time.Nanosecond)
	_, err = provider.TryAcquire(ctx, eodLock)
	assert.ErrorIs(t, err, ErrLockUnavailable)

	clock.Advance(time.Nanosecond)
	_, err = provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	// The expired holder cannot release the new claim
	assert.ErrorIs(t, crashed.Release(ctx), ErrNotOwner)
}

func TestMemoryProvider_LocksAreIndependentByName(t *testing.T) {
	provider := NewMemoryProvider("node")
	ctx := context.Background()

	_, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	other := eodLock
	other.Name = "other-job"
	_, err = provider.TryAcquire(ctx, other)
	assert.NoError(t, err)
}

func TestMemoryProvider_CancelledContextIsUnknownState(t *testing.T) {
	provider := NewMemoryProvider("node")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.TryAcquire(ctx, eodLock)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockStateUnknown)
	assert.NotErrorIs(t, err, ErrLockUnavailable)
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	provider := NewMemoryProvider("node", WithMemoryClock(clock.Now))
	ctx := context.Background()

	handle, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	require.NoError(t, handle.Release(ctx))
	clock.Advance(10 * time.Minute)
	require.NoError(t, handle.Release(ctx))

	record, ok := provider.Record(eodLock.Name)
	require.True(t, ok)
	assert.Equal(t, handle.MinHoldUntil(), record.LockUntil)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{name: "default job config", cfg: eodLock},
		{name: "zero min hold", cfg: Config{Name: "x", LockAtMostFor: time.Second}},
		{name: "missing name", cfg: Config{LockAtMostFor: time.Second}, expectError: true},
		{name: "negative min hold", cfg: Config{Name: "x", LockAtLeastFor: -time.Second, LockAtMostFor: time.Second}, expectError: true},
		{name: "max shorter than min", cfg: Config{Name: "x", LockAtLeastFor: time.Minute, LockAtMostFor: time.Second}, expectError: true},
		{name: "zero max hold", cfg: Config{Name: "x"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewOwnerToken(t *testing.T) {
	a := NewOwnerToken("node-1")
	b := NewOwnerToken("node-1")

	assert.Contains(t, a, "node-1:")
	assert.NotEqual(t, a, b)
}
