package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockUnavailable means another owner holds a non-expired claim.
	// It is expected flow control, not a failure.
	ErrLockUnavailable = errors.New("lock held by another owner")

	// ErrLockStateUnknown means the lock medium could not be read or written,
	// so the caller cannot tell whether it holds the lock and must not proceed
	ErrLockStateUnknown = errors.New("lock state unknown")

	// ErrNotOwner is returned on release when the claim was lost, typically
	// because it expired and was taken by another owner
	ErrNotOwner = errors.New("lock no longer owned")
)

// Config describes a lock claim
type Config struct {
	Name           string
	LockAtLeastFor time.Duration // the claim is held at least this long, even after release
	LockAtMostFor  time.Duration // the claim expires after this long, even without release
}

// Validate checks the hold durations
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("lock name is required")
	}
	if c.LockAtLeastFor < 0 {
		return fmt.Errorf("lockAtLeastFor cannot be negative")
	}
	if c.LockAtMostFor <= 0 || c.LockAtMostFor < c.LockAtLeastFor {
		return fmt.Errorf("lockAtMostFor must be positive and not shorter than lockAtLeastFor")
	}
	return nil
}

// Provider claims named locks on a shared medium.
// TryAcquire never waits for a holder: it returns ErrLockUnavailable when
// the lock is held and an error wrapping ErrLockStateUnknown when the
// medium fails.
type Provider interface {
	TryAcquire(ctx context.Context, cfg Config) (*Handle, error)
}

// releaser shortens a claim to max(lockedAt+minHold, now) if still owned
type releaser interface {
	release(ctx context.Context, h *Handle) error
}

// Handle is an acquired claim
type Handle struct {
	Config    Config
	Owner     string
	LockedAt  time.Time
	LockUntil time.Time

	releaser releaser
	once     sync.Once
	err      error
}

func newHandle(r releaser, cfg Config, owner string, lockedAt, lockUntil time.Time) *Handle {
	return &Handle{
		Config:    cfg,
		Owner:     owner,
		LockedAt:  lockedAt,
		LockUntil: lockUntil,
		releaser:  r,
	}
}

// Release ends the claim once the minimum hold has elapsed. Calling it
// before then keeps the claim until lockedAt+LockAtLeastFor. Repeated
// calls return the first result.
func (h *Handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.err = h.releaser.release(ctx, h)
	})
	return h.err
}

// MinHoldUntil is the earliest instant the claim can end
func (h *Handle) MinHoldUntil() time.Time {
	return h.LockedAt.Add(h.Config.LockAtLeastFor)
}

// NewOwnerToken builds a unique owner token for an instance
func NewOwnerToken(instanceID string) string {
	return instanceID + ":" + uuid.NewString()
}

// releaseUntil returns the expiry a release sets at the given instant
func releaseUntil(h *Handle, now time.Time) time.Time {
	minHold := h.MinHoldUntil()
	if minHold.After(now) {
		return minHold
	}
	return now
}

func stateUnknown(op, name string, err error) error {
	return fmt.Errorf("%w: failed to %s lock %s: %w", ErrLockStateUnknown, op, name, err)
}
