package lock

import (
	"context"
	"sync"
	"time"

	"eodmarker/models"
)

// MemoryProvider keeps claims in process memory. It only excludes callers
// sharing the provider, which suits single-instance runs and tests.
type MemoryProvider struct {
	instanceID string
	now        func() time.Time

	mu      sync.Mutex
	records map[string]models.LockRecord
}

// MemoryOption configures a MemoryProvider
type MemoryOption func(*MemoryProvider)

// WithMemoryClock replaces the provider's time source
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(p *MemoryProvider) {
		p.now = now
	}
}

// NewMemoryProvider creates an in-memory provider
func NewMemoryProvider(instanceID string, opts ...MemoryOption) *MemoryProvider {
	p := &MemoryProvider{
		instanceID: instanceID,
		now:        time.Now,
		records:    make(map[string]models.LockRecord),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TryAcquire claims the lock if it is free or expired
func (p *MemoryProvider) TryAcquire(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stateUnknown("acquire", cfg.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if existing, ok := p.records[cfg.Name]; ok && !existing.IsExpired(now) {
		return nil, ErrLockUnavailable
	}

	record := models.LockRecord{
		Name:      cfg.Name,
		LockUntil: now.Add(cfg.LockAtMostFor),
		LockedAt:  now,
		LockedBy:  NewOwnerToken(p.instanceID),
	}
	p.records[cfg.Name] = record

	return newHandle(p, cfg, record.LockedBy, record.LockedAt, record.LockUntil), nil
}

func (p *MemoryProvider) release(ctx context.Context, h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.records[h.Config.Name]
	if !ok || record.LockedBy != h.Owner {
		return ErrNotOwner
	}

	record.LockUntil = releaseUntil(h, p.now())
	p.records[h.Config.Name] = record
	return nil
}

// Record returns the stored claim for a lock name
func (p *MemoryProvider) Record(name string) (models.LockRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.records[name]
	return record, ok
}
