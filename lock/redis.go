package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "shedlock:"

// releaseScript shortens the claim to lockedAt+minHold when that is still
// ahead, otherwise deletes it. Ownership is checked against the key value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local minHoldUntil = tonumber(ARGV[2])
if minHoldUntil > now then
	redis.call("PEXPIREAT", KEYS[1], minHoldUntil)
else
	redis.call("DEL", KEYS[1])
end
return 1
`)

// RedisProvider claims locks as keys holding the owner token, expiring
// after the maximum hold
type RedisProvider struct {
	client     redis.UniversalClient
	instanceID string
	now        func() time.Time
}

// NewRedisProvider creates a provider backed by Redis
func NewRedisProvider(client redis.UniversalClient, instanceID string) *RedisProvider {
	return &RedisProvider{client: client, instanceID: instanceID, now: time.Now}
}

// TryAcquire claims the lock with SET NX PX
func (p *RedisProvider) TryAcquire(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	owner := NewOwnerToken(p.instanceID)
	lockedAt := p.now()

	ok, err := p.client.SetNX(ctx, redisKeyPrefix+cfg.Name, owner, cfg.LockAtMostFor).Result()
	if err != nil {
		return nil, stateUnknown("acquire", cfg.Name, err)
	}
	if !ok {
		return nil, ErrLockUnavailable
	}

	return newHandle(p, cfg, owner, lockedAt, lockedAt.Add(cfg.LockAtMostFor)), nil
}

func (p *RedisProvider) release(ctx context.Context, h *Handle) error {
	released, err := releaseScript.Run(ctx, p.client,
		[]string{redisKeyPrefix + h.Config.Name},
		h.Owner,
		h.MinHoldUntil().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", h.Config.Name, err)
	}
	if released == 0 {
		return ErrNotOwner
	}

	return nil
}
