package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	return client
}

func TestRedisProvider_Contract(t *testing.T) {
	client := setupRedis(t)

	runProviderContract(t, func(instanceID string) Provider {
		return NewRedisProvider(client, instanceID)
	})
}

func TestRedisProvider_ReleaseKeepsMinHoldTTL(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	provider := NewRedisProvider(client, "node-1")
	handle, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	owner, err := client.Get(ctx, redisKeyPrefix+eodLock.Name).Result()
	require.NoError(t, err)
	assert.Equal(t, handle.Owner, owner)

	require.NoError(t, handle.Release(ctx))

	ttl, err := client.PTTL(ctx, redisKeyPrefix+eodLock.Name).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, eodLock.LockAtLeastFor)
}
