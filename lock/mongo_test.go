package lock

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eodmarker/models"
)

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate mongo container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s", endpoint)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, client.Ping(ctx, nil))

	return client.Database("eodmarker_test")
}

func TestMongoProvider_Contract(t *testing.T) {
	db := setupMongo(t)

	runProviderContract(t, func(instanceID string) Provider {
		return NewMongoProvider(db, instanceID)
	})
}

func TestMongoProvider_StoresClaimDocument(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()

	provider := NewMongoProvider(db, "node-1")
	handle, err := provider.TryAcquire(ctx, eodLock)
	require.NoError(t, err)

	var record models.LockRecord
	err = db.Collection(MongoCollectionName).FindOne(ctx, bson.M{"_id": eodLock.Name}).Decode(&record)
	require.NoError(t, err)

	assert.Equal(t, handle.Owner, record.LockedBy)
	assert.Equal(t, eodLock.LockAtMostFor, record.LockUntil.Sub(record.LockedAt))

	require.NoError(t, handle.Release(ctx))

	err = db.Collection(MongoCollectionName).FindOne(ctx, bson.M{"_id": eodLock.Name}).Decode(&record)
	require.NoError(t, err)
	assert.Equal(t, eodLock.LockAtLeastFor, record.LockUntil.Sub(record.LockedAt))
}
