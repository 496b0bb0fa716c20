package lock

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eodmarker/models"
)

// MongoCollectionName is the collection claims are stored in
const MongoCollectionName = "shedlock"

// MongoProvider claims locks as documents keyed by lock name
type MongoProvider struct {
	collection *mongo.Collection
	instanceID string
	now        func() time.Time
}

// NewMongoProvider creates a provider backed by the shedlock collection
func NewMongoProvider(db *mongo.Database, instanceID string) *MongoProvider {
	return &MongoProvider{
		collection: db.Collection(MongoCollectionName),
		instanceID: instanceID,
		now:        time.Now,
	}
}

// TryAcquire upserts the claim, matching only an expired document.
// A live claim makes the upsert collide on _id, which means the lock is held.
func (p *MongoProvider) TryAcquire(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := p.now().UTC().Truncate(time.Millisecond)
	owner := NewOwnerToken(p.instanceID)

	filter := bson.M{
		"_id":       cfg.Name,
		"lockUntil": bson.M{"$lte": now},
	}
	update := bson.M{
		"$set": bson.M{
			"lockUntil": now.Add(cfg.LockAtMostFor),
			"lockedAt":  now,
			"lockedBy":  owner,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var record models.LockRecord
	err := p.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrLockUnavailable
	}
	if err != nil {
		return nil, stateUnknown("acquire", cfg.Name, err)
	}
	if record.LockedBy != owner {
		return nil, ErrLockUnavailable
	}

	return newHandle(p, cfg, owner, record.LockedAt, record.LockUntil), nil
}

func (p *MongoProvider) release(ctx context.Context, h *Handle) error {
	until := releaseUntil(h, p.now().UTC())

	res, err := p.collection.UpdateOne(ctx,
		bson.M{"_id": h.Config.Name, "lockedBy": h.Owner},
		bson.M{"$set": bson.M{"lockUntil": until}},
	)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", h.Config.Name, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotOwner
	}

	return nil
}
