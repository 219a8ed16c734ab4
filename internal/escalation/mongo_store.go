package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2NetShield/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one collection per tier. Expiry is delegated to TTL
// indexes on inserted_at.
type MongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	retention time.Duration
	lease     time.Duration
}

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig, retention, lease time.Duration) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &MongoStore{
		client:    client,
		db:        client.Database(cfg.Database),
		retention: retention,
		lease:     lease,
	}, nil
}

func (s *MongoStore) coll(t Tier) *mongo.Collection {
	return s.db.Collection(string(t))
}

// EnsureIndexes creates the TTL indexes of expiring tiers and the pending
// lookup index on blacklist. It is idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, t := range Tiers() {
		if !t.Expires() || s.retention <= 0 {
			continue
		}
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: "inserted_at", Value: 1}},
			Options: options.Index().SetName("ttl_inserted_at").SetExpireAfterSeconds(int32(s.retention / time.Second)),
		}
		if _, err := s.coll(t).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create TTL index on %s: %w", t, err)
		}
	}
	pending := mongo.IndexModel{
		Keys:    bson.D{{Key: "reviewed", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetName("pending_review"),
	}
	if _, err := s.coll(TierBlacklist).Indexes().CreateOne(ctx, pending); err != nil {
		return fmt.Errorf("failed to create pending index: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, t Tier, ev *Event) error {
	doc := ev.Clone()
	doc.InsertedAt = time.Now().UTC()
	if _, err := s.coll(t).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s in %s", ErrDuplicate, ev.ID, t)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *MongoStore) FetchPending(ctx context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for limit <= 0 || len(out) < limit {
		now := time.Now().UTC()
		filter := bson.M{
			"reviewed": false,
			"$or": bson.A{
				bson.M{"claimed_until": bson.M{"$exists": false}},
				bson.M{"claimed_until": nil},
				bson.M{"claimed_until": bson.M{"$lte": now}},
			},
		}
		update := bson.M{"$set": bson.M{"claimed_until": now.Add(s.lease)}}
		opts := options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "timestamp", Value: 1}}).
			SetReturnDocument(options.After)

		var ev Event
		err := s.coll(TierBlacklist).FindOneAndUpdate(ctx, filter, update, opts).Decode(&ev)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("failed to claim pending event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, nil
}

func (s *MongoStore) Release(ctx context.Context, id string) error {
	res, err := s.coll(TierBlacklist).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{"claimed_until": ""}})
	if err != nil {
		return fmt.Errorf("failed to release event: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, TierBlacklist)
	}
	return nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, t Tier, id string) error {
	res, err := s.coll(t).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, t)
	}
	return nil
}

func (s *MongoStore) Move(ctx context.Context, id string, to Tier, mutate func(*Event)) error {
	if to == TierBlacklist {
		return fmt.Errorf("cannot move an event within %s", TierBlacklist)
	}
	var ev Event
	err := s.coll(TierBlacklist).FindOne(ctx, bson.M{"_id": id}).Decode(&ev)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, TierBlacklist)
	}
	if err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}

	if mutate != nil {
		mutate(&ev)
	}
	ev.ClaimedUntil = nil
	ev.InsertedAt = time.Now().UTC()

	// Upsert keeps a replayed move from failing on the destination.
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll(to).ReplaceOne(ctx, bson.M{"_id": id}, &ev, opts); err != nil {
		return fmt.Errorf("failed to write event to %s: %w", to, err)
	}
	if _, err := s.coll(TierBlacklist).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to remove event from %s: %w", TierBlacklist, err)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, t Tier, limit int) ([]*Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll(t).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t, err)
	}
	defer cur.Close(ctx)

	var out []*Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}
	return out, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
