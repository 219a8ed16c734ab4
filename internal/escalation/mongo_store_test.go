package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockStore(mt *mtest.T, retention, lease time.Duration) *MongoStore {
	return &MongoStore{client: mt.Client, db: mt.DB, retention: retention, lease: lease}
}

func eventDoc(id, ip string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "ip_origin", Value: ip},
		{Key: "feature_vector", Value: bson.A{"1", "2"}},
		{Key: "timestamp", Value: t0},
		{Key: "reviewed", Value: false},
		{Key: "classification", Value: "attack"},
		{Key: "inserted_at", Value: t0},
	}
}

func TestMongoStore_FetchPendingClaimsWithLease(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("claims until empty", func(mt *mtest.T) {
		s := newMockStore(mt, time.Hour, 2*time.Minute)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: eventDoc("ev-1", "10.0.0.7")}),
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
		)

		before := time.Now().UTC()
		events, err := s.FetchPending(context.Background(), 5)
		require.NoError(mt, err)
		require.Len(mt, events, 1)
		assert.Equal(mt, "ev-1", events[0].ID)
		assert.Equal(mt, "10.0.0.7", events[0].IPOrigin)

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 2)
		cmd := started[0].Command
		assert.Equal(mt, "findAndModify", started[0].CommandName)
		assert.Equal(mt, string(TierBlacklist), cmd.Lookup("findAndModify").StringValue())

		query := cmd.Lookup("query").Document()
		assert.False(mt, query.Lookup("reviewed").Boolean())
		clauses, err := query.Lookup("$or").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, clauses, 3)
		assert.False(mt, clauses[0].Document().Lookup("claimed_until", "$exists").Boolean())
		assert.Equal(mt, bson.TypeNull, clauses[1].Document().Lookup("claimed_until").Type)
		expired := clauses[2].Document().Lookup("claimed_until", "$lte").Time()
		assert.False(mt, expired.Before(before.Truncate(time.Millisecond)))

		claimed := cmd.Lookup("update", "$set", "claimed_until").Time()
		assert.Equal(mt, 2*time.Minute, claimed.Sub(expired))

		assert.EqualValues(mt, 1, cmd.Lookup("sort", "timestamp").AsInt64())
		assert.True(mt, cmd.Lookup("new").Boolean())
	})
}

func TestMongoStore_ReleaseUnsetsClaim(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("matched", func(mt *mtest.T) {
		s := newMockStore(mt, time.Hour, time.Minute)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		require.NoError(mt, s.Release(context.Background(), "ev-1"))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		assert.Equal(mt, string(TierBlacklist), evt.Command.Lookup("update").StringValue())
		stmt := evt.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.Equal(mt, "ev-1", stmt.Lookup("q", "_id").StringValue())
		unset := stmt.Lookup("u", "$unset").Document()
		_, err := unset.LookupErr("claimed_until")
		assert.NoError(mt, err)
		_, err = stmt.LookupErr("u", "$set")
		assert.Error(mt, err)
	})

	mt.Run("missing", func(mt *mtest.T) {
		s := newMockStore(mt, time.Hour, time.Minute)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		assert.ErrorIs(mt, s.Release(context.Background(), "ghost"), ErrNotFound)
	})
}

func TestMongoStore_MoveUpsertsBeforeDelete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("confirm", func(mt *mtest.T) {
		s := newMockStore(mt, time.Hour, time.Minute)
		ns := mt.DB.Name() + "." + string(TierBlacklist)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, eventDoc("ev-1", "10.0.0.7")),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		err := s.Move(context.Background(), "ev-1", TierFinalBlacklist, func(e *Event) {
			e.Reviewed = true
			e.Action = "blocked"
		})
		require.NoError(mt, err)

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 3)
		names := []string{started[0].CommandName, started[1].CommandName, started[2].CommandName}
		assert.Equal(mt, []string{"find", "update", "delete"}, names)

		replace := started[1].Command
		assert.Equal(mt, string(TierFinalBlacklist), replace.Lookup("update").StringValue())
		stmt := replace.Lookup("updates").Array().Index(0).Value().Document()
		assert.True(mt, stmt.Lookup("upsert").Boolean())
		assert.Equal(mt, "ev-1", stmt.Lookup("q", "_id").StringValue())
		assert.Equal(mt, "blocked", stmt.Lookup("u", "action").StringValue())
		assert.True(mt, stmt.Lookup("u", "reviewed").Boolean())
		_, err = stmt.LookupErr("u", "claimed_until")
		assert.Error(mt, err)

		del := started[2].Command
		assert.Equal(mt, string(TierBlacklist), del.Lookup("delete").StringValue())
		assert.Equal(mt, "ev-1", del.Lookup("deletes").Array().Index(0).Value().Document().Lookup("q", "_id").StringValue())
	})

	mt.Run("missing source", func(mt *mtest.T) {
		s := newMockStore(mt, time.Hour, time.Minute)
		ns := mt.DB.Name() + "." + string(TierBlacklist)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		err := s.Move(context.Background(), "ghost", TierWhitelist, nil)
		assert.ErrorIs(mt, err, ErrNotFound)
		assert.Len(mt, mt.GetAllStartedEvents(), 1)
	})
}

func TestMongoStore_EnsureIndexesTTL(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("retention", func(mt *mtest.T) {
		s := newMockStore(mt, 24*time.Hour, time.Minute)
		for i := 0; i < 4; i++ {
			mt.AddMockResponses(mtest.CreateSuccessResponse())
		}

		require.NoError(mt, s.EnsureIndexes(context.Background()))

		started := mt.GetAllStartedEvents()
		require.Len(mt, started, 4)
		var ttl []string
		for _, evt := range started[:3] {
			require.Equal(mt, "createIndexes", evt.CommandName)
			idx := evt.Command.Lookup("indexes").Array().Index(0).Value().Document()
			assert.Equal(mt, "ttl_inserted_at", idx.Lookup("name").StringValue())
			assert.EqualValues(mt, 86400, idx.Lookup("expireAfterSeconds").AsInt64())
			ttl = append(ttl, evt.Command.Lookup("createIndexes").StringValue())
		}
		assert.Equal(mt, []string{"log", "whitelist", "blacklist"}, ttl)

		pending := started[3].Command
		assert.Equal(mt, string(TierBlacklist), pending.Lookup("createIndexes").StringValue())
		idx := pending.Lookup("indexes").Array().Index(0).Value().Document()
		assert.Equal(mt, "pending_review", idx.Lookup("name").StringValue())
		_, err := idx.LookupErr("expireAfterSeconds")
		assert.Error(mt, err)
	})

	mt.Run("no retention", func(mt *mtest.T) {
		s := newMockStore(mt, 0, time.Minute)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, s.EnsureIndexes(context.Background()))
		assert.Len(mt, mt.GetAllStartedEvents(), 1)
	})
}

func TestMongoStore_InsertDuplicate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key", func(mt *mtest.T) {
		s := newMockStore(mt, time.Hour, time.Minute)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		ev := NewEvent("10.0.0.7", []string{"1"}, "attack", t0)
		assert.ErrorIs(mt, s.Insert(context.Background(), TierBlacklist, ev), ErrDuplicate)
	})
}
