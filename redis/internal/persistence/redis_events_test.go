package persistence

import (
	"context"
	"encoding/gob"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/weft/pkg/api"
	"github.com/petrijr/weft/redis/internal/testutil"
)

const prefix = "weft:test:"

type redisSamplePayload struct {
	Msg string
	N   int
}

type RedisEventStoreTestSuite struct {
	suite.Suite
	client *redis.Client
	store  *RedisEventStore
	ctx    context.Context
}

func TestRedisEventStoreSuite(t *testing.T) {
	gob.Register(redisSamplePayload{})

	client := redis.NewClient(&redis.Options{Addr: testutil.GetRedisAddress(t)})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping failed: %v", err)
	}

	suite.Run(t, &RedisEventStoreTestSuite{
		client: client,
		store:  NewRedisEventStore(client, prefix),
		ctx:    ctx,
	})
}

func (r *RedisEventStoreTestSuite) SetupTest() {
	// Clean up all keys with this prefix.
	iter := r.client.Scan(r.ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(r.ctx) {
		r.NoError(r.client.Del(r.ctx, iter.Val()).Err())
	}
	r.NoError(iter.Err(), "redis SCAN failed")
}

func (r *RedisEventStoreTestSuite) TestAppendAndList() {
	r.NoError(r.store.AppendEvent(r.ctx, api.RunEvent{RunID: "r1", Type: api.EventRunStarted, StageIndex: -1}))
	r.NoError(r.store.AppendEvent(r.ctx, api.RunEvent{RunID: "r2", Type: api.EventRunStarted, StageIndex: -1}))
	r.NoError(r.store.AppendEvent(r.ctx, api.RunEvent{
		RunID:      "r1",
		Type:       api.EventRunPaused,
		Stage:      "pause:review",
		StageIndex: 3,
		Detail:     "review",
		Payload:    redisSamplePayload{Msg: "hello", N: 42},
	}))

	events, err := r.store.ListEvents(r.ctx, "r1")
	r.NoError(err)
	r.Len(events, 2)
	r.Equal(api.EventRunStarted, events[0].Type)
	r.False(events[0].At.IsZero())
	r.Nil(events[0].Payload)
	r.Equal(3, events[1].StageIndex)
	r.Equal(redisSamplePayload{Msg: "hello", N: 42}, events[1].Payload)

	runs, err := r.store.Runs(r.ctx)
	r.NoError(err)
	r.ElementsMatch([]string{"r1", "r2"}, runs)
}

func (r *RedisEventStoreTestSuite) TestListMissingRun() {
	events, err := r.store.ListEvents(r.ctx, "missing")
	r.NoError(err)
	r.Empty(events)
}
