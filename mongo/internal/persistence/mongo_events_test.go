package persistence

import (
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/weft/mongo/internal/testutil"
	"github.com/petrijr/weft/pkg/api"
)

type mongoSamplePayload struct {
	Msg string
	N   int
}

type MongoEventStoreTestSuite struct {
	suite.Suite
	client *mongo.Client
	store  *MongoEventStore
	ctx    context.Context
}

func TestMongoEventStoreSuite(t *testing.T) {
	gob.Register(mongoSamplePayload{})
	uri := testutil.EventStoreURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	suite.Run(t, &MongoEventStoreTestSuite{
		client: client,
		store:  NewMongoEventStore(client, "weft_test", "run_events_test"),
		ctx:    context.Background(),
	})
}

func (m *MongoEventStoreTestSuite) SetupTest() {
	m.NoError(m.client.Database("weft_test").Collection("run_events_test").Drop(m.ctx))
	m.NoError(m.store.EnsureIndexes(m.ctx))
}

func (m *MongoEventStoreTestSuite) TestAppendAndList() {
	at := time.Now()
	// Same timestamp: insertion order still wins.
	m.NoError(m.store.AppendEvent(m.ctx, api.RunEvent{RunID: "r1", At: at, Type: api.EventRunStarted, StageIndex: -1}))
	m.NoError(m.store.AppendEvent(m.ctx, api.RunEvent{RunID: "r1", At: at, Type: api.EventStageStarted, Stage: "helpers:emit"}))
	m.NoError(m.store.AppendEvent(m.ctx, api.RunEvent{RunID: "r2", Type: api.EventRunStarted, StageIndex: -1}))
	m.NoError(m.store.AppendEvent(m.ctx, api.RunEvent{
		RunID:      "r1",
		Type:       api.EventRunPaused,
		StageIndex: 2,
		Detail:     "review",
		Payload:    mongoSamplePayload{Msg: "hello", N: 42},
	}))

	events, err := m.store.ListEvents(m.ctx, "r1")
	m.NoError(err)
	m.Len(events, 3)
	m.Equal(api.EventRunStarted, events[0].Type)
	m.Equal(-1, events[0].StageIndex)
	m.Equal("helpers:emit", events[1].Stage)
	m.Equal(mongoSamplePayload{Msg: "hello", N: 42}, events[2].Payload)
}

func (m *MongoEventStoreTestSuite) TestListMissingRun() {
	events, err := m.store.ListEvents(m.ctx, "missing")
	m.NoError(err)
	m.Empty(events)
}
