package persistence

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	corep "github.com/petrijr/weft/internal/persistence"
	"github.com/petrijr/weft/pkg/api"
)

type MongoEventStore struct {
	coll *mongo.Collection
}

// Ensure it implements EventStore.
var _ corep.EventStore = (*MongoEventStore)(nil)

// NewMongoEventStore creates a Mongo-backed event store.
// dbName defaults to "weft" if empty, collName defaults to "run_events".
func NewMongoEventStore(client *mongo.Client, dbName, collName string) *MongoEventStore {
	if dbName == "" {
		dbName = "weft"
	}
	if collName == "" {
		collName = "run_events"
	}
	return &MongoEventStore{coll: client.Database(dbName).Collection(collName)}
}

type mongoEventDoc struct {
	RunID      string `bson:"run_id"`
	At         int64  `bson:"at"`
	Type       string `bson:"type"`
	Pipeline   string `bson:"pipeline,omitempty"`
	Stage      string `bson:"stage,omitempty"`
	StageIndex int    `bson:"stage_index"`
	Detail     string `bson:"detail,omitempty"`
	Payload    []byte `bson:"payload,omitempty"`
}

// EnsureIndexes creates the (run_id, at) index used by ListEvents.
func (s *MongoEventStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "at", Value: 1}},
	})
	return err
}

func (s *MongoEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := corep.EncodeValue(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s event: %w", ev.Type, err)
	}

	_, err = s.coll.InsertOne(ctx, mongoEventDoc{
		RunID:      ev.RunID,
		At:         at.UnixNano(),
		Type:       string(ev.Type),
		Pipeline:   ev.Pipeline,
		Stage:      ev.Stage,
		StageIndex: ev.StageIndex,
		Detail:     ev.Detail,
		Payload:    payload,
	})
	return err
}

func (s *MongoEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	// _id breaks ties between events stamped in the same nanosecond.
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"run_id": runID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.RunEvent
	for cur.Next(ctx) {
		var doc mongoEventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		payload, err := corep.DecodeValue[any](doc.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload of %s event: %w", doc.Type, err)
		}
		out = append(out, api.RunEvent{
			RunID:      doc.RunID,
			At:         time.Unix(0, doc.At),
			Type:       api.EventType(doc.Type),
			Pipeline:   doc.Pipeline,
			Stage:      doc.Stage,
			StageIndex: doc.StageIndex,
			Detail:     doc.Detail,
			Payload:    payload,
		})
	}
	return out, cur.Err()
}
