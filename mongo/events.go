// Package mongo records pipeline run events in MongoDB.
package mongo

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/weft"
	mstore "github.com/petrijr/weft/mongo/internal/persistence"
)

// NewEventStore returns an EventStore using the "weft"/"run_events"
// collection of client.
func NewEventStore(client *mongo.Client) weft.EventStore {
	return mstore.NewMongoEventStore(client, "", "")
}

// NewFromConfig builds a weft.Service whose run events go to MongoDB.
func NewFromConfig(cfg *weft.FileConfig, client *mongo.Client, stages ...weft.Stage) (*weft.Service, error) {
	return weft.NewFromConfigWithEvents(cfg, NewEventStore(client), stages...)
}
