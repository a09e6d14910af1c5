// Package redis records pipeline run events in Redis.
package redis

import (
	"github.com/redis/go-redis/v9"

	"github.com/petrijr/weft"
	rstore "github.com/petrijr/weft/redis/internal/persistence"
)

// NewEventStore returns an EventStore keeping one list per run under prefix
// (default "weft:").
func NewEventStore(client *redis.Client, prefix string) weft.EventStore {
	return rstore.NewRedisEventStore(client, prefix)
}

// NewFromConfig builds a weft.Service whose run events go to Redis.
func NewFromConfig(cfg *weft.FileConfig, client *redis.Client, stages ...weft.Stage) (*weft.Service, error) {
	return weft.NewFromConfigWithEvents(cfg, NewEventStore(client, ""), stages...)
}
