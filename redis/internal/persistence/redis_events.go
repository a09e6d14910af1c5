package persistence

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	corep "github.com/petrijr/weft/internal/persistence"
	"github.com/petrijr/weft/pkg/api"
)

// RedisEventStore is an EventStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>events:<run_id>  => LIST of gob-encoded redisEventPayload
//	<prefix>idx:runs         => SET of run IDs with at least one event
type RedisEventStore struct {
	client *redis.Client
	prefix string
}

var _ corep.EventStore = (*RedisEventStore)(nil)

type redisEventPayload struct {
	RunID      string
	At         int64
	Type       string
	Pipeline   string
	Stage      string
	StageIndex int
	Detail     string
	Payload    []byte
}

// NewRedisEventStore creates a RedisEventStore.
// prefix is optional but recommended (e.g. "weft:").
func NewRedisEventStore(client *redis.Client, prefix string) *RedisEventStore {
	if prefix == "" {
		prefix = "weft:"
	}
	return &RedisEventStore{client: client, prefix: prefix}
}

func (r *RedisEventStore) keyEvents(runID string) string {
	return r.prefix + "events:" + runID
}

func (r *RedisEventStore) keyRuns() string {
	return r.prefix + "idx:runs"
}

func (r *RedisEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	data, err := encodeRedisEvent(ev)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.keyEvents(ev.RunID), data)
	pipe.SAdd(ctx, r.keyRuns(), ev.RunID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	raw, err := r.client.LRange(ctx, r.keyEvents(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]api.RunEvent, 0, len(raw))
	for _, s := range raw {
		ev, err := decodeRedisEvent([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Runs returns the IDs of every run with recorded events.
func (r *RedisEventStore) Runs(ctx context.Context) ([]string, error) {
	return r.client.SMembers(ctx, r.keyRuns()).Result()
}

func encodeRedisEvent(ev api.RunEvent) ([]byte, error) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := corep.EncodeValue(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload of %s event: %w", ev.Type, err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(redisEventPayload{
		RunID:      ev.RunID,
		At:         at.UnixNano(),
		Type:       string(ev.Type),
		Pipeline:   ev.Pipeline,
		Stage:      ev.Stage,
		StageIndex: ev.StageIndex,
		Detail:     ev.Detail,
		Payload:    payload,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRedisEvent(data []byte) (api.RunEvent, error) {
	var p redisEventPayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return api.RunEvent{}, err
	}
	payload, err := corep.DecodeValue[any](p.Payload)
	if err != nil {
		return api.RunEvent{}, fmt.Errorf("decode payload of %s event: %w", p.Type, err)
	}
	return api.RunEvent{
		RunID:      p.RunID,
		At:         time.Unix(0, p.At),
		Type:       api.EventType(p.Type),
		Pipeline:   p.Pipeline,
		Stage:      p.Stage,
		StageIndex: p.StageIndex,
		Detail:     p.Detail,
		Payload:    payload,
	}, nil
}
