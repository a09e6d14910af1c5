package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/weft"
	"github.com/petrijr/weft/mongo/internal/testutil"
	"github.com/petrijr/weft/pkg/api"
)

// TestNewFromConfig_RecordsEventsInMongo wires a real MongoDB instance into a
// weft.Service through the public constructor and checks the recorded
// history together with BasicMetrics.
func TestNewFromConfig_RecordsEventsInMongo(t *testing.T) {
	uri := testutil.EventStoreURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err, "mongo.Connect failed")
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	_ = client.Database("weft").Collection("run_events").Drop(ctx)

	cfg := &weft.FileConfig{
		Name:             "mongo-it",
		DefaultLifecycle: "default",
		Log:              weft.LogConfig{Level: "error", Format: "text"},
		Events:           weft.EventsConfig{Driver: "none"},
		Metrics:          weft.MetricsConfig{Enabled: true},
	}
	svc, err := NewFromConfig(cfg, client,
		weft.FuncStage("touch", func(ctx context.Context, rs *weft.RunState) error {
			rs.Artifact = "done"
			return nil
		}),
	)
	require.NoError(t, err)

	res, err := svc.Run(ctx, weft.RunOptions{}).Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "done", res.Result)

	events, err := svc.Events.ListEvents(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, api.EventRunStarted, events[0].Type)
	require.Equal(t, api.EventRunCompleted, events[3].Type)

	snap := svc.Metrics.Snapshot()
	require.EqualValues(t, 1, snap.RunsCompleted)
	require.EqualValues(t, 1, snap.StagesCompleted)
}
