package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/weft/pkg/api"
)

func newTestSQLiteEventStore(t *testing.T) *SQLiteEventStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteEventStore(db)
	require.NoError(t, err)
	return store
}

func testEventStore(t *testing.T, store EventStore) {
	ctx := context.Background()

	require.NoError(t, store.AppendEvent(ctx, api.RunEvent{RunID: "r1", Type: api.EventRunStarted, Pipeline: "p", StageIndex: -1}))
	require.NoError(t, store.AppendEvent(ctx, api.RunEvent{RunID: "r2", Type: api.EventRunStarted, Pipeline: "p", StageIndex: -1}))
	require.NoError(t, store.AppendEvent(ctx, api.RunEvent{
		RunID:      "r1",
		Type:       api.EventRunPaused,
		Pipeline:   "p",
		Stage:      "pause:approval",
		StageIndex: 2,
		Detail:     "approval",
		Payload:    samplePayload{Msg: "ok?", N: 1},
	}))

	events, err := store.ListEvents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, api.EventRunStarted, events[0].Type)
	require.Equal(t, -1, events[0].StageIndex)
	require.False(t, events[0].At.IsZero())
	require.Nil(t, events[0].Payload)

	paused := events[1]
	require.Equal(t, api.EventRunPaused, paused.Type)
	require.Equal(t, "pause:approval", paused.Stage)
	require.Equal(t, 2, paused.StageIndex)
	require.Equal(t, samplePayload{Msg: "ok?", N: 1}, paused.Payload)

	none, err := store.ListEvents(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMemoryEventStore(t *testing.T) {
	testEventStore(t, NewMemoryEventStore())
}

func TestSQLiteEventStore(t *testing.T) {
	testEventStore(t, newTestSQLiteEventStore(t))
}

func TestNoopEventStore(t *testing.T) {
	var s NoopEventStore
	require.NoError(t, s.AppendEvent(context.Background(), api.RunEvent{RunID: "x"}))
	events, err := s.ListEvents(context.Background(), "x")
	require.NoError(t, err)
	require.Empty(t, events)
}
