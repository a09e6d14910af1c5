package weft_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/weft"
	"github.com/petrijr/weft/pkg/api"
)

func testFileConfig(driver string) *weft.FileConfig {
	return &weft.FileConfig{
		Name:             "svc",
		Resumable:        true,
		DefaultLifecycle: "default",
		Log:              weft.LogConfig{Level: "error", Format: "text"},
		Events:           weft.EventsConfig{Driver: driver, DSN: "file::memory:"},
	}
}

func TestNewFromConfig_RecordsRunEvents(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := testFileConfig(driver)
			cfg.Metrics.Enabled = true
			cfg.Tracing.Enabled = true

			svc, err := weft.NewFromConfig(cfg,
				weft.FuncStage("touch", func(ctx context.Context, rs *weft.RunState) error {
					rs.Artifact = "done"
					return nil
				}),
				weft.PauseStage("review", weft.PauseOptions{
					Payload: func(rs *weft.RunState) any { return "please review" },
				}),
			)
			require.NoError(t, err)
			t.Cleanup(func() { require.NoError(t, svc.Close(context.Background())) })

			ctx := context.Background()
			paused, err := svc.Run(ctx, weft.RunOptions{}).Await(ctx)
			require.NoError(t, err)
			require.NotNil(t, paused.Paused)

			done, err := svc.Resume(ctx, paused.Paused, nil, weft.RunOptions{}).Await(ctx)
			require.NoError(t, err)
			require.Equal(t, "done", done.Result)

			events, err := svc.Events.ListEvents(ctx, paused.RunID)
			require.NoError(t, err)

			types := make([]api.EventType, 0, len(events))
			for _, ev := range events {
				types = append(types, ev.Type)
			}
			require.Equal(t, []api.EventType{
				api.EventRunStarted,
				api.EventStageStarted, api.EventStageCompleted,
				api.EventStageStarted, api.EventStageCompleted,
				api.EventRunPaused,
				api.EventRunResumed,
				api.EventStageStarted, api.EventStageCompleted,
				api.EventRunCompleted,
			}, types)
			require.Equal(t, "please review", events[5].Payload)

			m := svc.Metrics.Snapshot()
			require.EqualValues(t, 2, m.RunsStarted)
			require.EqualValues(t, 1, m.RunsPaused)
			require.EqualValues(t, 1, m.RunsCompleted)
			require.EqualValues(t, 0, m.InFlightRuns)
		})
	}
}

func TestNewFromConfig_NoEvents(t *testing.T) {
	svc, err := weft.NewFromConfig(testFileConfig("none"))
	require.NoError(t, err)
	require.Nil(t, svc.Metrics)

	res, err := svc.Run(context.Background(), weft.RunOptions{}).Get()
	require.NoError(t, err)

	events, err := svc.Events.ListEvents(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Empty(t, events)
	require.NoError(t, svc.Close(context.Background()))
}

func TestNewFromConfigWithEvents_UsesGivenStore(t *testing.T) {
	store := weft.NewMemoryEventStore()
	svc, err := weft.NewFromConfigWithEvents(testFileConfig("kafka-is-ignored-but-invalid"), store)
	require.Error(t, err)
	require.Nil(t, svc)

	svc, err = weft.NewFromConfigWithEvents(testFileConfig("none"), store)
	require.NoError(t, err)
	require.Same(t, store, svc.Events)

	res, err := svc.Run(context.Background(), weft.RunOptions{}).Get()
	require.NoError(t, err)

	events, err := store.ListEvents(context.Background(), res.RunID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, api.EventRunStarted, events[0].Type)
	require.Equal(t, api.EventRunCompleted, events[1].Type)

	_, err = weft.NewFromConfigWithEvents(testFileConfig("none"), nil)
	require.Error(t, err)
}

func TestNewFromConfig_InvalidConfig(t *testing.T) {
	_, err := weft.NewFromConfig(testFileConfig("kafka"))
	require.Error(t, err)
}

func TestIsValidation(t *testing.T) {
	require.True(t, weft.IsValidation(weft.NewError(weft.CodeValidation, "bad")))
	require.False(t, weft.IsValidation(errors.New("plain")))
}
