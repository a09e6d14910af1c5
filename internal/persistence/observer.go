package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/petrijr/weft/pkg/api"
)

// EventObserver records run and stage lifecycle events in an EventStore.
// Append failures are logged and otherwise ignored.
type EventObserver struct {
	store  EventStore
	logger *slog.Logger
}

// Ensure EventObserver implements api.Observer.
var _ api.Observer = (*EventObserver)(nil)

// NewEventObserver creates an observer appending to store.
func NewEventObserver(store EventStore, logger *slog.Logger) *EventObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventObserver{store: store, logger: logger}
}

func (o *EventObserver) append(ctx context.Context, ev api.RunEvent) {
	ev.At = time.Now()
	if err := o.store.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("failed to record run event",
			"run_id", ev.RunID, "type", string(ev.Type), "error", err)
	}
}

func runEvent(run api.RunInfo, typ api.EventType) api.RunEvent {
	return api.RunEvent{RunID: run.RunID, Type: typ, Pipeline: run.Pipeline, StageIndex: -1}
}

func (o *EventObserver) OnRunStart(ctx context.Context, run api.RunInfo) {
	typ := api.EventRunStarted
	if run.Resumed {
		typ = api.EventRunResumed
	}
	o.append(ctx, runEvent(run, typ))
}

func (o *EventObserver) OnRunCompleted(ctx context.Context, run api.RunInfo, res *api.RunResult) {
	ev := runEvent(run, api.EventRunCompleted)
	if res != nil && res.Halted {
		ev.Detail = "halted"
	}
	o.append(ctx, ev)
}

func (o *EventObserver) OnRunFailed(ctx context.Context, run api.RunInfo, err error) {
	ev := runEvent(run, api.EventRunFailed)
	if err != nil {
		ev.Detail = err.Error()
	}
	o.append(ctx, ev)
}

func (o *EventObserver) OnRunPaused(ctx context.Context, run api.RunInfo, snap *api.Snapshot) {
	ev := runEvent(run, api.EventRunPaused)
	if snap != nil {
		ev.StageIndex = snap.StageIndex
		ev.Detail = snap.Kind
		ev.Payload = snap.Payload
	}
	o.append(ctx, ev)
}

func (o *EventObserver) OnStageStart(ctx context.Context, run api.RunInfo, stage string, idx int) {
	ev := runEvent(run, api.EventStageStarted)
	ev.Stage, ev.StageIndex = stage, idx
	o.append(ctx, ev)
}

func (o *EventObserver) OnStageCompleted(ctx context.Context, run api.RunInfo, stage string, idx int, err error, d time.Duration) {
	ev := runEvent(run, api.EventStageCompleted)
	ev.Stage, ev.StageIndex = stage, idx
	ev.Detail = d.String()
	if err != nil {
		ev.Type = api.EventStageFailed
		ev.Detail = err.Error()
	}
	o.append(ctx, ev)
}
