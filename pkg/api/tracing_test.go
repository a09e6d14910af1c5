package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*TracingObserver, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracingObserver(tp.Tracer("test")), exp
}

func TestTracingObserver_RunAndStageSpans(t *testing.T) {
	o, exp := newRecordingTracer(t)
	ctx := context.Background()
	run := testRun()

	o.OnRunStart(ctx, run)
	o.OnStageStart(ctx, run, "helpers:emit", 0)
	o.OnStageCompleted(ctx, run, "helpers:emit", 0, nil, time.Millisecond)
	o.OnRunCompleted(ctx, run, &RunResult{})

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	stage, root := spans[0], spans[1]
	require.Equal(t, "weft.stage", stage.Name)
	require.Equal(t, "weft.run", root.Name)
	require.Equal(t, root.SpanContext.SpanID(), stage.Parent.SpanID())
	require.Equal(t, codes.Ok, root.Status.Code)
}

func TestTracingObserver_FailureMarksSpans(t *testing.T) {
	o, exp := newRecordingTracer(t)
	ctx := context.Background()
	run := testRun()
	boom := errors.New("boom")

	o.OnRunStart(ctx, run)
	o.OnStageStart(ctx, run, "commit", 2)
	o.OnStageCompleted(ctx, run, "commit", 2, boom, time.Millisecond)
	o.OnRunFailed(ctx, run, boom)

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	for _, s := range spans {
		require.Equal(t, codes.Error, s.Status.Code)
		require.Equal(t, "boom", s.Status.Description)
	}
}

func TestTracingObserver_PauseAddsEvent(t *testing.T) {
	o, exp := newRecordingTracer(t)
	ctx := context.Background()
	run := testRun()

	o.OnRunStart(ctx, run)
	o.OnRunPaused(ctx, run, &Snapshot{StageIndex: 1, Kind: "review"})
	// Unknown runs are ignored.
	o.OnRunCompleted(ctx, RunInfo{RunID: "other"}, nil)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	require.Equal(t, "paused", spans[0].Events[0].Name)
}
