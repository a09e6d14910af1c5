package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingObserver emits one OpenTelemetry span per run and one child span
// per stage.
type TracingObserver struct {
	NoopObserver

	tracer trace.Tracer

	mu     sync.Mutex
	runs   map[string]trace.Span
	stages map[string]trace.Span
}

// NewTracingObserver creates a TracingObserver. If tracer is nil, the global
// tracer provider is used.
func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	if tracer == nil {
		tracer = otel.Tracer("github.com/petrijr/weft")
	}
	return &TracingObserver{
		tracer: tracer,
		runs:   make(map[string]trace.Span),
		stages: make(map[string]trace.Span),
	}
}

func stageSpanKey(runID string, idx int) string {
	return fmt.Sprintf("%s/%d", runID, idx)
}

func (o *TracingObserver) OnRunStart(ctx context.Context, run RunInfo) {
	_, span := o.tracer.Start(ctx, "weft.run",
		trace.WithAttributes(
			attribute.String("weft.pipeline", run.Pipeline),
			attribute.String("weft.run_id", run.RunID),
			attribute.Bool("weft.resumed", run.Resumed),
		),
	)
	o.mu.Lock()
	o.runs[run.RunID] = span
	o.mu.Unlock()
}

func (o *TracingObserver) endRun(run RunInfo, fn func(span trace.Span)) {
	o.mu.Lock()
	span, ok := o.runs[run.RunID]
	delete(o.runs, run.RunID)
	o.mu.Unlock()
	if !ok {
		return
	}
	fn(span)
	span.End()
}

func (o *TracingObserver) OnRunCompleted(ctx context.Context, run RunInfo, res *RunResult) {
	o.endRun(run, func(span trace.Span) {
		span.SetAttributes(attribute.Bool("weft.halted", res != nil && res.Halted))
		span.SetStatus(codes.Ok, "")
	})
}

func (o *TracingObserver) OnRunFailed(ctx context.Context, run RunInfo, err error) {
	o.endRun(run, func(span trace.Span) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	})
}

func (o *TracingObserver) OnRunPaused(ctx context.Context, run RunInfo, snap *Snapshot) {
	o.endRun(run, func(span trace.Span) {
		span.AddEvent("paused", trace.WithAttributes(
			attribute.Int("weft.stage_index", snap.StageIndex),
			attribute.String("weft.pause_kind", snap.Kind),
		))
	})
}

func (o *TracingObserver) OnStageStart(ctx context.Context, run RunInfo, stage string, idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	parent := ctx
	if span, ok := o.runs[run.RunID]; ok {
		parent = trace.ContextWithSpan(ctx, span)
	}
	_, span := o.tracer.Start(parent, "weft.stage",
		trace.WithAttributes(
			attribute.String("weft.stage", stage),
			attribute.Int("weft.stage_index", idx),
		),
	)
	o.stages[stageSpanKey(run.RunID, idx)] = span
}

func (o *TracingObserver) OnStageCompleted(ctx context.Context, run RunInfo, stage string, idx int, err error, d time.Duration) {
	key := stageSpanKey(run.RunID, idx)
	o.mu.Lock()
	span, ok := o.stages[key]
	delete(o.stages, key)
	o.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
