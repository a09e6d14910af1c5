package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunInfo identifies a run in observer callbacks.
type RunInfo struct {
	RunID    string
	Pipeline string
	// Resumed is set for runs started through Resume.
	Resumed bool
}

// Observer receives callbacks from the pipeline runner for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the run.
type Observer interface {
	// OnRunStart is called once the run context is prepared, before the
	// first stage is executed.
	OnRunStart(ctx context.Context, run RunInfo)

	// OnRunCompleted is called when every stage ran or a stage halted with
	// a result.
	OnRunCompleted(ctx context.Context, run RunInfo, res *RunResult)

	// OnRunFailed is called when the run settles with an error, including
	// failures while preparing the context.
	OnRunFailed(ctx context.Context, run RunInfo, err error)

	// OnRunPaused is called when a stage hands back a snapshot.
	OnRunPaused(ctx context.Context, run RunInfo, snap *Snapshot)

	// OnStageStart is called before invoking a stage.
	// stageIndex is the 0-based index into the stage program.
	OnStageStart(ctx context.Context, run RunInfo, stage string, stageIndex int)

	// OnStageCompleted is called after a stage settles, for both successes
	// and failures (err != nil). A halt carrying an error counts as a failure.
	OnStageCompleted(ctx context.Context, run RunInfo, stage string, stageIndex int, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run RunInfo)                           {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run RunInfo, res *RunResult)       {}
func (NoopObserver) OnRunFailed(ctx context.Context, run RunInfo, err error)               {}
func (NoopObserver) OnRunPaused(ctx context.Context, run RunInfo, snap *Snapshot)          {}
func (NoopObserver) OnStageStart(ctx context.Context, run RunInfo, stage string, idx int) {}
func (NoopObserver) OnStageCompleted(ctx context.Context, run RunInfo, stage string, idx int, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run RunInfo) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run RunInfo, res *RunResult) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run, res)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run RunInfo, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnRunPaused(ctx context.Context, run RunInfo, snap *Snapshot) {
	for _, o := range c.observers {
		o.OnRunPaused(ctx, run, snap)
	}
}

func (c *CompositeObserver) OnStageStart(ctx context.Context, run RunInfo, stage string, idx int) {
	for _, o := range c.observers {
		o.OnStageStart(ctx, run, stage, idx)
	}
}

func (c *CompositeObserver) OnStageCompleted(ctx context.Context, run RunInfo, stage string, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStageCompleted(ctx, run, stage, idx, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / stage lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run RunInfo) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.Bool("resumed", run.Resumed),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run RunInfo, res *RunResult) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.Bool("halted", res != nil && res.Halted),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run RunInfo, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnRunPaused(ctx context.Context, run RunInfo, snap *Snapshot) {
	o.Logger.InfoContext(ctx, "run_paused",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.Int("stage_index", snap.StageIndex),
		slog.String("pause_kind", snap.Kind),
	)
}

func (o *LoggingObserver) OnStageStart(ctx context.Context, run RunInfo, stage string, idx int) {
	o.Logger.DebugContext(ctx, "stage_start",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.String("stage", stage),
		slog.Int("stage_index", idx),
	)
}

func (o *LoggingObserver) OnStageCompleted(ctx context.Context, run RunInfo, stage string, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "stage_completed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.String("stage", stage),
		slog.Int("stage_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate stage durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted        atomic.Int64
	runsCompleted      atomic.Int64
	runsFailed         atomic.Int64
	runsPaused         atomic.Int64
	stagesCompleted    atomic.Int64
	totalStageDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsPaused    int64
	InFlightRuns  int64

	StagesCompleted  int64
	AvgStageDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run RunInfo) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run RunInfo, res *RunResult) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run RunInfo, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnRunPaused(ctx context.Context, run RunInfo, snap *Snapshot) {
	m.runsPaused.Add(1)
}

func (m *BasicMetrics) OnStageCompleted(ctx context.Context, run RunInfo, stage string, idx int, err error, d time.Duration) {
	// Only count successful stages for average duration.
	if err == nil {
		m.stagesCompleted.Add(1)
		m.totalStageDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.runsStarted.Load()
	completed := m.runsCompleted.Load()
	failed := m.runsFailed.Load()
	paused := m.runsPaused.Load()
	stages := m.stagesCompleted.Load()
	totalNs := m.totalStageDuration.Load()

	var avg time.Duration
	if stages > 0 {
		avg = time.Duration(totalNs / stages)
	}

	return BasicMetricsSnapshot{
		RunsStarted:      started,
		RunsCompleted:    completed,
		RunsFailed:       failed,
		RunsPaused:       paused,
		InFlightRuns:     started - completed - failed - paused,
		StagesCompleted:  stages,
		AvgStageDuration: avg,
	}
}
