package api

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Context is the per-run context shared by stages, helpers and hooks.
type Context struct {
	RunID    string
	Pipeline string
	Reporter Reporter
	Logger   *slog.Logger
	// Values carries host-defined data for the run.
	Values map[string]any
}

// RunOptions are supplied by the caller of Run and Resume.
type RunOptions struct {
	// Input is an opaque value made available to helpers and hooks.
	Input any
	// Reporter receives diagnostics and warnings. Ignored when Session is set.
	Reporter Reporter
	// Session, when set, deduplicates diagnostic replay across runs that
	// share the same reporter.
	Session *ReporterSession
	// Provided lists dependency keys, per kind, that are satisfied outside of
	// the registry.
	Provided map[Kind][]string
	// Values is copied into Context.Values.
	Values map[string]any
}

// Step is one entry in the ordered step log of a run.
type Step struct {
	Stage    string
	Kind     Kind
	Key      string
	HelperID string
	At       time.Time
}

// ResumeInput is attached to a resumed run so the stage it re-enters can
// tell a first entry from a continuation.
type ResumeInput struct {
	StageIndex int
	Kind       string
	Payload    any
	Input      any
}

// RunState is threaded through one run. It is owned by that run alone.
type RunState struct {
	RunID   string
	Context *Context
	Options RunOptions

	// State is the opaque user state built at run start.
	State any
	// Artifact is the value shared with extension hooks.
	Artifact any

	Steps       []Step
	Diagnostics []Diagnostic

	// Lifecycles lists executed lifecycles in execution order.
	Lifecycles []Lifecycle
	// Extensions holds one frame per executed lifecycle.
	Extensions []ExtensionFrame

	// Order is the resolved execution order of every kind, captured at
	// run start.
	Order map[Kind][]Entry
	// Hooks is the hook set captured at run start.
	Hooks []Hook

	StageIndex int
	Resume     *ResumeInput
}

// LifecycleExecuted reports whether lifecycle l already ran in this run.
func (s *RunState) LifecycleExecuted(l Lifecycle) bool {
	return slices.Contains(s.Lifecycles, l)
}

// PushFrame appends an executed lifecycle. The frame slice is copied so
// snapshots taken earlier keep their own view.
func (s *RunState) PushFrame(frame ExtensionFrame) {
	frames := make([]ExtensionFrame, 0, len(s.Extensions)+1)
	frames = append(frames, s.Extensions...)
	s.Extensions = append(frames, frame)
	if !s.LifecycleExecuted(frame.Lifecycle) {
		s.Lifecycles = append(slices.Clone(s.Lifecycles), frame.Lifecycle)
	}
}

// Clone returns a copy of s whose slices and maps can be modified without
// affecting s. Artifact and State are shared as-is.
func (s *RunState) Clone() *RunState {
	c := *s
	c.Steps = slices.Clone(s.Steps)
	c.Diagnostics = slices.Clone(s.Diagnostics)
	c.Lifecycles = slices.Clone(s.Lifecycles)
	c.Extensions = slices.Clone(s.Extensions)
	c.Hooks = slices.Clone(s.Hooks)
	c.Order = maps.Clone(s.Order)
	if s.Context != nil {
		ctx := *s.Context
		ctx.Values = maps.Clone(s.Context.Values)
		c.Context = &ctx
	}
	if s.Resume != nil {
		r := *s.Resume
		c.Resume = &r
	}
	return &c
}

// Snapshot captures a run stopped between stage StageIndex-1 and StageIndex.
// Storing it is up to the caller.
type Snapshot struct {
	StageIndex int
	State      *RunState
	CreatedAt  time.Time
	Kind       string
	Payload    any
}

// Halt stops stage composition early, with either a result or an error.
type Halt struct {
	Result any
	Err    error
}

// StageOutcome is what a stage settles with: exactly one of State, Halt or
// Paused is set.
type StageOutcome struct {
	State  *RunState
	Halt   *Halt
	Paused *Snapshot
}

// Proceed returns an outcome that continues with rs.
func Proceed(rs *RunState) Maybe[StageOutcome] {
	return Ready(StageOutcome{State: rs})
}

// HaltWithResult stops the run and returns result to the caller.
func HaltWithResult(result any) Maybe[StageOutcome] {
	return Ready(StageOutcome{Halt: &Halt{Result: result}})
}

// HaltWithError stops the run and makes Run fail with err.
func HaltWithError(err error) Maybe[StageOutcome] {
	return Ready(StageOutcome{Halt: &Halt{Err: err}})
}

// IsHalt reports whether o stops the run early.
func IsHalt(o StageOutcome) bool {
	return o.Halt != nil
}

// Pause stops the run and hands snap to the caller.
func Pause(snap *Snapshot) Maybe[StageOutcome] {
	return Ready(StageOutcome{Paused: snap})
}

// StageFunc is the body of a stage.
type StageFunc func(ctx context.Context, rs *RunState) Maybe[StageOutcome]

// Stage is one step of the stage program.
type Stage struct {
	Name string
	Run  StageFunc
}

// RunResult is the settled outcome of Run or Resume.
type RunResult struct {
	RunID string
	// Result is the value produced by the run. For a run halted with a
	// result it is the halt result.
	Result   any
	Artifact any
	State    any
	Steps    []Step
	// Diagnostics holds static and run diagnostics.
	Diagnostics []Diagnostic
	// Halted is set when a stage stopped the run with a result.
	Halted bool
	// Paused is set when the run stopped at a pause point.
	Paused *Snapshot
}

// Extensions registers extensions on a pipeline.
type Extensions interface {
	// Use calls ext.Register and stores the hook it returns. The returned
	// Maybe settles when the registration does; Run waits for it anyway.
	Use(ctx context.Context, ext Extension) Maybe[Unit]
	Hooks() []Hook
}

// Pipeline is the public contract of the engine.
type Pipeline interface {
	Handle

	Extensions() Extensions

	// Run executes the stage program. The result is settled immediately when
	// every stage, helper and hook settled immediately.
	Run(ctx context.Context, opts RunOptions) Maybe[*RunResult]

	// Resume continues a paused run at snap.StageIndex with input attached.
	Resume(ctx context.Context, snap *Snapshot, input any, opts RunOptions) Maybe[*RunResult]

	// AttachReporter issues a session used to deduplicate diagnostic replay.
	AttachReporter(r Reporter) *ReporterSession
}
