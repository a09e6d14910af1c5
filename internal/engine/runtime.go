package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/weft/internal/diagnostics"
	"github.com/petrijr/weft/internal/extension"
	"github.com/petrijr/weft/internal/graph"
	"github.com/petrijr/weft/pkg/api"
)

// runtime is the per-run view of a pipeline that stages reach through the
// context.
type runtime struct {
	p           *Pipeline
	info        api.RunInfo
	scope       *diagnostics.Run
	session     *api.ReporterSession
	ownSession  bool
	reporter    api.Reporter
	coordinator *extension.Coordinator
}

type runtimeKey struct{}

func withRuntime(ctx context.Context, rt *runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("engine: stage invoked outside of a pipeline run")
	}
	return rt, nil
}

func (p *Pipeline) newRuntime(runID string, opts api.RunOptions, resumed bool) *runtime {
	rt := &runtime{
		p:     p,
		info:  api.RunInfo{RunID: runID, Pipeline: p.cfg.Name, Resumed: resumed},
		scope: p.diags.Begin(p.cfg.OnDiagnostic),
	}
	switch {
	case opts.Session != nil:
		rt.session = opts.Session
	case opts.Reporter != nil:
		rt.session, rt.ownSession = p.diags.Attach(opts.Reporter), true
	default:
		rt.session, rt.ownSession = p.diags.Attach(api.NewReporter(p.logger)), true
	}
	rt.reporter = rt.session.Reporter
	if rt.reporter == nil {
		rt.reporter = api.NoopReporter{}
	}
	rt.coordinator = &extension.Coordinator{OnRollbackError: rt.onExtensionRollbackError}
	return rt
}

func (rt *runtime) onHelperRollbackError(f api.RollbackFailure) {
	if rt.p.cfg.OnHelperRollbackError != nil {
		rt.p.cfg.OnHelperRollbackError(f)
		return
	}
	rt.reporter.Warn("helper rollback failed",
		"source", f.Metadata.Source, "key", f.Metadata.Key, "position", f.Metadata.Position, "error", f.Err)
}

func (rt *runtime) onExtensionRollbackError(f api.RollbackFailure) {
	if rt.p.cfg.OnExtensionRollbackError != nil {
		rt.p.cfg.OnExtensionRollbackError(f)
		return
	}
	rt.reporter.Warn("extension rollback failed",
		"source", f.Metadata.Source, "key", f.Metadata.Key, "position", f.Metadata.Position, "error", f.Err)
}

func (p *Pipeline) newContext(runID string, opts api.RunOptions, reporter api.Reporter) *api.Context {
	c := &api.Context{
		RunID:    runID,
		Pipeline: p.cfg.Name,
		Reporter: reporter,
		Logger:   p.logger.With("pipeline", p.cfg.Name, "run_id", runID),
		Values:   maps.Clone(opts.Values),
	}
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	return c
}

// prepare builds the run context and state and resolves every helper kind.
// A resolution failure is returned before any stage runs.
func (p *Pipeline) prepare(ctx context.Context, opts api.RunOptions) (*runtime, *api.RunState, error) {
	runID := uuid.NewString()
	rt := p.newRuntime(runID, opts, false)
	c := p.newContext(runID, opts, rt.reporter)
	if p.cfg.DecorateContext != nil {
		p.cfg.DecorateContext(c, opts)
	}

	order, err := p.resolve(rt.scope, opts)
	if err != nil {
		return rt, nil, err
	}

	var state any = opts.Input
	if p.cfg.CreateState != nil {
		state = p.cfg.CreateState(c, opts)
	}

	rs := &api.RunState{
		RunID:   runID,
		Context: c,
		Options: opts,
		State:   state,
		Order:   order,
		Hooks:   p.extensions.Hooks(),
	}
	return rt, rs, nil
}

func (p *Pipeline) resolve(scope *diagnostics.Run, opts api.RunOptions) (map[api.Kind][]api.Entry, error) {
	order := make(map[api.Kind][]api.Entry)
	var errs []error
	for _, kind := range p.helpers.Kinds() {
		provided := slices.Concat(p.cfg.ProvidedKeys[kind], opts.Provided[kind])
		resolved, err := graph.Resolve(p.helpers.Entries(kind), graph.Options{
			Provided: provided,
			OnMissingDependency: func(e api.Entry, dep string) {
				scope.Flag(api.Diagnostic{
					Type:       api.DiagnosticMissingDependency,
					Key:        e.Key(),
					Kind:       kind,
					Message:    fmt.Sprintf("helper %q depends on %q, which is not registered", e.ID, dep),
					HelperID:   e.ID,
					Dependency: dep,
					Origin:     e.Helper.Origin,
				})
			},
			OnUnusedHelper: func(e api.Entry, reason string) {
				scope.Flag(api.Diagnostic{
					Type:     api.DiagnosticUnusedHelper,
					Key:      e.Key(),
					Kind:     kind,
					Message:  fmt.Sprintf("helper %q will not run: %s", e.ID, reason),
					HelperID: e.ID,
					Origin:   e.Helper.Origin,
				})
			},
			ErrorFactory: p.errf,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		order[kind] = resolved
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return order, nil
}

// restore rebuilds a run from a snapshot. The snapshot is not modified.
func (p *Pipeline) restore(snap *api.Snapshot, input any, opts api.RunOptions) (*runtime, *api.RunState) {
	rs := snap.State.Clone()
	if opts.Reporter == nil && opts.Session == nil && rs.Context != nil {
		opts.Reporter = rs.Context.Reporter
	}
	rt := p.newRuntime(rs.RunID, opts, true)
	rt.scope.Restore(rs.Diagnostics)

	values := opts.Values
	if values == nil && rs.Context != nil {
		values = rs.Context.Values
	}
	c := p.newContext(rs.RunID, api.RunOptions{Values: values}, rt.reporter)
	rs.Context = c
	if opts.Values != nil || opts.Input != nil || opts.Provided != nil {
		rs.Options = opts
	}
	rs.Resume = &api.ResumeInput{
		StageIndex: snap.StageIndex,
		Kind:       snap.Kind,
		Payload:    snap.Payload,
		Input:      input,
	}
	return rt, rs
}

// execute runs the stage program from start.
func (p *Pipeline) execute(ctx context.Context, rt *runtime, rs *api.RunState, start int) api.Maybe[*api.RunResult] {
	ctx = withRuntime(ctx, rt)
	ctx = api.WithLogger(ctx, rs.Context.Logger)
	stages := p.cfg.Stages

	var step func(i int, rs *api.RunState) api.Maybe[*api.RunResult]
	step = func(i int, rs *api.RunState) api.Maybe[*api.RunResult] {
		if err := ctx.Err(); err != nil {
			return api.Then(rt.unwindExtensions(ctx, rs), func(api.Unit, error) api.Maybe[*api.RunResult] {
				return p.fail(ctx, rt, err)
			})
		}
		if i >= len(stages) {
			return api.Ready(p.complete(ctx, rt, rs))
		}
		stage := stages[i]
		rs.StageIndex = i
		began := time.Now()
		p.observer.OnStageStart(ctx, rt.info, stage.Name, i)

		return api.Then(callStage(ctx, stage, rs), func(out api.StageOutcome, err error) api.Maybe[*api.RunResult] {
			stageErr := err
			if stageErr == nil && out.Halt != nil {
				stageErr = out.Halt.Err
			}
			p.observer.OnStageCompleted(ctx, rt.info, stage.Name, i, stageErr, time.Since(began))

			switch {
			case err != nil:
				return api.Then(rt.unwindExtensions(ctx, rs), func(api.Unit, error) api.Maybe[*api.RunResult] {
					return p.fail(ctx, rt, err)
				})
			case out.Halt != nil && out.Halt.Err != nil:
				// Built-in stages unwind before halting; the stack is empty then.
				return api.Then(rt.unwindExtensions(ctx, rs), func(api.Unit, error) api.Maybe[*api.RunResult] {
					return p.fail(ctx, rt, out.Halt.Err)
				})
			case out.Halt != nil:
				return api.Ready(p.halted(ctx, rt, rs, out.Halt.Result))
			case out.Paused != nil:
				return p.paused(ctx, rt, stage, rs, out.Paused)
			}
			next := out.State
			if next == nil {
				next = rs
			}
			return step(i+1, next)
		})
	}
	return step(start, rs)
}

func callStage(ctx context.Context, stage api.Stage, rs *api.RunState) (m api.Maybe[api.StageOutcome]) {
	if stage.Run == nil {
		return api.Proceed(rs)
	}
	defer func() {
		if r := recover(); r != nil {
			m = api.Failed[api.StageOutcome](fmt.Errorf("stage %q panicked: %v", stage.Name, r))
		}
	}()
	return stage.Run(ctx, rs)
}

// unwindExtensions rolls back every executed lifecycle of rs, most recent
// first. The stack is consumed so it is never unwound twice.
func (rt *runtime) unwindExtensions(ctx context.Context, rs *api.RunState) api.Maybe[api.Unit] {
	frames := rs.Extensions
	rs.Extensions = nil
	if len(frames) == 0 {
		return api.Done()
	}
	return rt.coordinator.UnwindStack(ctx, frames, rt.onExtensionRollbackError)
}

// announce replays pending diagnostics to the run's session. Sessions the
// run attached itself are detached afterwards; caller sessions stay.
func (p *Pipeline) announce(rt *runtime) {
	p.diags.Replay(rt.session, rt.scope)
	if rt.ownSession {
		p.diags.Detach(rt.session)
	}
}

func (p *Pipeline) fail(ctx context.Context, rt *runtime, err error) api.Maybe[*api.RunResult] {
	p.announce(rt)
	p.observer.OnRunFailed(ctx, rt.info, err)
	return api.Failed[*api.RunResult](err)
}

func (p *Pipeline) complete(ctx context.Context, rt *runtime, rs *api.RunState) *api.RunResult {
	var result any = rs.Artifact
	if p.cfg.CreateResult != nil {
		result = p.cfg.CreateResult(rs)
	}
	res := &api.RunResult{
		RunID:       rs.RunID,
		Result:      result,
		Artifact:    rs.Artifact,
		State:       rs.State,
		Steps:       rs.Steps,
		Diagnostics: rt.scope.All(),
	}
	p.announce(rt)
	p.observer.OnRunCompleted(ctx, rt.info, res)
	return res
}

func (p *Pipeline) halted(ctx context.Context, rt *runtime, rs *api.RunState, result any) *api.RunResult {
	res := &api.RunResult{
		RunID:       rs.RunID,
		Result:      result,
		Artifact:    rs.Artifact,
		State:       rs.State,
		Steps:       rs.Steps,
		Diagnostics: rt.scope.All(),
		Halted:      true,
	}
	p.announce(rt)
	p.observer.OnRunCompleted(ctx, rt.info, res)
	return res
}

// paused turns a pause outcome into a paused result. live is the state the
// stage ran with; its extension stack is unwound when the pause is rejected.
func (p *Pipeline) paused(ctx context.Context, rt *runtime, stage api.Stage, live *api.RunState, snap *api.Snapshot) api.Maybe[*api.RunResult] {
	reject := func(msg string) api.Maybe[*api.RunResult] {
		return api.Then(rt.unwindExtensions(ctx, live), func(api.Unit, error) api.Maybe[*api.RunResult] {
			return p.fail(ctx, rt, p.errf(api.CodeValidation, msg))
		})
	}
	if !p.cfg.Resumable {
		return reject(fmt.Sprintf("stage %q paused but pipeline %q is not resumable", stage.Name, p.cfg.Name))
	}
	if snap.State == nil {
		return reject(fmt.Sprintf("stage %q paused without a run state", stage.Name))
	}
	snap.State.Diagnostics = rt.scope.Diagnostics()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}

	rs := snap.State
	res := &api.RunResult{
		RunID:       rs.RunID,
		Artifact:    rs.Artifact,
		State:       rs.State,
		Steps:       rs.Steps,
		Diagnostics: rt.scope.All(),
		Paused:      snap,
	}
	p.announce(rt)
	p.observer.OnRunPaused(ctx, rt.info, snap)
	return api.Ready(res)
}
