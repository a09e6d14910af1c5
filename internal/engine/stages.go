package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/weft/internal/executor"
	"github.com/petrijr/weft/internal/rollback"
	"github.com/petrijr/weft/pkg/api"
)

// HelperStage runs the resolved helpers of kind as a continuation chain.
// When a helper fails, the rollbacks collected so far run in reverse
// invocation order, then the extension stack is unwound and the run halts
// with the helper's error.
func HelperStage(kind api.Kind) api.Stage {
	name := "helpers:" + string(kind)
	return api.Stage{
		Name: name,
		Run: func(ctx context.Context, rs *api.RunState) api.Maybe[api.StageOutcome] {
			rt, err := runtimeFrom(ctx)
			if err != nil {
				return api.Failed[api.StageOutcome](err)
			}

			collector := rollback.NewCollector()
			invoke := func(ctx context.Context, entry api.Entry, next api.Next) api.Maybe[api.HelperResult] {
				rs.Steps = append(rs.Steps, api.Step{
					Stage:    name,
					Kind:     kind,
					Key:      entry.Key(),
					HelperID: entry.ID,
					At:       time.Now(),
				})
				return entry.Helper.Apply(ctx, api.HelperArgs{
					Context: rs.Context,
					Options: rs.Options,
					Entry:   entry,
					State:   rs.State,
					Run:     rs,
				}, next)
			}

			chain := executor.Run(ctx, rs.Order[kind], invoke, collector)
			return api.Then(chain, func(_ api.Unit, err error) api.Maybe[api.StageOutcome] {
				if err == nil {
					return api.Proceed(rs)
				}
				undo := rollback.Run(ctx, collector.Entries(), rollback.Options{
					Source:  name,
					OnError: rt.onHelperRollbackError,
				})
				return api.Then(undo, func(api.Unit, error) api.Maybe[api.StageOutcome] {
					return haltAfterUnwind(ctx, rt, rs, err)
				})
			})
		},
	}
}

// LifecycleStage runs the hooks registered for lifecycle and pushes the
// executed lifecycle onto the extension stack. A failing hook has its own
// lifecycle unwound first; the lifecycles executed before it are unwound
// afterwards, most recent first.
func LifecycleStage(lifecycle api.Lifecycle) api.Stage {
	return api.Stage{
		Name: "lifecycle:" + string(lifecycle),
		Run: func(ctx context.Context, rs *api.RunState) api.Maybe[api.StageOutcome] {
			rt, err := runtimeFrom(ctx)
			if err != nil {
				return api.Failed[api.StageOutcome](err)
			}

			opts := api.HookOptions{
				Context:   rs.Context,
				Options:   rs.Options,
				Lifecycle: lifecycle,
				Artifact:  rs.Artifact,
				State:     rs.State,
			}
			run := rt.coordinator.RunLifecycle(ctx, lifecycle, rs.Hooks, opts)
			return api.Then(run, func(state *api.LifecycleState, err error) api.Maybe[api.StageOutcome] {
				if err != nil {
					return haltAfterUnwind(ctx, rt, rs, err)
				}
				rs.Artifact = state.Artifact
				rs.PushFrame(api.ExtensionFrame{Lifecycle: lifecycle, State: state})
				return api.Proceed(rs)
			})
		},
	}
}

// CommitStage commits every executed lifecycle in execution order. Committed
// lifecycles leave the extension stack. On failure the stack is unwound and
// the run halts with a validation error wrapping the cause.
func CommitStage() api.Stage {
	return api.Stage{
		Name: "commit",
		Run: func(ctx context.Context, rs *api.RunState) api.Maybe[api.StageOutcome] {
			rt, err := runtimeFrom(ctx)
			if err != nil {
				return api.Failed[api.StageOutcome](err)
			}

			return api.Then(rt.coordinator.CommitStack(ctx, rs.Extensions), func(_ api.Unit, err error) api.Maybe[api.StageOutcome] {
				if err == nil {
					rs.Extensions = nil
					return api.Proceed(rs)
				}
				wrapped := fmt.Errorf("%w: %w",
					rt.p.errf(api.CodeValidation, "failed to commit extensions"), err)
				return haltAfterUnwind(ctx, rt, rs, wrapped)
			})
		},
	}
}

// FinalizeStage flags hooks whose lifecycle never ran and attaches the
// diagnostics collected so far to the run state.
func FinalizeStage() api.Stage {
	return api.Stage{
		Name: "finalize",
		Run: func(ctx context.Context, rs *api.RunState) api.Maybe[api.StageOutcome] {
			rt, err := runtimeFrom(ctx)
			if err != nil {
				return api.Failed[api.StageOutcome](err)
			}
			for _, h := range rs.Hooks {
				if rs.LifecycleExecuted(h.Lifecycle) {
					continue
				}
				rt.scope.Flag(api.Diagnostic{
					Type:    api.DiagnosticUnreachableHook,
					Key:     h.Key,
					Message: fmt.Sprintf("extension %q hooks lifecycle %q, which never ran", h.Key, h.Lifecycle),
				})
			}
			rs.Diagnostics = rt.scope.All()
			return api.Proceed(rs)
		},
	}
}

// PauseOptions configures PauseStage.
type PauseOptions struct {
	// Payload builds the snapshot payload when the stage pauses.
	Payload func(rs *api.RunState) any
	// OnResume receives the resume input when the run re-enters the stage.
	// A returned error unwinds the extension stack and fails the run.
	OnResume func(ctx context.Context, rs *api.RunState, in *api.ResumeInput) error
}

// PauseStage stops the run the first time it is reached. A run resumed at
// this stage consumes the resume input and carries on with the next stage.
func PauseStage(kind string, opts PauseOptions) api.Stage {
	return api.Stage{
		Name: "pause:" + kind,
		Run: func(ctx context.Context, rs *api.RunState) api.Maybe[api.StageOutcome] {
			if in := rs.Resume; in != nil && in.StageIndex == rs.StageIndex {
				rs.Resume = nil
				if opts.OnResume == nil {
					return api.Proceed(rs)
				}
				if err := opts.OnResume(ctx, rs, in); err != nil {
					rt, rerr := runtimeFrom(ctx)
					if rerr != nil {
						return api.Failed[api.StageOutcome](err)
					}
					return haltAfterUnwind(ctx, rt, rs, err)
				}
				return api.Proceed(rs)
			}

			var payload any
			if opts.Payload != nil {
				payload = opts.Payload(rs)
			}
			return api.Pause(NewSnapshot(rs, kind, payload))
		},
	}
}

// FuncStage wraps a synchronous function as a stage. A returned error
// unwinds the extension stack and fails the run.
func FuncStage(name string, fn func(ctx context.Context, rs *api.RunState) error) api.Stage {
	return api.Stage{
		Name: name,
		Run: func(ctx context.Context, rs *api.RunState) api.Maybe[api.StageOutcome] {
			if err := fn(ctx, rs); err != nil {
				return api.Failed[api.StageOutcome](err)
			}
			return api.Proceed(rs)
		},
	}
}

// NewSnapshot captures rs so the run can be resumed at its current stage.
func NewSnapshot(rs *api.RunState, kind string, payload any) *api.Snapshot {
	state := rs.Clone()
	state.Resume = nil
	return &api.Snapshot{
		StageIndex: rs.StageIndex,
		State:      state,
		CreatedAt:  time.Now(),
		Kind:       kind,
		Payload:    payload,
	}
}

func haltAfterUnwind(ctx context.Context, rt *runtime, rs *api.RunState, err error) api.Maybe[api.StageOutcome] {
	return api.Then(rt.unwindExtensions(ctx, rs), func(api.Unit, error) api.Maybe[api.StageOutcome] {
		return api.HaltWithError(err)
	})
}
