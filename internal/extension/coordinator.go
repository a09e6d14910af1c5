// Package extension runs lifecycle hooks contributed by extensions and
// unwinds them when something fails.
package extension

import (
	"context"
	"fmt"

	"github.com/petrijr/weft/internal/rollback"
	"github.com/petrijr/weft/pkg/api"
)

// Coordinator runs lifecycles and their commit and rollback actions.
type Coordinator struct {
	// OnRollbackError receives every rollback action that fails while a
	// lifecycle is being unwound.
	OnRollbackError func(api.RollbackFailure)
}

// Filter returns the hooks registered for lifecycle, in registration order.
func Filter(hooks []api.Hook, lifecycle api.Lifecycle) []api.Hook {
	var out []api.Hook
	for _, h := range hooks {
		if h.Lifecycle == lifecycle {
			out = append(out, h)
		}
	}
	return out
}

// RunLifecycle runs the hooks of one lifecycle in order. Each hook sees the
// artifact left by the previous one and may replace it.
//
// When a hook fails, the rollback actions of the hooks that already ran are
// invoked in reverse order, failures among them go to OnRollbackError, and the
// original error is returned.
func (c *Coordinator) RunLifecycle(ctx context.Context, lifecycle api.Lifecycle, hooks []api.Hook, opts api.HookOptions) api.Maybe[*api.LifecycleState] {
	selected := Filter(hooks, lifecycle)
	state := &api.LifecycleState{
		Lifecycle: lifecycle,
		Artifact:  opts.Artifact,
		Hooks:     selected,
	}
	opts.Lifecycle = lifecycle

	var step func(i int) api.Maybe[*api.LifecycleState]
	step = func(i int) api.Maybe[*api.LifecycleState] {
		if i >= len(selected) {
			return api.Ready(state)
		}
		hook := selected[i]
		hookOpts := opts
		hookOpts.Artifact = state.Artifact

		return api.Then(callHook(ctx, hook, hookOpts), func(res api.HookResult, err error) api.Maybe[*api.LifecycleState] {
			if err != nil {
				return api.Then(c.unwind(ctx, state), func(api.Unit, error) api.Maybe[*api.LifecycleState] {
					return api.Failed[*api.LifecycleState](err)
				})
			}
			if res.ReplaceArtifact {
				state.Artifact = res.Artifact
			}
			state.Results = append(state.Results, api.HookRun{Hook: hook, Result: res})
			return step(i + 1)
		})
	}
	return step(0)
}

func callHook(ctx context.Context, hook api.Hook, opts api.HookOptions) (m api.Maybe[api.HookResult]) {
	if hook.Fn == nil {
		return api.Ready(api.HookResult{})
	}
	defer func() {
		if r := recover(); r != nil {
			m = api.Failed[api.HookResult](fmt.Errorf("hook %q in lifecycle %q panicked: %v", hook.Key, opts.Lifecycle, r))
		}
	}()
	return hook.Fn(ctx, opts)
}

func (c *Coordinator) unwind(ctx context.Context, state *api.LifecycleState) api.Maybe[api.Unit] {
	entries := make([]api.RollbackEntry, 0, len(state.Results))
	for _, r := range state.Results {
		if r.Result.Rollback != nil {
			entries = append(entries, api.RollbackEntry{Key: r.Hook.Key, Undo: r.Result.Rollback})
		}
	}
	return rollback.Run(ctx, entries, rollback.Options{
		Source:  "extension:" + string(state.Lifecycle),
		OnError: c.OnRollbackError,
	})
}

// CreateRollbackHandler returns an action that unwinds every hook of state,
// last hook first. The action itself never fails.
func (c *Coordinator) CreateRollbackHandler(state *api.LifecycleState) api.Action {
	return func(ctx context.Context) api.Maybe[api.Unit] {
		return c.unwind(ctx, state)
	}
}

// Commit invokes the commit actions of state in hook order. The first
// failure stops the sequence and is returned.
func (c *Coordinator) Commit(ctx context.Context, state *api.LifecycleState) api.Maybe[api.Unit] {
	var fns []func() api.Maybe[api.Unit]
	for _, r := range state.Results {
		commit := r.Result.Commit
		if commit == nil {
			continue
		}
		key := r.Hook.Key
		fns = append(fns, func() api.Maybe[api.Unit] {
			return api.Then(commit(ctx), func(_ api.Unit, err error) api.Maybe[api.Unit] {
				if err != nil {
					return api.Failed[api.Unit](fmt.Errorf("commit %q: %w", key, err))
				}
				return api.Done()
			})
		})
	}
	return api.Sequence(fns...)
}

// UnwindStack rolls back executed lifecycles, most recent first. Every frame
// is unwound even if an earlier handler fails; handler failures go to
// onHandlerError.
func (c *Coordinator) UnwindStack(ctx context.Context, frames []api.ExtensionFrame, onHandlerError func(api.RollbackFailure)) api.Maybe[api.Unit] {
	entries := make([]api.RollbackEntry, 0, len(frames))
	for _, f := range frames {
		entries = append(entries, api.RollbackEntry{
			Key:  string(f.Lifecycle),
			Undo: c.CreateRollbackHandler(f.State),
		})
	}
	return rollback.Run(ctx, entries, rollback.Options{
		Source:  "extension-stack",
		OnError: onHandlerError,
	})
}

// CommitStack commits executed lifecycles in execution order.
func (c *Coordinator) CommitStack(ctx context.Context, frames []api.ExtensionFrame) api.Maybe[api.Unit] {
	fns := make([]func() api.Maybe[api.Unit], 0, len(frames))
	for _, f := range frames {
		fns = append(fns, func() api.Maybe[api.Unit] {
			return c.Commit(ctx, f.State)
		})
	}
	return api.Sequence(fns...)
}
