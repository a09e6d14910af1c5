package weft

import (
	"context"
	"fmt"

	"github.com/petrijr/weft/pkg/api"
)

// Sync adapts a plain function to a helper body that settles immediately.
func Sync(fn func(ctx context.Context, args HelperArgs) error) HelperFunc {
	return func(ctx context.Context, args HelperArgs, next Next) api.Maybe[HelperResult] {
		return api.From(HelperResult{}, fn(ctx, args))
	}
}

// Undoable adapts a function that returns its own undo action. The undo runs
// if a later helper in the same stage fails.
func Undoable(fn func(ctx context.Context, args HelperArgs) (undo func(ctx context.Context) error, err error)) HelperFunc {
	return func(ctx context.Context, args HelperArgs, next Next) api.Maybe[HelperResult] {
		undo, err := fn(ctx, args)
		if err != nil {
			return api.Failed[HelperResult](err)
		}
		if undo == nil {
			return api.Continue()
		}
		return api.WithRollback(api.SyncAction(undo))
	}
}

// Around wraps the rest of the helper chain: before runs first, then every
// downstream helper, then after. after is skipped when downstream fails.
func Around(before, after func(ctx context.Context, args HelperArgs) error) HelperFunc {
	return func(ctx context.Context, args HelperArgs, next Next) api.Maybe[HelperResult] {
		if before != nil {
			if err := before(ctx, args); err != nil {
				return api.Failed[HelperResult](err)
			}
		}
		return api.AndThen(next(), func(api.Unit) api.Maybe[HelperResult] {
			if after != nil {
				if err := after(ctx, args); err != nil {
					return api.Failed[HelperResult](err)
				}
			}
			return api.Continue()
		})
	}
}

// Typed adapts a function that expects the run state to be an S.
func Typed[S any](fn func(ctx context.Context, state S, args HelperArgs) error) HelperFunc {
	return func(ctx context.Context, args HelperArgs, next Next) api.Maybe[HelperResult] {
		state, ok := args.State.(S)
		if !ok {
			var want S
			return api.Failed[HelperResult](fmt.Errorf("helper %q: run state is %T, want %T", args.Entry.Key(), args.State, want))
		}
		return api.From(HelperResult{}, fn(ctx, state, args))
	}
}

// NewExtension returns an extension that registers hook for lifecycle
// immediately.
func NewExtension(key string, lifecycle Lifecycle, hook HookFunc) Extension {
	return Extension{
		Key: key,
		Register: func(ctx context.Context, h Handle) api.Maybe[Registration] {
			return api.Ready(Registration{Lifecycle: lifecycle, Hook: hook})
		},
	}
}
