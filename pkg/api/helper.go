package api

import "context"

// Kind groups helpers that share an input/output contract and run in the
// same stage. Hosts declare their kinds as constants.
type Kind string

// Mode controls how helpers registered under the same key combine.
type Mode string

const (
	// ModeExtend adds a helper alongside any others with the same key.
	ModeExtend Mode = "extend"
	// ModeOverride replaces every extend helper for the key and must be unique.
	ModeOverride Mode = "override"
	// ModeMerge is reserved. It currently behaves exactly like ModeExtend.
	ModeMerge Mode = "merge"
)

// Valid reports whether m is a known registration mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeExtend, ModeOverride, ModeMerge:
		return true
	}
	return false
}

// Action is a unit of deferred-or-immediate work: undo, commit and rollback
// callbacks all share this shape.
type Action func(ctx context.Context) Maybe[Unit]

// SyncAction adapts a plain function to an Action that settles immediately.
func SyncAction(fn func(ctx context.Context) error) Action {
	return func(ctx context.Context) Maybe[Unit] {
		if err := fn(ctx); err != nil {
			return Failed[Unit](err)
		}
		return Done()
	}
}

// Next continues with the rest of the helper chain. Calling it more than once
// returns the outcome of the first call without running anything again. Once
// the helper's own result has settled, Next fails instead.
type Next func() Maybe[Unit]

// HelperFunc is the body of a helper.
//
// A helper that never calls next is followed by the rest of the chain once
// its result settles. Calling next lets the helper wrap everything that runs
// after it.
type HelperFunc func(ctx context.Context, args HelperArgs, next Next) Maybe[HelperResult]

// Helper is a named, kinded unit of work. It is treated as immutable once
// registered.
type Helper struct {
	Key       string
	Kind      Kind
	Mode      Mode
	Priority  int
	DependsOn []string
	// Optional helpers that cannot be scheduled are reported but do not fail
	// the run.
	Optional bool
	// Origin describes where the helper came from, for diagnostics.
	Origin string
	Apply  HelperFunc
}

// Entry is a helper as stored by the registry.
type Entry struct {
	ID     string
	Index  int
	Helper Helper
}

// Key is shorthand for e.Helper.Key.
func (e Entry) Key() string { return e.Helper.Key }

// HelperArgs is what a helper stage hands to each helper.
type HelperArgs struct {
	Context *Context
	Options RunOptions
	Entry   Entry
	// State is the opaque user state of the run.
	State any
	// Run gives access to the whole run state, including the artifact.
	Run *RunState
}

// HelperResult is what a helper settles with.
type HelperResult struct {
	// Rollback, when set, is queued and invoked in reverse order if a later
	// helper in the same stage fails.
	Rollback Action
}

// Continue is the result of a helper that has nothing to undo.
func Continue() Maybe[HelperResult] {
	return Ready(HelperResult{})
}

// WithRollback is the result of a helper that registers an undo action.
func WithRollback(undo Action) Maybe[HelperResult] {
	return Ready(HelperResult{Rollback: undo})
}

// RollbackEntry pairs an undo action with the key that produced it.
type RollbackEntry struct {
	Key  string
	Undo Action
}

// RollbackMetadata describes where a failing undo action came from.
type RollbackMetadata struct {
	Source   string
	Key      string
	Position int
}

// RollbackFailure is reported for every undo action that fails while
// unwinding. Unwinding always continues past it.
type RollbackFailure struct {
	Err      error
	Metadata RollbackMetadata
	Entry    RollbackEntry
}
