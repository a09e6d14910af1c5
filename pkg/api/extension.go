package api

import "context"

// Lifecycle names a point in the stage program where extension hooks run.
type Lifecycle string

// LifecycleDefault is used for hooks registered without a lifecycle when the
// pipeline does not configure its own default.
const LifecycleDefault Lifecycle = "default"

// HookOptions is what a hook receives.
type HookOptions struct {
	Context   *Context
	Options   RunOptions
	Lifecycle Lifecycle
	// Artifact is the shared artifact as left by the previous hook (or the
	// run, for the first hook of a lifecycle).
	Artifact any
	State    any
}

// HookResult is what a hook settles with.
type HookResult struct {
	// Artifact replaces the shared artifact when ReplaceArtifact is set.
	Artifact        any
	ReplaceArtifact bool
	Commit          Action
	Rollback        Action
}

// ReplaceWith is the result of a hook that swaps the shared artifact.
func ReplaceWith(artifact any) HookResult {
	return HookResult{Artifact: artifact, ReplaceArtifact: true}
}

// HookFunc is the body of an extension hook.
type HookFunc func(ctx context.Context, opts HookOptions) Maybe[HookResult]

// Hook is a registered extension hook.
type Hook struct {
	// Key names the extension that registered the hook.
	Key       string
	Lifecycle Lifecycle
	Fn        HookFunc
}

// Registration is what an extension's Register function settles with. The
// zero value registers nothing; a Hook with an empty Lifecycle is attached to
// the pipeline's default lifecycle.
type Registration struct {
	Lifecycle Lifecycle
	Hook      HookFunc
}

// Handle is the view of the pipeline handed to extensions while they
// register.
type Handle interface {
	Use(h Helper) error
	Diagnostics() []Diagnostic
	ErrorFactory() ErrorFactory
}

// Extension contributes helpers and/or a lifecycle hook to a pipeline.
type Extension struct {
	Key      string
	Register func(ctx context.Context, h Handle) Maybe[Registration]
}

// HookRun records one executed hook and what it returned.
type HookRun struct {
	Hook   Hook
	Result HookResult
}

// LifecycleState is the outcome of running one lifecycle.
type LifecycleState struct {
	Lifecycle Lifecycle
	Artifact  any
	Results   []HookRun
	Hooks     []Hook
}

// ExtensionFrame is one executed lifecycle on the run's extension stack.
// Frames are appended in execution order and never modified.
type ExtensionFrame struct {
	Lifecycle Lifecycle
	State     *LifecycleState
}
