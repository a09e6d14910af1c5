// Package weft provides an embeddable pipeline engine for Go.
//
// A pipeline runs a fixed program of stages. Stages execute helpers (small,
// keyed units of work registered per kind), run extension hooks at named
// lifecycles, commit what those hooks produced, and may pause the run so it
// can be resumed later with new input.
//
// # Core Concepts
//
//  1. Helper
//  2. Extension
//  3. Stage
//  4. Pipeline
//  5. Maybe
//
// # Helper
//
// A Helper has a key, a kind, a priority and the keys it depends on:
//
//	p.Use(weft.Helper{
//	    Key:       "emit-types",
//	    Kind:      "emit",
//	    DependsOn: []string{"parse"},
//	    Apply:     weft.Sync(emitTypes),
//	})
//
// Helpers of one kind are ordered by dependencies, then by priority (higher
// first), key and registration order. Registering with ModeOverride replaces
// every helper of that key; a second override of the same key is rejected and
// flagged as a conflict.
//
// A helper body receives a next function. Calling it runs every downstream
// helper and lets the body act after them; not calling it lets the chain
// continue once the body settles. A helper may return an undo action, which
// runs in reverse order if a later helper of the same stage fails.
//
// # Extension
//
// Extensions register hooks at lifecycles. Each hook sees the artifact left by
// the previous one and may replace it, and may return commit and rollback
// actions. Executed lifecycles are unwound last-first when the run fails.
//
// # Stage
//
// HelperStage, LifecycleStage, CommitStage, FinalizeStage, PauseStage and
// FuncStage cover the usual programs. Custom stages return a StageOutcome:
// proceed, halt with a result or an error, or pause with a snapshot.
//
// # Pipeline
//
// Builder assembles a pipeline fluently; NewFromConfig builds one from a
// FileConfig loaded with LoadConfig, wiring logging, run-event history,
// metrics and tracing. The redis, postgres and mongo modules provide event
// stores for NewFromConfigWithEvents.
//
// # Maybe
//
// Run and Resume return a Maybe. When every stage, helper and hook settles
// immediately the Maybe is already settled; a single deferred helper makes
// it deferred. Await or Get read it either way.
//
// For examples, see the /examples directory.
package weft
