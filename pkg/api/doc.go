// Package api defines the public contracts of the weft pipeline engine:
// helpers and their registration modes, extensions and lifecycle hooks, the
// run state threaded through stages, pause snapshots, diagnostics, reporters
// and observers.
//
// Every operation that may complete later returns a Maybe. A Maybe is either
// settled on return or backed by deferred work; Then and AndThen handle both
// cases, so code that composes Maybes never needs to know which one it got.
package api
