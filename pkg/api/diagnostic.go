package api

// DiagnosticType classifies a Diagnostic. Hosts may use their own values.
type DiagnosticType string

const (
	DiagnosticConflict          DiagnosticType = "conflict"
	DiagnosticMissingDependency DiagnosticType = "missing-dependency"
	DiagnosticUnusedHelper      DiagnosticType = "unused-helper"
	DiagnosticUnreachableHook   DiagnosticType = "unreachable-hook"
)

// Diagnostic is a structured, non-fatal record about the pipeline setup or a
// run.
type Diagnostic struct {
	Type    DiagnosticType
	Key     string
	Kind    Kind
	Message string

	// Optional context.
	HelperID   string
	Dependency string
	Origin     string

	// Static diagnostics were recorded at registration time and survive
	// across runs.
	Static bool
}

// ReporterSession is a handle issued by a pipeline for one reporter.
// Diagnostics are replayed at most once per session; a new session receives
// the full backlog.
type ReporterSession struct {
	ID       string
	Reporter Reporter
}
