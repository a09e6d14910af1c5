package api

import "time"

// EventType identifies a run history event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunResumed   EventType = "run.resumed"
	EventRunPaused    EventType = "run.paused"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"
)

// RunEvent is a minimal append-only history record for audit/debugging.
type RunEvent struct {
	RunID string
	At    time.Time
	Type  EventType

	// Optional context.
	Pipeline string
	Stage    string
	// StageIndex is -1 for run-level events.
	StageIndex int

	// Small, human-oriented details (e.g. pause kind, error string).
	Detail string

	// Payload is an optional value attached to the event, such as the
	// payload of a pause. Stores encode it with gob.
	Payload any
}
