package pipeline

import (
	"fmt"
	"time"

	"github.com/David-Botos/schemadiff/pkg/model"
)

// EventType identifies what an Event reports
type EventType int

const (
	EventStageStarted EventType = iota
	EventProgressUpdated
	EventDiffOperationClassified
	EventErrorOccurred
	EventStageCompleted
	EventConfirmationRequested
	EventPipelineCompleted
)

// String returns a string representation of the event type
func (t EventType) String() string {
	switch t {
	case EventStageStarted:
		return "StageStarted"
	case EventProgressUpdated:
		return "ProgressUpdated"
	case EventDiffOperationClassified:
		return "DiffOperationClassified"
	case EventErrorOccurred:
		return "ErrorOccurred"
	case EventStageCompleted:
		return "StageCompleted"
	case EventConfirmationRequested:
		return "ConfirmationRequested"
	case EventPipelineCompleted:
		return "PipelineCompleted"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// Event is one entry of the controller's feed. Only the fields relevant to
// Type are set.
type Event struct {
	Type  EventType
	RunID string
	Stage State
	Time  time.Time

	// ProgressUpdated: overall percentage
	Progress int
	Message  string
	Category model.ObjectType
	Command  string

	// DiffOperationClassified
	Operation *model.Operation

	// ErrorOccurred
	Error *ErrorRecord

	// ConfirmationRequested
	Script string

	// PipelineCompleted
	Outcome *Outcome
}

// OutcomeKind is the terminal result of a run
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
)

// String returns a string representation of the outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeCancelled:
		return "Cancelled"
	case OutcomeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Outcome is published with PipelineCompleted
type Outcome struct {
	Kind OutcomeKind
	// Final script; empty when no differences were found
	Script string
	// Script was applied to the database or written to a file
	AppliedOrSaved bool
	// Set for OutcomeFailed
	Error   *ErrorRecord
	Message string
}

const (
	msgCancelledByUser = "Operation cancelled by the user."
	msgNoDifferences   = "No differences were detected between model and database."
)

func successOutcome(script string, appliedOrSaved bool, message string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Script: script, AppliedOrSaved: appliedOrSaved, Message: message}
}
