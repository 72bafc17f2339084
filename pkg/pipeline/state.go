package pipeline

import "fmt"

// State is the controller's position in the pipeline
type State int32

const (
	StateIdle State = iota
	StateImporting
	StateDiffing
	StateAwaitingConfirmation
	StatePersisting
	StateApplying
	StateCancelling
	StateCompleted
	StateFailed
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateImporting:
		return "Importing"
	case StateDiffing:
		return "Diffing"
	case StateAwaitingConfirmation:
		return "AwaitingConfirmation"
	case StatePersisting:
		return "Persisting"
	case StateApplying:
		return "Applying"
	case StateCancelling:
		return "Cancelling"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// active reports whether a run is in progress. Completed and Failed are
// resting states: a new run may start from them.
func (s State) active() bool {
	switch s {
	case StateIdle, StateCompleted, StateFailed:
		return false
	default:
		return true
	}
}

// busy reports whether the controller must not be closed
func (s State) busy() bool {
	switch s {
	case StateImporting, StateDiffing, StatePersisting, StateApplying, StateAwaitingConfirmation:
		return true
	default:
		return false
	}
}

// OutputMode selects what happens to a non-empty script
type OutputMode int

const (
	// OutputApply pauses for confirmation, then runs the script on the database
	OutputApply OutputMode = iota
	// OutputPersist writes the script to a file
	OutputPersist
)

// String returns a string representation of the output mode
func (m OutputMode) String() string {
	switch m {
	case OutputApply:
		return "apply"
	case OutputPersist:
		return "persist"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}
