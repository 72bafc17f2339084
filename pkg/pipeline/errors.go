package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/David-Botos/schemadiff/pkg/applier"
	"github.com/David-Botos/schemadiff/pkg/connector"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is active
	ErrAlreadyRunning = errors.New("a pipeline run is already active")
	// ErrInvalidState is returned by Confirm and PendingScript outside AwaitingConfirmation
	ErrInvalidState = errors.New("operation is not valid in the current pipeline state")
	// ErrBusy is returned by Close while a stage runs or a confirmation is pending
	ErrBusy = errors.New("pipeline is busy; cancel it before closing")
	// ErrClosed is returned by every call after Close
	ErrClosed = errors.New("pipeline controller is closed")

	// errConnect marks failures to open a connection
	errConnect = errors.New("connection failed")
)

// ErrorKind classifies an ErrorRecord
type ErrorKind int

const (
	ConnectionError ErrorKind = iota
	ImportError
	DiffComputationError
	StorageWriteError
	ApplyFatalError
	ApplyIgnoredError
	AlreadyRunningError
	InvalidStateError
	BusyError
)

// String returns a string representation of the error kind
func (k ErrorKind) String() string {
	switch k {
	case ConnectionError:
		return "ConnectionError"
	case ImportError:
		return "ImportError"
	case DiffComputationError:
		return "DiffComputationError"
	case StorageWriteError:
		return "StorageWriteError"
	case ApplyFatalError:
		return "ApplyFatalError"
	case ApplyIgnoredError:
		return "ApplyIgnoredError"
	case AlreadyRunningError:
		return "AlreadyRunningError"
	case InvalidStateError:
		return "InvalidStateError"
	case BusyError:
		return "BusyError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// ErrorRecord is an error as published on the feed
type ErrorRecord struct {
	Kind    ErrorKind
	Stage   State
	Message string
	// Extra detail for display, may be empty
	Detail    string
	Fatal     bool
	Code      string // SQLSTATE when the database reported one
	Command   string // offending statement, if any
	Timestamp time.Time
	Err       error
}

// NewErrorRecord creates a fatal record with the current timestamp
func NewErrorRecord(kind ErrorKind, err error) ErrorRecord {
	record := ErrorRecord{
		Kind:      kind,
		Fatal:     kind != ApplyIgnoredError,
		Timestamp: time.Now(),
		Err:       err,
	}

	if err != nil {
		record.Message = err.Error()
		record.Code = connector.SQLState(err)
		record.Detail = detailOf(err)
	}

	return record
}

// WithStage sets the stage the error happened in
func (r ErrorRecord) WithStage(stage State) ErrorRecord {
	r.Stage = stage
	return r
}

// WithCommand attaches the offending statement
func (r ErrorRecord) WithCommand(command string) ErrorRecord {
	r.Command = command
	return r
}

// WithCode sets the SQLSTATE code
func (r ErrorRecord) WithCode(code string) ErrorRecord {
	r.Code = code
	return r
}

// WithDetail replaces the extra detail
func (r ErrorRecord) WithDetail(detail string) ErrorRecord {
	r.Detail = detail
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Kind))

	if r.Code != "" {
		sb.WriteString(fmt.Sprintf("Code: %s ", r.Code))
	}

	sb.WriteString(r.Message)

	if r.Command != "" {
		sb.WriteString(fmt.Sprintf(" (Command: %s)", r.Command))
	}

	return sb.String()
}

// detailOf joins the details and hints attached to err
func detailOf(err error) string {
	parts := append(errors.GetAllDetails(err), errors.GetAllHints(err)...)
	return strings.Join(parts, "\n")
}

// markConnect tags err as a connection failure
func markConnect(err error) error {
	return errors.WithHint(errors.Mark(err, errConnect),
		"check the connection parameters and that the server is reachable")
}

// classify turns a stage failure into a fatal ErrorRecord
func classify(stage State, err error) ErrorRecord {
	kind := stageErrorKind(stage)
	if errors.Is(err, errConnect) || connector.IsConnectionError(err) {
		kind = ConnectionError
	}

	record := NewErrorRecord(kind, err).WithStage(stage)

	var stmtErr *applier.StatementError
	if errors.As(err, &stmtErr) {
		record = record.WithCommand(stmtErr.Statement).WithCode(stmtErr.Code)
	}

	return record
}

func stageErrorKind(stage State) ErrorKind {
	switch stage {
	case StateImporting:
		return ImportError
	case StateDiffing:
		return DiffComputationError
	case StatePersisting:
		return StorageWriteError
	default:
		return ApplyFatalError
	}
}

// ignoredRecord reports a statement error the applier skipped
func ignoredRecord(code, message, command string) ErrorRecord {
	record := NewErrorRecord(ApplyIgnoredError, nil).WithStage(StateApplying)
	record.Message = fmt.Sprintf("Error code %s found and ignored. Proceeding with apply.", code)
	return record.WithCode(code).WithDetail(message).WithCommand(command)
}
