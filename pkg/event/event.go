// Package event defines the vocabulary the pipeline's workers report through.
package event

import (
	"sync"

	"github.com/David-Botos/schemadiff/pkg/model"
)

// Progress is a stage-local progress report. Percent is 0-100 within the emitting stage.
type Progress struct {
	Percent  int
	Message  string
	Category model.ObjectType
	Command  string
}

// IgnoredError is a statement failure the applier skipped because its code is ignorable
type IgnoredError struct {
	Code    string
	Message string
	Command string
}

// Sink receives reports from a running worker. Implementations must be safe
// for use from the worker's goroutine and must not block indefinitely.
type Sink interface {
	Progress(p Progress)
	Classified(op model.Operation)
	Ignored(e IgnoredError)
}

// Discard is a Sink that drops everything
var Discard Sink = discard{}

type discard struct{}

func (discard) Progress(Progress) {}
func (discard) Classified(model.Operation) {}
func (discard) Ignored(IgnoredError) {}

// Recorder is a Sink that keeps every report in order
type Recorder struct {
	mu         sync.Mutex
	progress   []Progress
	operations []model.Operation
	ignored    []IgnoredError
}

// Progress records p
func (r *Recorder) Progress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

// Classified records op
func (r *Recorder) Classified(op model.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, op)
}

// Ignored records e
func (r *Recorder) Ignored(e IgnoredError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ignored = append(r.ignored, e)
}

// ProgressEvents returns a copy of the recorded progress reports
func (r *Recorder) ProgressEvents() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Progress(nil), r.progress...)
}

// Operations returns a copy of the recorded classifications
func (r *Recorder) Operations() []model.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Operation(nil), r.operations...)
}

// IgnoredErrors returns a copy of the recorded ignored errors
func (r *Recorder) IgnoredErrors() []IgnoredError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]IgnoredError(nil), r.ignored...)
}
