package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/diff"
	"github.com/David-Botos/schemadiff/pkg/importer"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// Request describes one pipeline run
type Request struct {
	Connection config.ConnectionParams
	// Borrowed; must not change until the run ends
	Source    *model.Database
	Selection importer.Selection
	Options   diff.Options
	Output    OutputMode
	// Destination of the script with OutputPersist
	OutputPath string
}

func (r Request) validate() error {
	if r.Source == nil {
		return errors.New("source model is required")
	}
	switch r.Output {
	case OutputApply:
	case OutputPersist:
		if r.OutputPath == "" {
			return errors.New("output path is required to persist the script")
		}
	default:
		return errors.Newf("unknown output mode %d", int(r.Output))
	}
	return nil
}

// run holds everything owned by one pipeline run
type run struct {
	id  string
	gen uint64
	req Request
	// Private copy used to open connections; zeroed at teardown
	params    config.ConnectionParams
	imported  *model.Database
	result    *diff.Result
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{} // closed when the current worker exits
	createdAt time.Time
}

// newRun copies everything the caller may change after Start returns
func newRun(gen uint64, req Request) *run {
	ctx, cancel := context.WithCancel(context.Background())

	cloned := req
	cloned.Connection = req.Connection.Clone()
	cloned.Selection = req.Selection.Clone()

	return &run{
		id:        uuid.New().String(),
		gen:       gen,
		req:       cloned,
		params:    req.Connection.Clone(),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
	}
}

// targetVersion is the override from the options or the imported server version
func (r *run) targetVersion() string {
	if r.req.Options.TargetVersion != "" {
		return r.req.Options.TargetVersion
	}
	if r.imported != nil {
		return r.imported.Version
	}
	return ""
}

// wait blocks until the current worker, if any, has exited
func (r *run) wait() {
	if r.done != nil {
		<-r.done
	}
}

// stop cancels the worker and waits for it
func (r *run) stop() {
	r.cancel()
	r.wait()
}

// release drops the models and the private connection parameters
func (r *run) release() {
	r.imported = nil
	r.result = nil
	r.params = config.ConnectionParams{}
	r.req = Request{}
}
