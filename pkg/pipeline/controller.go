// Package pipeline runs import, diff and apply as one cancellable workflow.
//
// A single dispatch goroutine owns all controller state. Workers and public
// methods reach it only through one ordered inbox, so handlers never
// interleave. Every worker message carries the generation of the run that
// launched it together with its stage, and anything that no longer matches
// the current run and state is dropped.
package pipeline

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/applier"
	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/diff"
	"github.com/David-Botos/schemadiff/pkg/event"
	"github.com/David-Botos/schemadiff/pkg/importer"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// Connector opens a connection for one stage. The stage closes it.
type Connector func(ctx context.Context, params config.ConnectionParams) (connector.DatabaseConnector, error)

// SnapshotImporter reads a database into a model
type SnapshotImporter interface {
	Import(ctx context.Context, conn connector.DatabaseConnector, sel importer.Selection, sink event.Sink) (*model.Database, error)
}

// DiffEngine compares two models
type DiffEngine interface {
	Diff(ctx context.Context, in diff.Input, sink event.Sink) (*diff.Result, error)
}

// ScriptApplier executes a script
type ScriptApplier interface {
	Apply(ctx context.Context, conn connector.DatabaseConnector, script string, sink event.Sink) (*applier.Result, error)
}

// Dependencies are the workers the controller drives
type Dependencies struct {
	Connect  Connector
	Importer SnapshotImporter
	Engine   DiffEngine
	Applier  ScriptApplier
	// Defaults to WriteScriptFile
	WriteScript func(path, script string) error
}

// Controller sequences the pipeline stages and publishes their events
type Controller struct {
	deps   Dependencies
	logger *zap.Logger

	inbox   chan any
	stopped chan struct{}
	feed    *feed
	state   atomic.Int32

	// Owned by the dispatch goroutine
	current   State
	run       *run
	lastRunID string
	gen       uint64
	progress  progressTracker
	counts    map[model.DiffKind]int
	metrics   *RunMetrics
	closing   bool
}

// New creates a controller and starts its dispatch goroutine
func New(deps Dependencies, logger *zap.Logger) *Controller {
	if deps.WriteScript == nil {
		deps.WriteScript = WriteScriptFile
	}

	c := &Controller{
		deps:    deps,
		logger:  logger.Named("pipeline"),
		inbox:   make(chan any),
		stopped: make(chan struct{}),
		feed:    newFeed(),
		counts:  make(map[model.DiffKind]int),
	}
	go c.loop()
	return c
}

// Inbox messages
type (
	command struct {
		fn    func() error
		reply chan error
	}
	progressMsg struct {
		gen      uint64
		stage    State
		progress event.Progress
	}
	classifiedMsg struct {
		gen   uint64
		stage State
		op    model.Operation
	}
	ignoredMsg struct {
		gen     uint64
		stage   State
		ignored event.IgnoredError
	}
	importDoneMsg struct {
		gen uint64
		db  *model.Database
		err error
	}
	diffDoneMsg struct {
		gen    uint64
		result *diff.Result
		err    error
	}
	applyDoneMsg struct {
		gen    uint64
		result *applier.Result
		err    error
	}
)

func (c *Controller) loop() {
	defer close(c.stopped)
	defer c.feed.close()

	for msg := range c.inbox {
		switch m := msg.(type) {
		case command:
			m.reply <- m.fn()
		case progressMsg:
			c.handleProgress(m)
		case classifiedMsg:
			c.handleClassified(m)
		case ignoredMsg:
			c.handleIgnored(m)
		case importDoneMsg:
			c.handleImportDone(m)
		case diffDoneMsg:
			c.handleDiffDone(m)
		case applyDoneMsg:
			c.handleApplyDone(m)
		}

		if c.closing {
			c.logger.Info("Pipeline controller closed")
			return
		}
	}
}

// do runs fn on the dispatch goroutine and returns its error
func (c *Controller) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case c.inbox <- cmd:
	case <-c.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.reply
}

// Start begins a run. It returns once the run is importing; everything else
// arrives on the event feed.
func (c *Controller) Start(ctx context.Context, req Request) error {
	return c.do(ctx, func() error { return c.start(req) })
}

// Confirm resumes a run paused for confirmation. Proceeding applies the
// script; declining cancels the run as if the user had.
func (c *Controller) Confirm(proceed bool) error {
	return c.do(context.Background(), func() error { return c.confirm(proceed) })
}

// Cancel stops the active run and waits for its worker to exit. Statements
// already applied stay applied. It is a no-op when no run is active.
func (c *Controller) Cancel(byUser bool) error {
	return c.do(context.Background(), func() error {
		c.cancel(byUser)
		return nil
	})
}

// Close stops the controller and closes the event feed. It fails with ErrBusy
// while a stage runs or a confirmation is pending.
func (c *Controller) Close() error {
	return c.do(context.Background(), func() error {
		if c.current.busy() {
			return errors.WithDetailf(ErrBusy, "state is %s", c.current)
		}
		c.closing = true
		return nil
	})
}

// Events returns the ordered event feed. It is closed after Close.
func (c *Controller) Events() <-chan Event {
	return c.feed.out
}

// State returns the current state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// DiffTypeCount returns how many operations of kind the current or last run classified
func (c *Controller) DiffTypeCount(kind model.DiffKind) int {
	var n int
	_ = c.do(context.Background(), func() error {
		n = c.counts[kind]
		return nil
	})
	return n
}

// PendingScript returns the script awaiting confirmation
func (c *Controller) PendingScript() (string, error) {
	var script string
	err := c.do(context.Background(), func() error {
		if c.current != StateAwaitingConfirmation {
			return ErrInvalidState
		}
		script = c.run.result.Script
		return nil
	})
	return script, err
}

// Metrics returns the metrics of the current or last run
func (c *Controller) Metrics() (MetricsSummary, bool) {
	var (
		summary MetricsSummary
		ok      bool
	)
	_ = c.do(context.Background(), func() error {
		if c.metrics != nil {
			summary, ok = c.metrics.Summary(), true
		}
		return nil
	})
	return summary, ok
}

func (c *Controller) setState(s State) {
	if c.current != s {
		c.logger.Debug("State changed",
			zap.String("from", c.current.String()),
			zap.String("to", s.String()))
	}
	c.current = s
	c.state.Store(int32(s))
}

func (c *Controller) publish(e Event) {
	e.RunID = c.lastRunID
	e.Time = time.Now()
	c.feed.publish(e)
}

func (c *Controller) publishProgress(percent int, message string, category model.ObjectType, command string) {
	c.publish(Event{
		Type:     EventProgressUpdated,
		Stage:    c.current,
		Progress: c.progress.advance(percent),
		Message:  message,
		Category: category,
		Command:  command,
	})
}

// isCurrent reports whether a worker message belongs to the active run and stage
func (c *Controller) isCurrent(gen uint64, stage State) bool {
	return c.run != nil && c.run.gen == gen && c.current == stage
}

func (c *Controller) enterStage(stage State) {
	c.setState(stage)
	c.metrics.StageStarted(stage)
	c.publish(Event{Type: EventStageStarted, Stage: stage})
}

func (c *Controller) finishStage(stage State) {
	c.metrics.StageFinished(stage)
	c.publish(Event{Type: EventStageCompleted, Stage: stage})
}

// launch runs work on its own goroutine. Its result is sent to the inbox
// unless the run is cancelled first.
func (c *Controller) launch(stage State, work func(ctx context.Context, sink event.Sink) any) {
	r := c.run
	done := make(chan struct{})
	r.done = done

	ctx := r.ctx
	sink := &stageSink{c: c, ctx: ctx, gen: r.gen, stage: stage}
	go func() {
		defer close(done)
		c.send(ctx, work(ctx, sink))
	}()
}

// send delivers a worker message; it gives up once ctx is cancelled
func (c *Controller) send(ctx context.Context, msg any) {
	select {
	case c.inbox <- msg:
	case <-ctx.Done():
	}
}

func (c *Controller) start(req Request) error {
	if c.current.active() {
		return errors.WithDetailf(ErrAlreadyRunning, "state is %s", c.current)
	}
	if err := req.validate(); err != nil {
		return err
	}

	c.stopRun()
	c.gen++
	c.run = newRun(c.gen, req)
	c.lastRunID = c.run.id
	c.progress.reset()
	c.counts = make(map[model.DiffKind]int)
	c.metrics = NewRunMetrics(c.run.id, c.logger)

	c.logger.Info("Starting pipeline run",
		zap.String("runID", c.run.id),
		zap.String("target", c.run.params.Target()),
		zap.String("output", req.Output.String()),
		zap.String("selection", req.Selection.String()))

	c.startImport()
	return nil
}

func (c *Controller) startImport() {
	c.enterStage(StateImporting)
	c.publishProgress(0, "Importing database structure", model.ObjectDatabase, "")

	gen := c.run.gen
	params := c.run.params.Clone()
	sel := c.run.req.Selection
	c.launch(StateImporting, func(ctx context.Context, sink event.Sink) any {
		conn, err := c.deps.Connect(ctx, params)
		if err != nil {
			return importDoneMsg{gen: gen, err: markConnect(err)}
		}
		defer c.closeConn(conn)

		db, err := c.deps.Importer.Import(ctx, conn, sel, sink)
		return importDoneMsg{gen: gen, db: db, err: err}
	})
}

func (c *Controller) handleImportDone(m importDoneMsg) {
	if !c.isCurrent(m.gen, StateImporting) {
		c.logger.Debug("Dropping stale import result", zap.Uint64("gen", m.gen))
		return
	}
	c.run.wait()
	c.finishStage(StateImporting)

	if m.err != nil {
		c.fail(StateImporting, m.err)
		return
	}
	if m.db == nil {
		c.fail(StateImporting, errors.New("importer returned no model"))
		return
	}

	c.run.imported = m.db
	c.metrics.RecordImport(m.db.ObjectCount())
	c.progress.advance(importCeiling)
	c.startDiff()
}

func (c *Controller) startDiff() {
	c.enterStage(StateDiffing)
	c.progress.bank()

	gen := c.run.gen
	in := diff.Input{
		Source:        c.run.req.Source,
		Imported:      c.run.imported,
		Options:       c.run.req.Options,
		Selection:     c.run.req.Selection,
		TargetVersion: c.run.targetVersion(),
	}
	c.launch(StateDiffing, func(ctx context.Context, sink event.Sink) any {
		result, err := c.deps.Engine.Diff(ctx, in, sink)
		return diffDoneMsg{gen: gen, result: result, err: err}
	})
}

func (c *Controller) handleDiffDone(m diffDoneMsg) {
	if !c.isCurrent(m.gen, StateDiffing) {
		c.logger.Debug("Dropping stale diff result", zap.Uint64("gen", m.gen))
		return
	}
	c.run.wait()
	c.finishStage(StateDiffing)

	if m.err != nil {
		c.fail(StateDiffing, m.err)
		return
	}
	if m.result == nil {
		c.fail(StateDiffing, errors.New("diff engine returned no result"))
		return
	}

	c.run.result = m.result
	if strings.TrimSpace(m.result.Script) == "" {
		c.complete(successOutcome("", false, msgNoDifferences))
		return
	}

	switch c.run.req.Output {
	case OutputPersist:
		c.persist()
	default:
		c.setState(StateAwaitingConfirmation)
		c.publish(Event{
			Type:    EventConfirmationRequested,
			Stage:   StateAwaitingConfirmation,
			Script:  m.result.Script,
			Message: "Review the script and confirm to apply it to the database.",
		})
	}
}

// persist writes the script synchronously on the dispatch goroutine
func (c *Controller) persist() {
	path := c.run.req.OutputPath
	script := c.run.result.Script

	c.enterStage(StatePersisting)
	c.publishProgress(persistProgress, "Saving script to "+path, model.ObjectDatabase, "")

	if err := c.deps.WriteScript(path, script); err != nil {
		c.finishStage(StatePersisting)
		c.fail(StatePersisting, err)
		return
	}

	c.finishStage(StatePersisting)
	c.logger.Info("Script saved", zap.String("path", path), zap.Int("bytes", len(script)))
	c.complete(successOutcome(script, true, "Script saved to "+path))
}

func (c *Controller) confirm(proceed bool) error {
	if c.current != StateAwaitingConfirmation {
		return errors.WithDetailf(ErrInvalidState, "state is %s", c.current)
	}
	if !proceed {
		c.cancel(true)
		return nil
	}

	c.enterStage(StateApplying)
	c.progress.bank()

	gen := c.run.gen
	params := c.run.params.Clone()
	script := c.run.result.Script
	c.launch(StateApplying, func(ctx context.Context, sink event.Sink) any {
		conn, err := c.deps.Connect(ctx, params)
		if err != nil {
			return applyDoneMsg{gen: gen, err: markConnect(err)}
		}
		defer c.closeConn(conn)

		result, err := c.deps.Applier.Apply(ctx, conn, script, sink)
		return applyDoneMsg{gen: gen, result: result, err: err}
	})
	return nil
}

func (c *Controller) handleApplyDone(m applyDoneMsg) {
	if !c.isCurrent(m.gen, StateApplying) {
		c.logger.Debug("Dropping stale apply result", zap.Uint64("gen", m.gen))
		return
	}
	c.run.wait()
	c.finishStage(StateApplying)
	c.metrics.RecordApply(m.result)

	if m.err != nil {
		c.fail(StateApplying, m.err)
		return
	}

	c.complete(successOutcome(c.run.result.Script, true, "Script applied to the database"))
}

func (c *Controller) handleProgress(m progressMsg) {
	if !c.isCurrent(m.gen, m.stage) {
		return
	}
	p := m.progress
	c.publishProgress(c.progress.overall(m.stage, p.Percent), p.Message, p.Category, p.Command)
}

func (c *Controller) handleClassified(m classifiedMsg) {
	if !c.isCurrent(m.gen, m.stage) {
		return
	}
	c.counts[m.op.Kind]++
	c.metrics.RecordOperation(m.op.Kind)

	op := m.op
	c.publish(Event{
		Type:      EventDiffOperationClassified,
		Stage:     m.stage,
		Operation: &op,
		Message:   op.Description,
		Category:  op.Category(),
	})
}

func (c *Controller) handleIgnored(m ignoredMsg) {
	if !c.isCurrent(m.gen, m.stage) {
		return
	}
	record := ignoredRecord(m.ignored.Code, m.ignored.Message, m.ignored.Command)
	c.logger.Warn("Statement error ignored",
		zap.String("code", record.Code),
		zap.String("error", record.Detail))
	c.publish(Event{Type: EventErrorOccurred, Stage: m.stage, Error: &record, Message: record.Message})
}

// cancel tears the run down. Only a user cancel is announced on the feed.
func (c *Controller) cancel(byUser bool) {
	if c.run == nil || !c.current.active() {
		return
	}

	c.logger.Info("Cancelling pipeline run",
		zap.String("runID", c.run.id),
		zap.String("state", c.current.String()),
		zap.Bool("byUser", byUser))

	c.setState(StateCancelling)
	c.stopRun()
	c.setState(StateIdle)

	if byUser {
		c.finishMetrics(OutcomeCancelled)
		c.publish(Event{
			Type:    EventPipelineCompleted,
			Stage:   StateIdle,
			Message: msgCancelledByUser,
			Outcome: &Outcome{Kind: OutcomeCancelled, Message: msgCancelledByUser},
		})
	}
}

// fail reports a fatal error, tears the run down and rests in Failed
func (c *Controller) fail(stage State, err error) {
	record := classify(stage, err)
	c.logger.Error("Pipeline stage failed",
		zap.String("stage", stage.String()),
		zap.String("kind", record.Kind.String()),
		zap.Error(err))
	c.publish(Event{Type: EventErrorOccurred, Stage: stage, Error: &record, Message: record.Message})

	c.cancel(false)
	c.setState(StateFailed)

	c.finishMetrics(OutcomeFailed)
	c.publish(Event{
		Type:    EventPipelineCompleted,
		Stage:   StateFailed,
		Message: record.Message,
		Outcome: &Outcome{Kind: OutcomeFailed, Error: &record, Message: record.Message},
	})
}

func (c *Controller) complete(outcome Outcome) {
	c.stopRun()
	c.publishProgress(100, outcome.Message, model.ObjectDatabase, "")
	c.setState(StateCompleted)

	c.finishMetrics(OutcomeSuccess)
	c.publish(Event{
		Type:    EventPipelineCompleted,
		Stage:   StateCompleted,
		Message: outcome.Message,
		Outcome: &outcome,
	})
}

func (c *Controller) finishMetrics(outcome OutcomeKind) {
	if c.metrics == nil {
		return
	}
	c.metrics.Finish(outcome)
	c.metrics.LogSummary()
}

// stopRun cancels and waits for the worker, then drops everything the run owned
func (c *Controller) stopRun() {
	if c.run == nil {
		return
	}
	c.run.stop()
	c.run.release()
	c.run = nil
}

func (c *Controller) closeConn(conn connector.DatabaseConnector) {
	if err := conn.Close(); err != nil {
		c.logger.Warn("Failed to close connection", zap.Error(err))
	}
}

// stageSink forwards a worker's reports to the inbox
type stageSink struct {
	c     *Controller
	ctx   context.Context
	gen   uint64
	stage State
}

func (s *stageSink) Progress(p event.Progress) {
	s.c.send(s.ctx, progressMsg{gen: s.gen, stage: s.stage, progress: p})
}

func (s *stageSink) Classified(op model.Operation) {
	s.c.send(s.ctx, classifiedMsg{gen: s.gen, stage: s.stage, op: op})
}

func (s *stageSink) Ignored(e event.IgnoredError) {
	s.c.send(s.ctx, ignoredMsg{gen: s.gen, stage: s.stage, ignored: e})
}
