package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/schemadiff/pkg/applier"
	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/diff"
	"github.com/David-Botos/schemadiff/pkg/event"
	"github.com/David-Botos/schemadiff/pkg/importer"
	"github.com/David-Botos/schemadiff/pkg/model"
)

const testTimeout = 5 * time.Second

// fakeConn only supports Close and Driver
type fakeConn struct {
	connector.DatabaseConnector
	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) Driver() string { return config.DriverPgx }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeConnector struct {
	mu     sync.Mutex
	err    error
	queued []connector.DatabaseConnector // handed out before fresh fakes
	opened []*fakeConn
	params []config.ConnectionParams
}

func (f *fakeConnector) Connect(_ context.Context, params config.ConnectionParams) (connector.DatabaseConnector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.queued) > 0 {
		conn := f.queued[0]
		f.queued = f.queued[1:]
		return conn, nil
	}
	conn := &fakeConn{}
	f.opened = append(f.opened, conn)
	return conn, nil
}

func (f *fakeConnector) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.opened {
		if !conn.isClosed() {
			return false
		}
	}
	return true
}

func (f *fakeConnector) connectParams() []config.ConnectionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]config.ConnectionParams(nil), f.params...)
}

// gate blocks a fake worker until its context is cancelled and reports when it got there
type gate struct {
	block   bool
	started chan struct{}
	once    sync.Once
}

func newGate(block bool) *gate {
	return &gate{block: block, started: make(chan struct{})}
}

func (g *gate) enter(ctx context.Context) error {
	g.once.Do(func() { close(g.started) })
	if g.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(testTimeout):
		t.Fatal("worker never started")
	}
}

type fakeImporter struct {
	*gate
	db  *model.Database
	err error

	mu         sync.Mutex
	selections []importer.Selection
}

func (f *fakeImporter) Import(ctx context.Context, _ connector.DatabaseConnector, sel importer.Selection, sink event.Sink) (*model.Database, error) {
	f.mu.Lock()
	f.selections = append(f.selections, sel)
	f.mu.Unlock()

	sink.Progress(event.Progress{Percent: 0, Message: "Retrieving roles", Category: model.ObjectRole})
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	sink.Progress(event.Progress{Percent: 50, Message: "Importing tables", Category: model.ObjectTable})
	sink.Progress(event.Progress{Percent: 100, Message: "Import finished", Category: model.ObjectDatabase})
	return f.db, f.err
}

type fakeEngine struct {
	*gate
	result *diff.Result
	err    error

	mu     sync.Mutex
	inputs []diff.Input
}

func (f *fakeEngine) Diff(ctx context.Context, in diff.Input, sink event.Sink) (*diff.Result, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	sink.Progress(event.Progress{Percent: 0, Message: "Comparing roles", Category: model.ObjectRole})
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	if f.result != nil {
		for _, op := range f.result.Operations {
			sink.Classified(op)
		}
	}
	sink.Progress(event.Progress{Percent: 100, Message: "Diff finished", Category: model.ObjectDatabase})
	return f.result, f.err
}

func (f *fakeEngine) recordedInputs() []diff.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]diff.Input(nil), f.inputs...)
}

type fakeApplier struct {
	*gate
	ignored []event.IgnoredError
	err     error

	mu      sync.Mutex
	scripts []string
}

func (f *fakeApplier) Apply(ctx context.Context, _ connector.DatabaseConnector, script string, sink event.Sink) (*applier.Result, error) {
	f.mu.Lock()
	f.scripts = append(f.scripts, script)
	f.mu.Unlock()

	sink.Progress(event.Progress{Percent: 0, Message: "Executing statement 1", Category: model.ObjectTable, Command: "CREATE TABLE a ()"})
	if err := f.enter(ctx); err != nil {
		return &applier.Result{}, err
	}
	for _, e := range f.ignored {
		sink.Ignored(e)
	}
	sink.Progress(event.Progress{Percent: 100, Message: "Script applied", Category: model.ObjectDatabase})
	return &applier.Result{Executed: 3 - len(f.ignored), Ignored: f.ignored}, f.err
}

func (f *fakeApplier) appliedScripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scripts...)
}

// harness wires fakes into a controller and records its feed
type harness struct {
	t         *testing.T
	c         *Controller
	connector *fakeConnector
	importer  *fakeImporter
	engine    *fakeEngine
	applier   *fakeApplier
	events    []Event
}

func newHarness(t *testing.T, result *diff.Result) *harness {
	h := &harness{
		t:         t,
		connector: &fakeConnector{},
		importer:  &fakeImporter{gate: newGate(false), db: importedModel()},
		engine:    &fakeEngine{gate: newGate(false), result: result},
		applier:   &fakeApplier{gate: newGate(false)},
	}
	return h
}

// build creates the controller; fakes may be adjusted until then
func (h *harness) build(deps ...func(*Dependencies)) *Controller {
	d := Dependencies{
		Connect:  h.connector.Connect,
		Importer: h.importer,
		Engine:   h.engine,
		Applier:  h.applier,
	}
	for _, fn := range deps {
		fn(&d)
	}

	h.c = New(d, zaptest.NewLogger(h.t))
	h.t.Cleanup(func() {
		_ = h.c.Cancel(false)
		_ = h.c.Close()
	})
	return h.c
}

// until reads the feed up to and including the first event of typ
func (h *harness) until(typ EventType) Event {
	h.t.Helper()
	timeout := time.After(testTimeout)
	for {
		select {
		case e, ok := <-h.c.Events():
			require.True(h.t, ok, "feed closed while waiting for %s", typ)
			h.events = append(h.events, e)
			if e.Type == typ {
				return e
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func (h *harness) ofType(typ EventType) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (h *harness) stagesStarted() []State {
	var out []State
	for _, e := range h.ofType(EventStageStarted) {
		out = append(out, e.Stage)
	}
	return out
}

func (h *harness) runIsReleased() bool {
	var released bool
	require.NoError(h.t, h.c.do(context.Background(), func() error {
		released = h.c.run == nil
		return nil
	}))
	return released
}

func testParams() config.ConnectionParams {
	return config.ConnectionParams{
		Driver: config.DriverPgx,
		Postgres: config.PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "shop",
			SSLMode:  "disable",
		},
	}
}

func sourceModel() *model.Database {
	return &model.Database{
		Name: "shop",
		Schemas: []model.Schema{{
			Name: "sales",
			Tables: []model.TableMetadata{{
				Schema:  "sales",
				Table:   "orders",
				Columns: []model.Column{{Name: "id", DataType: "integer"}},
			}},
		}},
	}
}

func importedModel() *model.Database {
	return &model.Database{Name: "shop", Version: "15.4", Schemas: []model.Schema{{Name: "sales"}}}
}

const threeOpScript = "CREATE TABLE \"sales\".\"orders\" (\"id\" integer NOT NULL);\n" +
	"ALTER SCHEMA \"sales\" OWNER TO \"app\";\n" +
	"DROP TABLE \"sales\".\"legacy\";\n"

func threeOpResult() *diff.Result {
	return &diff.Result{
		Operations: []model.Operation{
			{
				Kind:        model.DiffCreate,
				Object:      model.ObjectRef{Type: model.ObjectTable, Schema: "sales", Name: "orders"},
				Description: "create table sales.orders",
				SQL:         []string{`CREATE TABLE "sales"."orders" ("id" integer NOT NULL)`},
			},
			{
				Kind:        model.DiffAlter,
				Object:      model.ObjectRef{Type: model.ObjectSchema, Name: "sales"},
				Description: "alter schema sales",
				SQL:         []string{`ALTER SCHEMA "sales" OWNER TO "app"`},
			},
			{
				Kind:        model.DiffDrop,
				Object:      model.ObjectRef{Type: model.ObjectTable, Schema: "sales", Name: "legacy"},
				Description: "drop table sales.legacy",
				SQL:         []string{`DROP TABLE "sales"."legacy"`},
			},
		},
		Script: threeOpScript,
	}
}
