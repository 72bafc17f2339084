package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/model"
	"github.com/David-Botos/schemadiff/pkg/pipeline"
)

func TestBuildRequest(t *testing.T) {
	t.Cleanup(func() {
		outputPath, schemaNames, tableNames = "", nil, nil
	})

	cfg := &config.Config{
		Connection: config.ConnectionParams{Driver: config.DriverPgx},
		Diff:       config.DiffSettings{Cascade: true, TargetVersion: "13"},
	}
	source := &model.Database{Name: "shop"}

	schemaNames = []string{"sales"}
	req := buildRequest(cfg, source)
	assert.Equal(t, pipeline.OutputApply, req.Output)
	assert.Same(t, source, req.Source)
	assert.Equal(t, []string{"sales"}, req.Selection.Schemas)
	assert.True(t, req.Options.CascadeMode)
	assert.Equal(t, "13", req.Options.TargetVersion)

	outputPath = "reconcile.sql"
	req = buildRequest(cfg, source)
	assert.Equal(t, pipeline.OutputPersist, req.Output)
	assert.Equal(t, "reconcile.sql", req.OutputPath)
}

func TestOutcomeError(t *testing.T) {
	assert.NoError(t, outcomeError(pipeline.Outcome{Kind: pipeline.OutcomeSuccess}))
	assert.ErrorIs(t, outcomeError(pipeline.Outcome{Kind: pipeline.OutcomeCancelled}), errCancelled)

	record := pipeline.ErrorRecord{Kind: pipeline.ApplyFatalError, Code: "42601", Message: "syntax error"}
	err := outcomeError(pipeline.Outcome{Kind: pipeline.OutcomeFailed, Error: &record})
	require.Error(t, err)
	assert.Equal(t, "[ApplyFatalError] Code: 42601 syntax error", err.Error())
}

func TestProgressLine(t *testing.T) {
	e := pipeline.Event{Progress: 7, Message: "Importing tables", Category: model.ObjectTable}
	assert.Equal(t, "[  7%] Importing tables (table)", progressLine(e))

	e.Category = ""
	assert.Equal(t, "[  7%] Importing tables", progressLine(e))
}
