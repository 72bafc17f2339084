package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/applier"
	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/converter"
	"github.com/David-Botos/schemadiff/pkg/diff"
	"github.com/David-Botos/schemadiff/pkg/importer"
	"github.com/David-Botos/schemadiff/pkg/model"
	"github.com/David-Botos/schemadiff/pkg/pipeline"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare a model with a database and save or apply the script",
	Long: `Imports the database structure, compares it with the model and either
writes the reconciliation script to --output or shows it and asks for
confirmation before applying it. Ctrl+C cancels at any point; statements
already applied stay applied.`,
	RunE: runDiff,
}

var errCancelled = errors.New("run cancelled")

var (
	modelPath   string
	outputPath  string
	schemaNames []string
	tableNames  []string
	assumeYes   bool
	verbose     bool
)

// diffBindings maps diff flags onto config keys
var diffBindings = map[string]string{
	"keep-cluster-objects":     "diff.keep_cluster_objects",
	"cascade":                  "diff.cascade",
	"truncate-tables":          "diff.truncate_tables",
	"force-recreation":         "diff.force_recreation",
	"recreate-unmodified":      "diff.recreate_unmodified",
	"keep-object-permissions":  "diff.keep_object_permissions",
	"reuse-sequences":          "diff.reuse_sequences",
	"target-version":           "diff.target_version",
	"ignore-duplicates":        "pipeline.ignore_duplicates",
	"ignore-error-codes":       "pipeline.ignored_error_codes",
	"import-system-objects":    "pipeline.import_system_objects",
	"import-extension-objects": "pipeline.import_extension_objects",
	"ignore-import-errors":     "pipeline.ignore_import_errors",
}

func init() {
	flags := diffCmd.Flags()
	flags.StringVarP(&modelPath, "model", "m", "", "Model file (YAML)")
	flags.StringVarP(&outputPath, "output", "o", "", "Write the script to this file instead of applying it")
	flags.StringSliceVar(&schemaNames, "schema", nil, "Only import these schemas")
	flags.StringSliceVar(&tableNames, "table", nil, "Only import these schema.table names")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "Apply without asking for confirmation")
	flags.BoolVarP(&verbose, "verbose", "v", false, "List every classified operation")

	flags.Bool("keep-cluster-objects", true, "Never create, alter or drop roles")
	flags.Bool("cascade", false, "Drop objects with CASCADE")
	flags.Bool("truncate-tables", false, "Truncate tables before altering their columns")
	flags.Bool("force-recreation", false, "Drop and recreate changed tables instead of altering them")
	flags.Bool("recreate-unmodified", false, "With --force-recreation, recreate unchanged tables too")
	flags.Bool("keep-object-permissions", true, "Never revoke privileges missing from the model")
	flags.Bool("reuse-sequences", true, "Alter existing sequences instead of recreating them")
	flags.String("target-version", "", "Server version to generate SQL for (default: the server's)")
	flags.Bool("ignore-duplicates", false, "Skip statements failing because the object already exists")
	flags.StringSlice("ignore-error-codes", nil, "SQLSTATE codes to report and skip while applying")
	flags.Bool("import-system-objects", false, "Import system schemas and roles")
	flags.Bool("import-extension-objects", false, "Import objects owned by extensions")
	flags.Bool("ignore-import-errors", false, "Skip tables whose catalog entries cannot be read")

	_ = diffCmd.MarkFlagRequired("model")
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, diffBindings)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	source, err := model.LoadFile(modelPath)
	if err != nil {
		return err
	}

	ctrl := newController(cfg, logger)
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("Failed to close pipeline controller", zap.Error(err))
		}
	}()

	interrupt, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(cmd.Context(), buildRequest(cfg, source)); err != nil {
		return err
	}

	r := newRenderer(ctrl, verbose)
	if assumeYes {
		r.confirm = func(string) (bool, error) { return true, nil }
	}

	outcome, err := r.run(interrupt)
	if err != nil {
		return err
	}
	return outcomeError(outcome)
}

// newController wires the real workers into a pipeline controller
func newController(cfg *config.Config, logger *zap.Logger) *pipeline.Controller {
	types := converter.NewTypeConverter(logger)
	factory := connector.NewConnectorFactory(logger)

	return pipeline.New(pipeline.Dependencies{
		Connect:  factory.Open,
		Importer: importer.New(types, importer.OptionsFromSettings(cfg.Pipeline), logger),
		Engine:   diff.New(types, logger),
		Applier:  applier.New(applier.OptionsFromSettings(cfg.Pipeline), logger),
	}, logger)
}

func buildRequest(cfg *config.Config, source *model.Database) pipeline.Request {
	req := pipeline.Request{
		Connection: cfg.Connection,
		Source:     source,
		Selection:  importer.Selection{Schemas: schemaNames, Tables: tableNames},
		Options:    diff.OptionsFromSettings(cfg.Diff),
		Output:     pipeline.OutputApply,
	}
	if outputPath != "" {
		req.Output = pipeline.OutputPersist
		req.OutputPath = outputPath
	}
	return req
}

// outcomeError turns a failed or cancelled run into the command's error
func outcomeError(outcome pipeline.Outcome) error {
	switch outcome.Kind {
	case pipeline.OutcomeFailed:
		if outcome.Error != nil {
			return errors.New(outcome.Error.String())
		}
		return errors.Newf("pipeline failed: %s", outcome.Message)
	case pipeline.OutcomeCancelled:
		return errCancelled
	default:
		return nil
	}
}
