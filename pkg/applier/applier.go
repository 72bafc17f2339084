// Package applier executes a reconciliation script against a live database.
package applier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/event"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// DuplicateObjectCodes are the SQLSTATEs raised when an object being created already exists
var DuplicateObjectCodes = []string{
	"42P04", // duplicate_database
	"42P06", // duplicate_schema
	"42P07", // duplicate_table
	"42701", // duplicate_column
	"42710", // duplicate_object
	"42723", // duplicate_function
	"42P16", // invalid_table_definition, raised for a second primary key
}

// Options controls statement execution
type Options struct {
	// SQLSTATE codes that are reported and skipped instead of stopping the apply,
	// in addition to config.DefaultIgnoredErrorCodes which are always skipped.
	IgnoredCodes []string
	// Adds DuplicateObjectCodes to the ignored set
	IgnoreDuplicates bool
	// Per-statement timeout; zero means none
	StatementTimeout time.Duration
}

// OptionsFromSettings builds apply options from the pipeline configuration
func OptionsFromSettings(s config.PipelineSettings) Options {
	return Options{
		IgnoredCodes:     s.IgnoredErrorCodes,
		IgnoreDuplicates: s.IgnoreDuplicates,
		StatementTimeout: s.StatementTimeout,
	}
}

// Result summarizes an apply run
type Result struct {
	Executed int
	Ignored  []event.IgnoredError
}

// StatementError is the failure that stopped an apply
type StatementError struct {
	Index     int // 1-based
	Statement string
	Code      string
	Err       error
}

func (e *StatementError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("statement %d failed with code %s: %v", e.Index, e.Code, e.Err)
	}
	return fmt.Sprintf("statement %d failed: %v", e.Index, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Applier runs scripts statement by statement
type Applier struct {
	opts    Options
	ignored map[string]bool
	logger  *zap.Logger
}

// New creates an applier
func New(opts Options, logger *zap.Logger) *Applier {
	ignored := make(map[string]bool, len(config.DefaultIgnoredErrorCodes)+len(opts.IgnoredCodes)+len(DuplicateObjectCodes))
	for _, code := range config.DefaultIgnoredErrorCodes {
		ignored[code] = true
	}
	for _, code := range opts.IgnoredCodes {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			ignored[code] = true
		}
	}
	if opts.IgnoreDuplicates {
		for _, code := range DuplicateObjectCodes {
			ignored[code] = true
		}
	}

	return &Applier{
		opts:    opts,
		ignored: ignored,
		logger:  logger.Named("applier"),
	}
}

// IsIgnorable reports whether a statement failing with code may be skipped
func (a *Applier) IsIgnorable(code string) bool {
	return code != "" && a.ignored[strings.ToUpper(code)]
}

// Apply executes script in order on conn. Statements whose error code is
// ignorable are reported to sink and skipped; any other failure stops the run
// with a *StatementError and later statements never execute. Statements that
// already ran are not rolled back.
func (a *Applier) Apply(ctx context.Context, conn connector.DatabaseConnector, script string, sink event.Sink) (*Result, error) {
	statements := SplitStatements(script)
	result := &Result{}

	a.logger.Info("Applying script", zap.Int("statements", len(statements)))

	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sink.Progress(event.Progress{
			Percent:  i * 100 / len(statements),
			Message:  fmt.Sprintf("Executing statement %d of %d", i+1, len(statements)),
			Category: statementCategory(stmt),
			Command:  stmt,
		})

		if _, err := conn.ExecWithTimeout(ctx, stmt, a.opts.StatementTimeout); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			code := connector.SQLState(err)
			if a.IsIgnorable(code) {
				ignored := event.IgnoredError{Code: code, Message: connector.ErrorMessage(err), Command: stmt}
				result.Ignored = append(result.Ignored, ignored)
				a.logger.Warn("Ignoring statement error",
					zap.Int("statement", i+1),
					zap.String("code", code),
					zap.String("error", ignored.Message))
				sink.Ignored(ignored)
				continue
			}

			a.logger.Error("Statement failed",
				zap.Int("statement", i+1),
				zap.String("code", code),
				zap.Error(err))
			return result, &StatementError{Index: i + 1, Statement: stmt, Code: code, Err: err}
		}
		result.Executed++
	}

	a.logger.Info("Script applied",
		zap.Int("executed", result.Executed),
		zap.Int("ignored", len(result.Ignored)))
	sink.Progress(event.Progress{Percent: 100, Message: "Script applied", Category: model.ObjectDatabase})

	return result, nil
}

// statementCategory guesses the object type a statement acts on
func statementCategory(stmt string) model.ObjectType {
	upper := strings.ToUpper(strings.Join(strings.Fields(stmt), " "))
	switch {
	case strings.HasPrefix(upper, "GRANT "), strings.HasPrefix(upper, "REVOKE "):
		return model.ObjectPermission
	case strings.Contains(upper, " CONSTRAINT "):
		return model.ObjectConstraint
	case strings.Contains(upper, " COLUMN "):
		return model.ObjectColumn
	case strings.Contains(upper, " ROLE "):
		return model.ObjectRole
	case strings.Contains(upper, " SCHEMA "):
		return model.ObjectSchema
	case strings.Contains(upper, " SEQUENCE "):
		return model.ObjectSequence
	case strings.Contains(upper, " TABLE "), strings.HasPrefix(upper, "TRUNCATE "):
		return model.ObjectTable
	default:
		return model.ObjectDatabase
	}
}
