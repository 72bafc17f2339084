// Package importer reads the structure of a live database into a model snapshot.
package importer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/converter"
	"github.com/David-Botos/schemadiff/pkg/event"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// Options controls which objects the importer reads
type Options struct {
	ImportSystemObjects    bool
	ImportExtensionObjects bool
	// Skip tables whose catalog entries cannot be read instead of failing
	IgnoreErrors bool
	// Per-query timeout; zero means no timeout beyond the caller's context
	QueryTimeout time.Duration
}

// OptionsFromSettings builds import options from the pipeline configuration
func OptionsFromSettings(s config.PipelineSettings) Options {
	return Options{
		ImportSystemObjects:    s.ImportSystemObjects,
		ImportExtensionObjects: s.ImportExtensionObjects,
		IgnoreErrors:           s.IgnoreImportErrors,
		QueryTimeout:           s.StatementTimeout,
	}
}

// Importer builds a model.Database from a server's catalog
type Importer struct {
	types  *converter.TypeConverter
	opts   Options
	logger *zap.Logger
}

// New creates a new Importer
func New(types *converter.TypeConverter, opts Options, logger *zap.Logger) *Importer {
	return &Importer{
		types:  types,
		opts:   opts,
		logger: logger.Named("importer"),
	}
}

// pendingTable is a table discovered while listing schemas, read in a second pass
type pendingTable struct {
	schema int
	row    namedRow
}

// Import reads the selected objects. It checks ctx between objects and returns
// ctx.Err() as soon as cancellation is observed.
func (i *Importer) Import(ctx context.Context, conn connector.DatabaseConnector, sel Selection, sink event.Sink) (*model.Database, error) {
	cat := newCatalog(conn, i.opts.QueryTimeout)
	logger := i.logger.With(zap.String("driver", conn.Driver()), zap.String("selection", sel.String()))
	logger.Info("Starting import")

	sink.Progress(event.Progress{Percent: 0, Message: "Retrieving server version", Category: model.ObjectDatabase})
	rawVersion, err := conn.ServerVersion(ctx)
	if err != nil {
		return nil, err
	}

	name, err := cat.currentDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current database: %w", err)
	}

	db := &model.Database{Name: name, Version: NormalizeVersion(rawVersion)}

	sink.Progress(event.Progress{Percent: 5, Message: "Retrieving roles", Category: model.ObjectRole})
	roles, err := cat.roles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	for _, r := range roles {
		if !i.opts.ImportSystemObjects && isSystemRole(r.Name) {
			continue
		}
		db.Roles = append(db.Roles, r)
	}

	sink.Progress(event.Progress{Percent: 10, Message: "Retrieving schemas", Category: model.ObjectSchema})
	schemas, err := cat.schemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schemas: %w", err)
	}

	extensionOwned := map[string]bool{}
	if !i.opts.ImportExtensionObjects {
		extensionOwned, err = cat.extensionObjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read extension objects: %w", err)
		}
	}

	var pending []pendingTable
	for _, s := range schemas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sel.IncludesSchema(s.Name) ||
			(!i.opts.ImportSystemObjects && cat.isSystemSchema(s.Name)) ||
			extensionOwned[objectKey(s.Name, "")] {
			continue
		}

		tables, err := cat.tables(ctx, s.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables of schema %s: %w", s.Name, err)
		}
		sequences, err := cat.sequences(ctx, s.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to list sequences of schema %s: %w", s.Name, err)
		}

		schema := model.Schema{Name: s.Name, Owner: s.Owner}
		for _, seq := range sequences {
			if extensionOwned[objectKey(s.Name, seq.Name)] {
				continue
			}
			schema.Sequences = append(schema.Sequences, seq)
		}
		db.Schemas = append(db.Schemas, schema)

		for _, t := range tables {
			if !sel.IncludesTable(s.Name, t.Name) || extensionOwned[objectKey(s.Name, t.Name)] {
				continue
			}
			pending = append(pending, pendingTable{schema: len(db.Schemas) - 1, row: t})
		}
	}

	for n, p := range pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		schema := &db.Schemas[p.schema]
		qualified := schema.Name + "." + p.row.Name
		sink.Progress(event.Progress{
			Percent:  15 + 80*n/len(pending),
			Message:  "Importing table " + qualified,
			Category: model.ObjectTable,
		})

		table, err := i.importTable(ctx, cat, schema.Name, p.row)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !i.opts.IgnoreErrors {
				return nil, fmt.Errorf("failed to import table %s: %w", qualified, err)
			}
			logger.Warn("Skipping table that could not be imported",
				zap.String("table", qualified),
				zap.Error(err))
			sink.Progress(event.Progress{
				Percent:  15 + 80*n/len(pending),
				Message:  fmt.Sprintf("Table %s skipped: %v", qualified, err),
				Category: model.ObjectTable,
			})
			continue
		}
		schema.Tables = append(schema.Tables, *table)
	}

	i.types.Resolve(db, conn.Driver() == config.DriverSnowflake)
	db.Normalize()

	logger.Info("Import finished",
		zap.String("database", db.Name),
		zap.String("version", db.Version),
		zap.Int("objects", db.ObjectCount()))
	sink.Progress(event.Progress{Percent: 100, Message: "Import finished", Category: model.ObjectDatabase})

	return db, nil
}

func (i *Importer) importTable(ctx context.Context, cat *catalog, schema string, row namedRow) (*model.TableMetadata, error) {
	columns, err := cat.columns(ctx, schema, row.Name)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	pk, pkName, err := cat.primaryKey(ctx, schema, row.Name)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}

	grants, err := cat.grants(ctx, schema, row.Name)
	if err != nil {
		return nil, fmt.Errorf("grants: %w", err)
	}

	return &model.TableMetadata{
		Schema:         schema,
		Table:          row.Name,
		Owner:          row.Owner,
		Columns:        columns,
		PrimaryKeys:    pk,
		PrimaryKeyName: pkName,
		Grants:         grants,
	}, nil
}

// ListDatabases returns the databases a connection can reach on its server
func ListDatabases(ctx context.Context, conn connector.DatabaseConnector) ([]string, error) {
	names, err := newCatalog(conn, 0).databases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return names, nil
}

var versionPattern = regexp.MustCompile(`^\d+(\.\d+)*`)

// NormalizeVersion trims build details: "15.4 (Debian 15.4-1)" becomes "15.4"
func NormalizeVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	if v := versionPattern.FindString(raw); v != "" {
		return v
	}
	return raw
}
