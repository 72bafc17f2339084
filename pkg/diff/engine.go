// Package diff compares a source model with a model imported from a live
// database and produces the operations that reconcile the database with the
// source, in an order the database will accept.
package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/converter"
	"github.com/David-Botos/schemadiff/pkg/event"
	"github.com/David-Botos/schemadiff/pkg/importer"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// Input is everything one diff run needs
type Input struct {
	Source   *model.Database
	Imported *model.Database
	Options  Options
	// Objects the import was restricted to. Source objects outside it are
	// not compared, since the imported side cannot contain them.
	Selection importer.Selection
	// Resolved server version; falls back to Options.TargetVersion, then Imported.Version
	TargetVersion string
}

// Result holds the classified operations in execution order and the rendered script
type Result struct {
	Operations []model.Operation
	// Empty when no operation carries SQL
	Script string
}

// Count returns the number of operations of the given kind
func (r *Result) Count(kind model.DiffKind) int {
	n := 0
	for _, op := range r.Operations {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Engine computes differences between two models
type Engine struct {
	types  *converter.TypeConverter
	logger *zap.Logger
}

// New creates a diff engine
func New(types *converter.TypeConverter, logger *zap.Logger) *Engine {
	return &Engine{
		types:  types,
		logger: logger.Named("diff"),
	}
}

// Operations are grouped in phases so that dependencies exist before
// dependents and are dropped after them.
const (
	phaseCreateRoles = iota
	phaseAlterRoles
	phaseCreateSchemas
	phaseAlterSchemas
	phaseSequences
	phaseTables
	phaseAlterTables
	phasePermissions
	phaseDropTables
	phaseDropSequences
	phaseDropSchemas
	phaseDropRoles
	phaseCount
)

type planner struct {
	engine *Engine
	opts   Options
	feat   features
	phases [phaseCount][]model.Operation
}

func (p *planner) add(phase int, op model.Operation) {
	if op.Description == "" {
		op.Description = fmt.Sprintf("%s %s %s", op.Kind, op.Object.Type, op.Object)
	}
	p.phases[phase] = append(p.phases[phase], op)
}

func (p *planner) ignore(phase int, ref model.ObjectRef, what, reason string) {
	p.add(phase, model.Operation{
		Kind:        model.DiffIgnore,
		Object:      ref,
		Description: fmt.Sprintf("ignore %s (%s)", what, reason),
	})
}

// Diff compares in.Source against in.Imported. Neither model is modified.
// Classified operations are reported to sink in their final order.
func (e *Engine) Diff(ctx context.Context, in Input, sink event.Sink) (*Result, error) {
	if in.Source == nil {
		return nil, errors.New("source model is missing")
	}
	if in.Imported == nil {
		return nil, errors.New("imported model is missing")
	}
	if err := in.Source.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid source model")
	}

	version := in.TargetVersion
	if version == "" {
		version = in.Options.TargetVersion
	}
	if version == "" {
		version = in.Imported.Version
	}
	feat, err := resolveFeatures(version)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With(
		zap.String("database", in.Imported.Name),
		zap.String("targetVersion", version))
	logger.Info("Starting diff")

	p := &planner{engine: e, opts: in.Options, feat: feat}
	src := scoped(in.Source, in.Selection)

	sink.Progress(event.Progress{Percent: 0, Message: "Comparing roles", Category: model.ObjectRole})
	p.diffRoles(src, in.Imported)

	sink.Progress(event.Progress{Percent: 10, Message: "Comparing schemas", Category: model.ObjectSchema})
	schemaNames := mergedNames(src, in.Imported)
	for n, name := range schemaNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.diffSchema(ctx, src.Schema(name), in.Imported.Schema(name)); err != nil {
			return nil, err
		}
		sink.Progress(event.Progress{
			Percent:  20 + 70*(n+1)/len(schemaNames),
			Message:  "Compared schema " + name,
			Category: model.ObjectSchema,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{}
	for _, ops := range p.phases {
		result.Operations = append(result.Operations, ops...)
	}
	for _, op := range result.Operations {
		sink.Classified(op)
	}
	result.Script = renderScript(in.Imported.Name, version, result)

	logger.Info("Diff finished",
		zap.Int("create", result.Count(model.DiffCreate)),
		zap.Int("drop", result.Count(model.DiffDrop)),
		zap.Int("alter", result.Count(model.DiffAlter)),
		zap.Int("ignore", result.Count(model.DiffIgnore)))
	sink.Progress(event.Progress{Percent: 100, Message: "Diff finished", Category: model.ObjectDatabase})

	return result, nil
}

// scoped returns the part of db the selection covers, mirroring what the
// importer reads: sequences follow their schema, tables are matched by name.
// db itself is left untouched.
func scoped(db *model.Database, sel importer.Selection) *model.Database {
	if len(sel.Schemas) == 0 && len(sel.Tables) == 0 {
		return db
	}
	out := *db
	out.Schemas = nil
	for _, s := range db.Schemas {
		if !sel.IncludesSchema(s.Name) {
			continue
		}
		tables := make([]model.TableMetadata, 0, len(s.Tables))
		for _, t := range s.Tables {
			if sel.IncludesTable(s.Name, t.Table) {
				tables = append(tables, t)
			}
		}
		s.Tables = tables
		out.Schemas = append(out.Schemas, s)
	}
	return &out
}

// mergedNames returns schema names of src followed by those only in imp
func mergedNames(src, imp *model.Database) []string {
	names := make([]string, 0, len(src.Schemas)+len(imp.Schemas))
	for _, s := range src.Schemas {
		names = append(names, s.Name)
	}
	for _, s := range imp.Schemas {
		if src.Schema(s.Name) == nil {
			names = append(names, s.Name)
		}
	}
	return names
}

func (p *planner) diffRoles(src, imp *model.Database) {
	for i := range src.Roles {
		role := &src.Roles[i]
		ref := model.ObjectRef{Type: model.ObjectRole, Name: role.Name}
		existing := imp.Role(role.Name)

		switch {
		case existing == nil:
			p.add(phaseCreateRoles, model.Operation{
				Kind:   model.DiffCreate,
				Object: ref,
				SQL:    []string{fmt.Sprintf("CREATE ROLE %s %s", quote(role.Name), loginClause(role.CanLogin))},
			})
		case existing.CanLogin != role.CanLogin:
			if p.opts.KeepClusterObjects {
				p.ignore(phaseAlterRoles, ref, "role "+role.Name, "cluster objects are kept")
				continue
			}
			p.add(phaseAlterRoles, model.Operation{
				Kind:   model.DiffAlter,
				Object: ref,
				SQL:    []string{fmt.Sprintf("ALTER ROLE %s %s", quote(role.Name), loginClause(role.CanLogin))},
			})
		}
	}

	for _, role := range imp.Roles {
		if src.Role(role.Name) != nil {
			continue
		}
		ref := model.ObjectRef{Type: model.ObjectRole, Name: role.Name}
		if p.opts.KeepClusterObjects {
			p.ignore(phaseDropRoles, ref, "role "+role.Name, "cluster objects are kept")
			continue
		}
		p.add(phaseDropRoles, model.Operation{
			Kind:   model.DiffDrop,
			Object: ref,
			SQL:    []string{"DROP ROLE " + quote(role.Name)},
		})
	}
}

func (p *planner) diffSchema(ctx context.Context, src, imp *model.Schema) error {
	switch {
	case src == nil:
		p.dropSchema(imp)
		return nil
	case imp == nil:
		p.add(phaseCreateSchemas, model.Operation{
			Kind:   model.DiffCreate,
			Object: model.ObjectRef{Type: model.ObjectSchema, Name: src.Name},
			SQL:    p.createSchemaSQL(src),
		})
		imp = &model.Schema{Name: src.Name}
	case src.Owner != "" && !strings.EqualFold(src.Owner, imp.Owner):
		p.add(phaseAlterSchemas, model.Operation{
			Kind:   model.DiffAlter,
			Object: model.ObjectRef{Type: model.ObjectSchema, Name: src.Name},
			SQL:    []string{fmt.Sprintf("ALTER SCHEMA %s OWNER TO %s", quote(src.Name), quote(src.Owner))},
		})
	}

	for i := range src.Sequences {
		seq := withSchema(src.Sequences[i], src.Name)
		p.diffSequence(&seq, imp.Sequence(seq.Name))
	}
	for i := range imp.Sequences {
		if src.Sequence(imp.Sequences[i].Name) == nil {
			seq := withSchema(imp.Sequences[i], imp.Name)
			p.dropSequence(phaseDropSequences, &seq)
		}
	}

	for i := range src.Tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		table := src.Tables[i]
		table.Schema = src.Name
		p.diffTable(&table, imp.Table(table.Table))
	}
	for i := range imp.Tables {
		if src.Table(imp.Tables[i].Table) == nil {
			table := imp.Tables[i]
			table.Schema = imp.Name
			p.dropTable(phaseDropTables, &table)
		}
	}
	return nil
}

func withSchema(seq model.Sequence, schema string) model.Sequence {
	seq.Schema = schema
	return seq
}

// dropSchema removes a schema absent from the source together with its contents
func (p *planner) dropSchema(s *model.Schema) {
	for i := range s.Sequences {
		seq := withSchema(s.Sequences[i], s.Name)
		p.dropSequence(phaseDropSequences, &seq)
	}
	for i := range s.Tables {
		table := s.Tables[i]
		table.Schema = s.Name
		p.dropTable(phaseDropTables, &table)
	}
	p.add(phaseDropSchemas, model.Operation{
		Kind:   model.DiffDrop,
		Object: model.ObjectRef{Type: model.ObjectSchema, Name: s.Name},
		SQL:    []string{"DROP SCHEMA " + quote(s.Name) + p.cascade()},
	})
}

func (p *planner) diffSequence(seq, existing *model.Sequence) {
	if existing == nil {
		p.createSequence(seq)
		return
	}

	srcStart, srcInc := sequenceParams(seq)
	impStart, impInc := sequenceParams(existing)
	changed := srcStart != impStart || srcInc != impInc

	switch {
	case changed && p.opts.ReuseSequences && !p.opts.ForceRecreation:
		p.add(phaseSequences, model.Operation{
			Kind:   model.DiffAlter,
			Object: seq.Ref(),
			SQL:    []string{alterSequenceSQL(seq)},
		})
	case changed,
		p.opts.ForceRecreation && p.opts.RecreateUnmodified && !p.opts.ReuseSequences:
		old := withSchema(*existing, seq.Schema)
		p.dropSequence(phaseSequences, &old)
		p.createSequence(seq)
	}
}

func (p *planner) createSequence(seq *model.Sequence) {
	p.add(phaseSequences, model.Operation{
		Kind:   model.DiffCreate,
		Object: seq.Ref(),
		SQL:    []string{p.createSequenceSQL(seq)},
	})
}

func (p *planner) dropSequence(phase int, seq *model.Sequence) {
	p.add(phase, model.Operation{
		Kind:   model.DiffDrop,
		Object: seq.Ref(),
		SQL:    []string{"DROP SEQUENCE " + qualified(seq.Schema, seq.Name) + p.cascade()},
	})
}

func (p *planner) dropTable(phase int, t *model.TableMetadata) {
	p.add(phase, model.Operation{
		Kind:   model.DiffDrop,
		Object: t.Ref(),
		SQL:    []string{"DROP TABLE " + qualified(t.Schema, t.Table) + p.cascade()},
	})
}

func (p *planner) createTable(t *model.TableMetadata) {
	p.add(phaseTables, model.Operation{
		Kind:   model.DiffCreate,
		Object: t.Ref(),
		SQL:    createTableSQL(t),
	})
	for _, g := range t.Grants {
		p.grant(t, g)
	}
}

func (p *planner) grant(t *model.TableMetadata, g model.Grant) {
	p.add(phasePermissions, model.Operation{
		Kind:        model.DiffCreate,
		Object:      permissionRef(t, g),
		Description: fmt.Sprintf("grant %s on %s to %s", strings.ToUpper(g.Privilege), t.Ref(), g.Role),
		SQL:         []string{grantSQL(t, g)},
	})
}

func permissionRef(t *model.TableMetadata, g model.Grant) model.ObjectRef {
	return model.ObjectRef{Type: model.ObjectPermission, Schema: t.Schema, Parent: t.Table, Name: g.Role}
}

// comparableType returns the canonical type of col without modifying it
func (p *planner) comparableType(col *model.Column) string {
	if col.PgType != "" {
		return col.PgType
	}
	return p.engine.types.Canonical(col.DataType)
}

func (p *planner) columnsDiffer(a, b *model.Column) (typeChanged, changed bool) {
	typeChanged = p.comparableType(a) != p.comparableType(b)
	changed = typeChanged ||
		a.Nullable != b.Nullable ||
		strings.TrimSpace(a.Default) != strings.TrimSpace(b.Default)
	return typeChanged, changed
}

func samePrimaryKey(a, b *model.TableMetadata) bool {
	if len(a.PrimaryKeys) != len(b.PrimaryKeys) {
		return false
	}
	for i := range a.PrimaryKeys {
		if !strings.EqualFold(a.PrimaryKeys[i], b.PrimaryKeys[i]) {
			return false
		}
	}
	return true
}

// tableChanged reports any structural difference, grants excluded
func (p *planner) tableChanged(src, imp *model.TableMetadata) bool {
	if len(src.Columns) != len(imp.Columns) || !samePrimaryKey(src, imp) {
		return true
	}
	if src.Owner != "" && !strings.EqualFold(src.Owner, imp.Owner) {
		return true
	}
	for i := range src.Columns {
		existing := imp.GetColumnByName(src.Columns[i].Name)
		if existing == nil {
			return true
		}
		if _, changed := p.columnsDiffer(existing, &src.Columns[i]); changed {
			return true
		}
	}
	return false
}

func (p *planner) diffTable(src, imp *model.TableMetadata) {
	if imp == nil {
		p.createTable(src)
		return
	}
	imp = withTableSchema(imp, src.Schema)

	if p.opts.ForceRecreation && (p.opts.RecreateUnmodified || p.tableChanged(src, imp)) {
		p.dropTable(phaseTables, imp)
		p.createTable(src)
		return
	}

	name := qualified(src.Schema, src.Table)
	pkChanged := !samePrimaryKey(src, imp)

	if pkChanged && len(imp.PrimaryKeys) > 0 {
		p.add(phaseAlterTables, model.Operation{
			Kind:   model.DiffDrop,
			Object: model.ObjectRef{Type: model.ObjectConstraint, Schema: src.Schema, Parent: src.Table, Name: pkName(imp)},
			SQL:    []string{fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s%s", name, quote(pkName(imp)), p.cascade())},
		})
	}

	for i := range imp.Columns {
		col := &imp.Columns[i]
		if src.GetColumnByName(col.Name) != nil {
			continue
		}
		p.add(phaseAlterTables, model.Operation{
			Kind:   model.DiffDrop,
			Object: columnRef(src, col.Name),
			SQL:    []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s%s", name, quote(col.Name), p.cascade())},
		})
	}

	type columnChange struct {
		from, to    *model.Column
		typeChanged bool
	}
	var changes []columnChange
	anyTypeChanged := false
	for i := range src.Columns {
		col := &src.Columns[i]
		existing := imp.GetColumnByName(col.Name)
		if existing == nil {
			continue
		}
		typeChanged, changed := p.columnsDiffer(existing, col)
		if changed {
			changes = append(changes, columnChange{from: existing, to: col, typeChanged: typeChanged})
			anyTypeChanged = anyTypeChanged || typeChanged
		}
	}

	if anyTypeChanged && p.opts.TruncateTables {
		p.add(phaseAlterTables, model.Operation{
			Kind:        model.DiffAlter,
			Object:      src.Ref(),
			Description: "truncate table " + src.Ref().String(),
			SQL:         []string{"TRUNCATE " + name + p.cascade()},
		})
	}

	for _, c := range changes {
		p.add(phaseAlterTables, model.Operation{
			Kind:   model.DiffAlter,
			Object: columnRef(src, c.to.Name),
			SQL:    alterColumnSQL(name, c.from, c.to, c.typeChanged),
		})
	}

	for i := range src.Columns {
		col := &src.Columns[i]
		if imp.GetColumnByName(col.Name) != nil {
			continue
		}
		stmt := "ALTER TABLE " + name + " ADD COLUMN "
		if p.feat.columnIfNotExists {
			stmt += "IF NOT EXISTS "
		}
		p.add(phaseAlterTables, model.Operation{
			Kind:   model.DiffCreate,
			Object: columnRef(src, col.Name),
			SQL:    []string{stmt + columnDefinition(col)},
		})
	}

	if pkChanged && len(src.PrimaryKeys) > 0 {
		p.add(phaseAlterTables, model.Operation{
			Kind:   model.DiffCreate,
			Object: model.ObjectRef{Type: model.ObjectConstraint, Schema: src.Schema, Parent: src.Table, Name: pkName(src)},
			SQL:    []string{fmt.Sprintf("ALTER TABLE %s ADD %s", name, pkClause(src))},
		})
	}

	if src.Owner != "" && !strings.EqualFold(src.Owner, imp.Owner) {
		p.add(phaseAlterTables, model.Operation{
			Kind:        model.DiffAlter,
			Object:      src.Ref(),
			Description: fmt.Sprintf("alter owner of table %s", src.Ref()),
			SQL:         []string{tableOwnerSQL(src)},
		})
	}

	p.diffGrants(src, imp)
}

func withTableSchema(t *model.TableMetadata, schema string) *model.TableMetadata {
	if t.Schema == schema {
		return t
	}
	cp := *t
	cp.Schema = schema
	return &cp
}

func columnRef(t *model.TableMetadata, column string) model.ObjectRef {
	return model.ObjectRef{Type: model.ObjectColumn, Schema: t.Schema, Parent: t.Table, Name: column}
}

func (p *planner) diffGrants(src, imp *model.TableMetadata) {
	for _, g := range src.Grants {
		if !imp.HasGrant(g) {
			p.grant(src, g)
		}
	}
	for _, g := range imp.Grants {
		if src.HasGrant(g) {
			continue
		}
		what := fmt.Sprintf("revoke of %s on %s from %s", strings.ToUpper(g.Privilege), src.Ref(), g.Role)
		if p.opts.KeepObjectPermissions {
			p.ignore(phasePermissions, permissionRef(src, g), what, "object permissions are kept")
			continue
		}
		p.add(phasePermissions, model.Operation{
			Kind:        model.DiffDrop,
			Object:      permissionRef(src, g),
			Description: fmt.Sprintf("revoke %s on %s from %s", strings.ToUpper(g.Privilege), src.Ref(), g.Role),
			SQL:         []string{revokeSQL(src, g)},
		})
	}
}
