package diff

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/David-Botos/schemadiff/pkg/model"
)

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

func qualified(schema, name string) string {
	return quote(schema) + "." + quote(name)
}

func loginClause(canLogin bool) string {
	if canLogin {
		return "LOGIN"
	}
	return "NOLOGIN"
}

func (p *planner) cascade() string {
	if p.opts.CascadeMode {
		return " CASCADE"
	}
	return ""
}

func (p *planner) createSchemaSQL(s *model.Schema) []string {
	stmt := "CREATE SCHEMA "
	if p.feat.schemaIfNotExists {
		stmt += "IF NOT EXISTS "
	}
	stmts := []string{stmt + quote(s.Name)}
	if s.Owner != "" {
		stmts = append(stmts, fmt.Sprintf("ALTER SCHEMA %s OWNER TO %s", quote(s.Name), quote(s.Owner)))
	}
	return stmts
}

func (p *planner) createSequenceSQL(seq *model.Sequence) string {
	stmt := "CREATE SEQUENCE "
	if p.feat.sequenceIfNotExists {
		stmt += "IF NOT EXISTS "
	}
	start, inc := sequenceParams(seq)
	return fmt.Sprintf("%s%s INCREMENT BY %d START WITH %d",
		stmt, qualified(seq.Schema, seq.Name), inc, start)
}

func alterSequenceSQL(seq *model.Sequence) string {
	start, inc := sequenceParams(seq)
	return fmt.Sprintf("ALTER SEQUENCE %s INCREMENT BY %d START WITH %d",
		qualified(seq.Schema, seq.Name), inc, start)
}

// sequenceParams treats unset start and increment as 1
func sequenceParams(seq *model.Sequence) (start, inc int64) {
	start, inc = seq.Start, seq.Increment
	if start == 0 {
		start = 1
	}
	if inc == 0 {
		inc = 1
	}
	return start, inc
}

func columnDefinition(col *model.Column) string {
	var sb strings.Builder
	sb.WriteString(quote(col.Name))
	sb.WriteString(" ")
	sb.WriteString(strings.TrimSpace(col.DataType))
	if !col.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if d := strings.TrimSpace(col.Default); d != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(d)
	}
	return sb.String()
}

func pkName(t *model.TableMetadata) string {
	if t.PrimaryKeyName != "" {
		return t.PrimaryKeyName
	}
	return t.Table + "_pkey"
}

func pkClause(t *model.TableMetadata) string {
	cols := make([]string, len(t.PrimaryKeys))
	for i, c := range t.PrimaryKeys {
		cols[i] = quote(c)
	}
	return fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", quote(pkName(t)), strings.Join(cols, ", "))
}

func createTableSQL(t *model.TableMetadata) []string {
	lines := make([]string, 0, len(t.Columns)+1)
	for i := range t.Columns {
		lines = append(lines, "\t"+columnDefinition(&t.Columns[i]))
	}
	if len(t.PrimaryKeys) > 0 {
		lines = append(lines, "\t"+pkClause(t))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", qualified(t.Schema, t.Table), strings.Join(lines, ",\n"))}
	if t.Owner != "" {
		stmts = append(stmts, tableOwnerSQL(t))
	}
	return stmts
}

func tableOwnerSQL(t *model.TableMetadata) string {
	return fmt.Sprintf("ALTER TABLE %s OWNER TO %s", qualified(t.Schema, t.Table), quote(t.Owner))
}

func grantSQL(t *model.TableMetadata, g model.Grant) string {
	return fmt.Sprintf("GRANT %s ON TABLE %s TO %s",
		strings.ToUpper(g.Privilege), qualified(t.Schema, t.Table), quote(g.Role))
}

func revokeSQL(t *model.TableMetadata, g model.Grant) string {
	return fmt.Sprintf("REVOKE %s ON TABLE %s FROM %s",
		strings.ToUpper(g.Privilege), qualified(t.Schema, t.Table), quote(g.Role))
}

// alterColumnSQL returns the statements turning from into to
func alterColumnSQL(table string, from, to *model.Column, typeChanged bool) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ", table, quote(to.Name))
	var stmts []string

	if typeChanged {
		declared := strings.TrimSpace(to.DataType)
		stmts = append(stmts, fmt.Sprintf("%sTYPE %s USING %s::%s", prefix, declared, quote(to.Name), declared))
	}
	if from.Nullable != to.Nullable {
		if to.Nullable {
			stmts = append(stmts, prefix+"DROP NOT NULL")
		} else {
			stmts = append(stmts, prefix+"SET NOT NULL")
		}
	}
	if d := strings.TrimSpace(to.Default); d != strings.TrimSpace(from.Default) {
		if d == "" {
			stmts = append(stmts, prefix+"DROP DEFAULT")
		} else {
			stmts = append(stmts, prefix+"SET DEFAULT "+d)
		}
	}
	return stmts
}
