package importer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/model"
)

// Catalog queries use ? placeholders; the connector rebinds them per driver.
const (
	pgCurrentDatabaseQuery = `SELECT current_database()`

	pgRolesQuery = `SELECT rolname AS name, rolcanlogin AS can_login
FROM pg_catalog.pg_roles
ORDER BY rolname`

	pgSchemasQuery = `SELECT n.nspname AS name, pg_catalog.pg_get_userbyid(n.nspowner) AS owner
FROM pg_catalog.pg_namespace n
ORDER BY n.nspname`

	pgExtensionObjectsQuery = `SELECT n.nspname AS schema_name, '' AS object_name
FROM pg_catalog.pg_namespace n
JOIN pg_catalog.pg_depend d ON d.objid = n.oid AND d.classid = 'pg_catalog.pg_namespace'::regclass
WHERE d.deptype = 'e'
UNION ALL
SELECT n.nspname AS schema_name, c.relname AS object_name
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_depend d ON d.objid = c.oid AND d.classid = 'pg_catalog.pg_class'::regclass
WHERE d.deptype = 'e'`

	pgTablesQuery = `SELECT c.relname AS name, pg_catalog.pg_get_userbyid(c.relowner) AS owner
FROM pg_catalog.pg_class c
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = ? AND c.relkind IN ('r', 'p')
ORDER BY c.relname`

	pgColumnsQuery = `SELECT a.attname AS name,
	pg_catalog.format_type(a.atttypid, a.atttypmod) AS data_type,
	NULL::integer AS character_maximum_length,
	NULL::integer AS numeric_precision,
	NULL::integer AS numeric_scale,
	CASE WHEN a.attnotnull THEN 'NO' ELSE 'YES' END AS is_nullable,
	COALESCE(pg_catalog.pg_get_expr(ad.adbin, ad.adrelid), '') AS default_value
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
WHERE n.nspname = ? AND c.relname = ? AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

	pgPrimaryKeyQuery = `SELECT a.attname AS column_name, ic.relname AS constraint_name
FROM pg_catalog.pg_index i
JOIN pg_catalog.pg_class ic ON ic.oid = i.indexrelid
JOIN pg_catalog.pg_class c ON c.oid = i.indrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
WHERE i.indisprimary AND n.nspname = ? AND c.relname = ?
ORDER BY array_position(i.indkey::int2[], a.attnum)`

	pgGrantsQuery = `SELECT grantee AS role, privilege_type AS privilege
FROM information_schema.role_table_grants
WHERE table_schema = ? AND table_name = ? AND grantee <> grantor
ORDER BY grantee, privilege_type`

	pgDatabasesQuery = `SELECT datname
FROM pg_catalog.pg_database
WHERE datallowconn AND NOT datistemplate
ORDER BY datname`

	sequencesQuery = `SELECT sequence_name AS name, start_value, increment
FROM information_schema.sequences
WHERE sequence_schema = ?
ORDER BY sequence_name`

	sfCurrentDatabaseQuery = `SELECT CURRENT_DATABASE()`

	sfSchemasQuery = `SELECT schema_name AS name, COALESCE(schema_owner, '') AS owner
FROM information_schema.schemata
ORDER BY schema_name`

	sfTablesQuery = `SELECT table_name AS name, COALESCE(table_owner, '') AS owner
FROM information_schema.tables
WHERE table_schema = ? AND table_type = 'BASE TABLE'
ORDER BY table_name`

	sfColumnsQuery = `SELECT column_name AS name,
	data_type,
	character_maximum_length,
	numeric_precision,
	numeric_scale,
	is_nullable,
	COALESCE(column_default, '') AS default_value
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

	sfGrantsQuery = `SELECT grantee AS role, privilege_type AS privilege
FROM information_schema.table_privileges
WHERE table_schema = ? AND table_name = ? AND grantee <> grantor
ORDER BY grantee, privilege_type`
)

type roleRow struct {
	Name     string `db:"name"`
	CanLogin bool   `db:"can_login"`
}

type namedRow struct {
	Name  string `db:"name"`
	Owner string `db:"owner"`
}

type objectRow struct {
	Schema string `db:"schema_name"`
	Object string `db:"object_name"`
}

type columnRow struct {
	Name      string        `db:"name"`
	DataType  string        `db:"data_type"`
	Length    sql.NullInt64 `db:"character_maximum_length"`
	Precision sql.NullInt64 `db:"numeric_precision"`
	Scale     sql.NullInt64 `db:"numeric_scale"`
	Nullable  string        `db:"is_nullable"`
	Default   string        `db:"default_value"`
}

type sequenceRow struct {
	Name      string `db:"name"`
	Start     string `db:"start_value"`
	Increment string `db:"increment"`
}

type grantRow struct {
	Role      string `db:"role"`
	Privilege string `db:"privilege"`
}

type keyRow struct {
	Column     string `db:"column_name"`
	Constraint string `db:"constraint_name"`
	Sequence   int    `db:"key_sequence"`
}

// catalog reads structure from one server flavour
type catalog struct {
	conn      connector.DatabaseConnector
	timeout   time.Duration
	snowflake bool
}

func newCatalog(conn connector.DatabaseConnector, timeout time.Duration) *catalog {
	return &catalog{
		conn:      conn,
		timeout:   timeout,
		snowflake: conn.Driver() == config.DriverSnowflake,
	}
}

func (c *catalog) currentDatabase(ctx context.Context) (string, error) {
	query := pgCurrentDatabaseQuery
	if c.snowflake {
		query = sfCurrentDatabaseQuery
	}

	var names []string
	if err := c.conn.SelectWithTimeout(ctx, &names, query, c.timeout); err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("server reported no current database")
	}
	return names[0], nil
}

// roles returns cluster roles; Snowflake roles are account-level and not imported
func (c *catalog) roles(ctx context.Context) ([]model.Role, error) {
	if c.snowflake {
		return nil, nil
	}

	var rows []roleRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, pgRolesQuery, c.timeout); err != nil {
		return nil, err
	}

	roles := make([]model.Role, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, model.Role{Name: r.Name, CanLogin: r.CanLogin})
	}
	return roles, nil
}

func (c *catalog) schemas(ctx context.Context) ([]namedRow, error) {
	query := pgSchemasQuery
	if c.snowflake {
		query = sfSchemasQuery
	}

	var rows []namedRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, query, c.timeout); err != nil {
		return nil, err
	}
	return rows, nil
}

// extensionObjects returns the keys "schema" and "schema.relation" of objects owned by extensions
func (c *catalog) extensionObjects(ctx context.Context) (map[string]bool, error) {
	owned := make(map[string]bool)
	if c.snowflake {
		return owned, nil
	}

	var rows []objectRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, pgExtensionObjectsQuery, c.timeout); err != nil {
		return nil, err
	}

	for _, r := range rows {
		owned[objectKey(r.Schema, r.Object)] = true
	}
	return owned, nil
}

func (c *catalog) tables(ctx context.Context, schema string) ([]namedRow, error) {
	query := pgTablesQuery
	if c.snowflake {
		query = sfTablesQuery
	}

	var rows []namedRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, query, c.timeout, schema); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *catalog) columns(ctx context.Context, schema, table string) ([]model.Column, error) {
	query := pgColumnsQuery
	if c.snowflake {
		query = sfColumnsQuery
	}

	var rows []columnRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, query, c.timeout, schema, table); err != nil {
		return nil, err
	}

	columns := make([]model.Column, 0, len(rows))
	for _, r := range rows {
		columns = append(columns, model.Column{
			Name:     r.Name,
			DataType: r.declaredType(),
			Nullable: strings.EqualFold(r.Nullable, "YES"),
			Default:  r.Default,
		})
	}
	return columns, nil
}

// declaredType rebuilds "VARCHAR(n)" / "NUMBER(p,s)" from information_schema's split columns
func (r columnRow) declaredType() string {
	base := strings.ToUpper(r.DataType)
	switch {
	case r.Length.Valid && (base == "TEXT" || base == "VARCHAR" || base == "CHARACTER VARYING"):
		return fmt.Sprintf("VARCHAR(%d)", r.Length.Int64)
	case r.Precision.Valid && (base == "NUMBER" || base == "NUMERIC" || base == "DECIMAL"):
		return fmt.Sprintf("NUMBER(%d,%d)", r.Precision.Int64, r.Scale.Int64)
	default:
		return r.DataType
	}
}

// primaryKey returns the key columns in key order and the constraint name
func (c *catalog) primaryKey(ctx context.Context, schema, table string) ([]string, string, error) {
	if c.snowflake {
		return c.snowflakePrimaryKey(ctx, schema, table)
	}

	var rows []keyRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, pgPrimaryKeyQuery, c.timeout, schema, table); err != nil {
		return nil, "", err
	}

	var name string
	columns := make([]string, 0, len(rows))
	for _, r := range rows {
		columns = append(columns, r.Column)
		name = r.Constraint
	}
	return columns, name, nil
}

// snowflakePrimaryKey uses SHOW PRIMARY KEYS, whose output carries columns we don't map
func (c *catalog) snowflakePrimaryKey(ctx context.Context, schema, table string) ([]string, string, error) {
	query := fmt.Sprintf("SHOW PRIMARY KEYS IN TABLE %s.%s", pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table))

	queryCtx, cancel := context.WithTimeout(ctx, c.timeoutOrDefault())
	defer cancel()

	var rows []keyRow
	if err := c.conn.DB().Unsafe().SelectContext(queryCtx, &rows, query); err != nil {
		return nil, "", err
	}

	var name string
	columns := make([]string, len(rows))
	for _, r := range rows {
		if r.Sequence < 1 || r.Sequence > len(rows) {
			return nil, "", fmt.Errorf("unexpected key_sequence %d for %s.%s", r.Sequence, schema, table)
		}
		columns[r.Sequence-1] = r.Column
		name = r.Constraint
	}
	return columns, name, nil
}

func (c *catalog) grants(ctx context.Context, schema, table string) ([]model.Grant, error) {
	query := pgGrantsQuery
	if c.snowflake {
		query = sfGrantsQuery
	}

	var rows []grantRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, query, c.timeout, schema, table); err != nil {
		return nil, err
	}

	grants := make([]model.Grant, 0, len(rows))
	for _, r := range rows {
		grants = append(grants, model.Grant{Role: r.Role, Privilege: strings.ToUpper(r.Privilege)})
	}
	return grants, nil
}

func (c *catalog) sequences(ctx context.Context, schema string) ([]model.Sequence, error) {
	var rows []sequenceRow
	if err := c.conn.SelectWithTimeout(ctx, &rows, sequencesQuery, c.timeout, schema); err != nil {
		return nil, err
	}

	sequences := make([]model.Sequence, 0, len(rows))
	for _, r := range rows {
		start, err := strconv.ParseInt(strings.TrimSpace(r.Start), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start value %q for sequence %s.%s: %w", r.Start, schema, r.Name, err)
		}
		increment, err := strconv.ParseInt(strings.TrimSpace(r.Increment), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid increment %q for sequence %s.%s: %w", r.Increment, schema, r.Name, err)
		}
		sequences = append(sequences, model.Sequence{Schema: schema, Name: r.Name, Start: start, Increment: increment})
	}
	return sequences, nil
}

func (c *catalog) databases(ctx context.Context) ([]string, error) {
	if c.snowflake {
		queryCtx, cancel := context.WithTimeout(ctx, c.timeoutOrDefault())
		defer cancel()

		var rows []namedRow
		if err := c.conn.DB().Unsafe().SelectContext(queryCtx, &rows, "SHOW DATABASES"); err != nil {
			return nil, err
		}
		names := make([]string, len(rows))
		for i, r := range rows {
			names[i] = r.Name
		}
		return names, nil
	}

	var names []string
	if err := c.conn.SelectWithTimeout(ctx, &names, pgDatabasesQuery, c.timeout); err != nil {
		return nil, err
	}
	return names, nil
}

// isSystemSchema reports whether the schema belongs to the server itself
func (c *catalog) isSystemSchema(name string) bool {
	if c.snowflake {
		return strings.EqualFold(name, "INFORMATION_SCHEMA")
	}
	return name == "pg_catalog" ||
		name == "information_schema" ||
		strings.HasPrefix(name, "pg_toast") ||
		strings.HasPrefix(name, "pg_temp_")
}

// isSystemRole reports whether the role is predefined by the server
func isSystemRole(name string) bool {
	return strings.HasPrefix(name, "pg_")
}

func (c *catalog) timeoutOrDefault() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return time.Minute
}

func objectKey(schema, object string) string {
	if object == "" {
		return strings.ToLower(schema)
	}
	return strings.ToLower(schema + "." + object)
}
