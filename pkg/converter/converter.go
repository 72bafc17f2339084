// pkg/converter/converter.go
package converter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/David-Botos/schemadiff/pkg/model"
)

// TypeConverter maps driver-reported column types onto canonical PostgreSQL spellings
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// VARCHARs longer than this are compared as TEXT
	MaxVarcharLength int
	// Keep NUMBER(p,s) precision instead of widening to NUMERIC
	PreserveNumericPrecision bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		MaxVarcharLength:         10485760, // PostgreSQL's varchar limit
		PreserveNumericPrecision: true,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// MapSnowflakeTypeToPostgres converts a Snowflake data type to PostgreSQL
func (c *TypeConverter) MapSnowflakeTypeToPostgres(snowType string) (string, error) {
	if snowType == "" || strings.EqualFold(snowType, "NULL") {
		return "TEXT", nil
	}

	snowType = strings.ToUpper(strings.TrimSpace(snowType))
	baseType := getBaseType(snowType)

	switch baseType {
	case "VARCHAR", "STRING", "TEXT", "CHAR", "CHARACTER":
		return c.handleVarcharType(snowType), nil
	case "NUMBER", "DECIMAL", "NUMERIC":
		return c.handleNumberType(snowType), nil
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		// Snowflake integers are NUMBER(38,0)
		return "NUMERIC(38)", nil
	case "ARRAY", "OBJECT", "VARIANT":
		return "JSONB", nil
	case "DATE":
		return "DATE", nil
	case "TIME":
		return "TIME", nil
	case "DATETIME", "TIMESTAMP", "TIMESTAMP_NTZ":
		return "TIMESTAMP", nil
	case "TIMESTAMP_TZ", "TIMESTAMP_LTZ":
		return "TIMESTAMP WITH TIME ZONE", nil
	case "BOOLEAN":
		return "BOOLEAN", nil
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "REAL":
		return "DOUBLE PRECISION", nil
	case "BINARY", "VARBINARY":
		return "BYTEA", nil
	default:
		c.logger.Warn("Unknown Snowflake type encountered",
			zap.String("snowflakeType", snowType))
		return "TEXT", fmt.Errorf("unknown Snowflake type: %s (mapped to TEXT as fallback)", snowType)
	}
}

// Canonical normalizes a PostgreSQL type spelling, e.g. "int4" and
// "integer" both become "INTEGER", "character varying(20)" becomes "VARCHAR(20)".
func (c *TypeConverter) Canonical(pgType string) string {
	t := strings.ToUpper(strings.Join(strings.Fields(pgType), " "))
	if t == "" {
		return ""
	}

	base, args := splitTypeArgs(t)
	if alias, ok := postgresAliases[base]; ok {
		base = alias
	}

	switch base {
	case "VARCHAR":
		if args == "" {
			return "TEXT"
		}
		return c.handleVarcharType("VARCHAR(" + args + ")")
	case "NUMERIC":
		if args == "" {
			return "NUMERIC"
		}
		return "NUMERIC(" + strings.ReplaceAll(args, " ", "") + ")"
	}

	if args == "" {
		return base
	}

	// Precision belongs to the first word: TIMESTAMP(3) WITH TIME ZONE
	if head, tail, found := strings.Cut(base, " "); found && strings.HasPrefix(head, "TIME") {
		return head + "(" + args + ") " + tail
	}
	return base + "(" + args + ")"
}

// Resolve fills PgType for every column of db. Snowflake types are mapped first.
func (c *TypeConverter) Resolve(db *model.Database, fromSnowflake bool) {
	for i := range db.Schemas {
		for j := range db.Schemas[i].Tables {
			table := &db.Schemas[i].Tables[j]
			for k := range table.Columns {
				col := &table.Columns[k]
				pgType := col.DataType
				if fromSnowflake {
					pgType, _ = c.MapSnowflakeTypeToPostgres(col.DataType)
				}
				col.PgType = c.Canonical(pgType)
			}
		}
	}
}
