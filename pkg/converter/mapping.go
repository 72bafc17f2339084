// pkg/converter/mapping.go
package converter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Patterns for type extraction
var (
	precisionScalePattern = regexp.MustCompile(`^(?:NUMBER|DECIMAL|NUMERIC)\((\d+)(?:,\s*(\d+))?\)`)
	varcharLengthPattern  = regexp.MustCompile(`\((\d+)\)`)
)

// postgresAliases maps alternative PostgreSQL spellings onto the canonical base type
var postgresAliases = map[string]string{
	"INT":                         "INTEGER",
	"INT4":                        "INTEGER",
	"SERIAL":                      "INTEGER",
	"SERIAL4":                     "INTEGER",
	"INT2":                        "SMALLINT",
	"SMALLSERIAL":                 "SMALLINT",
	"SERIAL2":                     "SMALLINT",
	"INT8":                        "BIGINT",
	"BIGSERIAL":                   "BIGINT",
	"SERIAL8":                     "BIGINT",
	"BOOL":                        "BOOLEAN",
	"FLOAT8":                      "DOUBLE PRECISION",
	"FLOAT":                       "DOUBLE PRECISION",
	"FLOAT4":                      "REAL",
	"DECIMAL":                     "NUMERIC",
	"CHARACTER VARYING":           "VARCHAR",
	"CHARACTER":                   "CHAR",
	"BPCHAR":                      "CHAR",
	"TIMESTAMPTZ":                 "TIMESTAMP WITH TIME ZONE",
	"TIMESTAMP WITHOUT TIME ZONE": "TIMESTAMP",
	"TIMETZ":                      "TIME WITH TIME ZONE",
	"TIME WITHOUT TIME ZONE":      "TIME",
}

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}

// splitTypeArgs separates "NUMERIC(10, 2)" into "NUMERIC" and "10, 2".
// Trailing modifiers after the parentheses (e.g. "TIMESTAMP(3) WITH TIME ZONE")
// are folded back into the base.
func splitTypeArgs(fullType string) (string, string) {
	open := strings.Index(fullType, "(")
	if open < 0 {
		return fullType, ""
	}
	closing := strings.Index(fullType[open:], ")")
	if closing < 0 {
		return fullType, ""
	}
	closing += open

	base := strings.TrimSpace(fullType[:open])
	if rest := strings.TrimSpace(fullType[closing+1:]); rest != "" {
		base += " " + rest
	}
	return base, strings.TrimSpace(fullType[open+1 : closing])
}

// handleVarcharType keeps the declared length unless it exceeds the configured maximum
func (c *TypeConverter) handleVarcharType(fullType string) string {
	matches := varcharLengthPattern.FindStringSubmatch(fullType)
	if len(matches) < 2 {
		return "TEXT"
	}

	length, err := strconv.Atoi(matches[1])
	if err != nil {
		return "TEXT"
	}

	if c.config.MaxVarcharLength > 0 && length > c.config.MaxVarcharLength {
		c.logger.Debug("Comparing large VARCHAR as TEXT",
			zap.String("original", fullType),
			zap.Int("length", length))
		return "TEXT"
	}

	return fmt.Sprintf("VARCHAR(%d)", length)
}

// handleNumberType processes NUMBER type with precision/scale
func (c *TypeConverter) handleNumberType(fullType string) string {
	matches := precisionScalePattern.FindStringSubmatch(fullType)

	// No precision/scale specified
	if len(matches) < 2 {
		return "NUMERIC"
	}

	precision, err := strconv.Atoi(matches[1])
	if err != nil {
		return "NUMERIC"
	}

	// Scale defaults to 0 if not specified
	scale := 0
	if len(matches) > 2 && matches[2] != "" {
		scale, err = strconv.Atoi(matches[2])
		if err != nil {
			scale = 0
		}
	}

	if scale == 0 {
		if precision <= 4 {
			return "SMALLINT"
		} else if precision <= 9 {
			return "INTEGER"
		} else if precision <= 18 {
			return "BIGINT"
		}
		return fmt.Sprintf("NUMERIC(%d)", precision)
	}

	if c.config.PreserveNumericPrecision {
		return fmt.Sprintf("NUMERIC(%d,%d)", precision, scale)
	}
	return "NUMERIC"
}
