package converter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/schemadiff/pkg/model"
)

func TestCanonical(t *testing.T) {
	c := NewTypeConverter(zaptest.NewLogger(t))

	tests := []struct {
		in   string
		want string
	}{
		{"int4", "INTEGER"},
		{"integer", "INTEGER"},
		{"serial", "INTEGER"},
		{"int8", "BIGINT"},
		{"bool", "BOOLEAN"},
		{"character varying(20)", "VARCHAR(20)"},
		{"varchar( 20 )", "VARCHAR(20)"},
		{"character varying", "TEXT"},
		{"numeric(10, 2)", "NUMERIC(10,2)"},
		{"decimal", "NUMERIC"},
		{"timestamptz", "TIMESTAMP WITH TIME ZONE"},
		{"timestamp without time zone", "TIMESTAMP"},
		{"timestamp(3) with time zone", "TIMESTAMP(3) WITH TIME ZONE"},
		{"double   precision", "DOUBLE PRECISION"},
		{"integer[]", "INTEGER[]"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Canonical(tt.in))
		})
	}
}

func TestMapSnowflakeTypeToPostgres(t *testing.T) {
	c := NewTypeConverter(zaptest.NewLogger(t))

	tests := []struct {
		in   string
		want string
	}{
		{"VARCHAR(255)", "VARCHAR(255)"},
		{"VARCHAR(16777216)", "TEXT"},
		{"NUMBER(38,0)", "NUMERIC(38)"},
		{"NUMBER(9,0)", "INTEGER"},
		{"NUMBER(4,0)", "SMALLINT"},
		{"NUMBER(12,2)", "NUMERIC(12,2)"},
		{"number", "NUMERIC"},
		{"VARIANT", "JSONB"},
		{"TIMESTAMP_LTZ", "TIMESTAMP WITH TIME ZONE"},
		{"TIMESTAMP_NTZ", "TIMESTAMP"},
		{"BINARY", "BYTEA"},
		{"", "TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := c.MapSnowflakeTypeToPostgres(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := c.MapSnowflakeTypeToPostgres("GEOGRAPHY")
	assert.Error(t, err)
	assert.Equal(t, "TEXT", got)
}

func TestResolve(t *testing.T) {
	c := NewTypeConverterWithConfig(zaptest.NewLogger(t), TypeConverterConfig{MaxVarcharLength: 100})

	db := &model.Database{Schemas: []model.Schema{{
		Name: "s",
		Tables: []model.TableMetadata{{
			Table: "t",
			Columns: []model.Column{
				{Name: "a", DataType: "NUMBER(18,0)"},
				{Name: "b", DataType: "VARCHAR(500)"},
			},
		}},
	}}}

	c.Resolve(db, true)
	cols := db.Schemas[0].Tables[0].Columns
	assert.Equal(t, "BIGINT", cols[0].PgType)
	assert.Equal(t, "TEXT", cols[1].PgType)

	pg := &model.Database{Schemas: []model.Schema{{
		Name:   "s",
		Tables: []model.TableMetadata{{Table: "t", Columns: []model.Column{{Name: "a", DataType: "int8"}}}},
	}}}
	c.Resolve(pg, false)
	assert.Equal(t, "BIGINT", pg.Schemas[0].Tables[0].Columns[0].PgType)
}
