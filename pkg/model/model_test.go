package model

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleModel = `
name: shop
roles:
  - name: app
    login: true
schemas:
  - name: sales
    owner: app
    sequences:
      - name: order_seq
        start: 1
        increment: 1
    tables:
      - name: orders
        owner: app
        primary_key: [id]
        columns:
          - name: id
            type: bigint
          - name: note
            type: text
            nullable: true
      - name: customers
        columns:
          - name: id
            type: integer
`

func TestDecode(t *testing.T) {
	db, err := Decode(strings.NewReader(sampleModel))
	require.NoError(t, err)

	assert.Equal(t, "shop", db.Name)
	require.Len(t, db.Schemas, 1)

	sales := db.Schema("SALES")
	require.NotNil(t, sales)
	// Normalize sorts tables by name
	assert.Equal(t, "customers", sales.Tables[0].Table)
	assert.Equal(t, "sales", sales.Tables[1].Schema)
	assert.Equal(t, "sales", sales.Sequence("order_seq").Schema)

	orders := sales.Table("orders")
	require.NotNil(t, orders)
	assert.True(t, orders.IsPrimaryKey("ID"))
	assert.NotNil(t, orders.GetColumnByName("Note"))
	assert.Equal(t, "sales.orders", orders.Ref().String())
	assert.Equal(t, 5, db.ObjectCount())
	assert.NotNil(t, db.Role("APP"))
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown field",
			doc:     "name: x\nschemas: []\ncolour: red\n",
			wantErr: "colour",
		},
		{
			name:    "duplicate schema",
			doc:     "name: x\nschemas:\n  - name: a\n  - name: A\n",
			wantErr: "duplicate schema",
		},
		{
			name:    "column without type",
			doc:     "name: x\nschemas:\n  - name: a\n    tables:\n      - name: t\n        columns:\n          - name: c\n",
			wantErr: "has no type",
		},
		{
			name:    "bad primary key",
			doc:     "name: x\nschemas:\n  - name: a\n    tables:\n      - name: t\n        primary_key: [zz]\n        columns:\n          - name: c\n            type: int\n",
			wantErr: "unknown column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	db, err := Decode(strings.NewReader(sampleModel))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, db))

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, db, loaded)
}

func TestObjectRefString(t *testing.T) {
	ref := ObjectRef{Type: ObjectColumn, Schema: "s", Parent: "t", Name: "c"}
	assert.Equal(t, "s.t.c", ref.String())
	assert.Equal(t, "app", ObjectRef{Type: ObjectRole, Name: "app"}.String())
}

func TestDiffKindString(t *testing.T) {
	assert.Equal(t, "create", DiffCreate.String())
	assert.Equal(t, "ignore", DiffIgnore.String())
	assert.Equal(t, "unknown(9)", DiffKind(9).String())
}
