// pkg/model/metadata.go
package model

import "strings"

// TableMetadata contains the structure information for a database table
type TableMetadata struct {
	Schema         string   `yaml:"-"`                          // Schema name, filled from the enclosing schema
	Table          string   `yaml:"name"`                       // Table name
	Owner          string   `yaml:"owner,omitempty"`            // Owning role; empty means "don't care"
	Columns        []Column `yaml:"columns"`                    // Column definitions in ordinal order
	PrimaryKeys    []string `yaml:"primary_key,omitempty"`      // List of primary key column names
	PrimaryKeyName string   `yaml:"primary_key_name,omitempty"` // Constraint name; defaults to <table>_pkey
	Grants         []Grant  `yaml:"grants,omitempty"`           // Table privileges granted to roles
}

// Column represents metadata about a database column
type Column struct {
	Name     string `yaml:"name"`              // Column name
	DataType string `yaml:"type"`              // Data type as declared or reported by the server
	PgType   string `yaml:"-"`                 // Canonical PostgreSQL type used for comparison
	Nullable bool   `yaml:"nullable"`          // Whether column allows NULL values
	Default  string `yaml:"default,omitempty"` // Default expression, empty for none
}

// Grant is a single privilege held by a role on a table
type Grant struct {
	Role      string `yaml:"role"`
	Privilege string `yaml:"privilege"`
}

// Ref returns the reference of the table
func (tm *TableMetadata) Ref() ObjectRef {
	return ObjectRef{Type: ObjectTable, Schema: tm.Schema, Name: tm.Table}
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	normalizedName := normalizeName(name)
	for i, col := range tm.Columns {
		if normalizeName(col.Name) == normalizedName {
			return &tm.Columns[i]
		}
	}
	return nil
}

// IsPrimaryKey reports whether the named column is part of the primary key
func (tm *TableMetadata) IsPrimaryKey(column string) bool {
	for _, pk := range tm.PrimaryKeys {
		if normalizeName(pk) == normalizeName(column) {
			return true
		}
	}
	return false
}

// HasGrant reports whether role holds privilege on the table
func (tm *TableMetadata) HasGrant(g Grant) bool {
	for _, existing := range tm.Grants {
		if normalizeName(existing.Role) == normalizeName(g.Role) &&
			strings.EqualFold(existing.Privilege, g.Privilege) {
			return true
		}
	}
	return false
}

// ComparableType returns the canonical type when known, otherwise the declared one
func (col *Column) ComparableType() string {
	if col.PgType != "" {
		return col.PgType
	}
	return strings.ToUpper(strings.TrimSpace(col.DataType))
}

// Identifiers are compared case-insensitively
func normalizeName(name string) string {
	return strings.ToLower(name)
}
