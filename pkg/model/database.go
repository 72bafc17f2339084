package model

import (
	"fmt"
	"sort"
	"strings"
)

// ObjectType is the category tag attached to objects, operations and progress
type ObjectType string

const (
	ObjectDatabase   ObjectType = "database"
	ObjectRole       ObjectType = "role"
	ObjectSchema     ObjectType = "schema"
	ObjectSequence   ObjectType = "sequence"
	ObjectTable      ObjectType = "table"
	ObjectColumn     ObjectType = "column"
	ObjectConstraint ObjectType = "constraint"
	ObjectPermission ObjectType = "permission"
)

// ObjectRef identifies one object in a model
type ObjectRef struct {
	Type   ObjectType
	Schema string
	Parent string // owning table for columns, constraints and permissions
	Name   string
}

// String returns the dotted name of the object
func (r ObjectRef) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Schema, r.Parent, r.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Database is a structural snapshot: either a source model or one imported from a server
type Database struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version,omitempty"`
	Roles   []Role   `yaml:"roles,omitempty"`
	Schemas []Schema `yaml:"schemas"`
}

// Role is a cluster-wide login or group role
type Role struct {
	Name     string `yaml:"name"`
	CanLogin bool   `yaml:"login"`
}

// Schema groups tables and sequences
type Schema struct {
	Name      string          `yaml:"name"`
	Owner     string          `yaml:"owner,omitempty"`
	Tables    []TableMetadata `yaml:"tables,omitempty"`
	Sequences []Sequence      `yaml:"sequences,omitempty"`
}

// Sequence holds the structural parameters of a sequence
type Sequence struct {
	Schema    string `yaml:"-"`
	Name      string `yaml:"name"`
	Start     int64  `yaml:"start"`
	Increment int64  `yaml:"increment"`
}

// Ref returns the reference of the sequence
func (s *Sequence) Ref() ObjectRef {
	return ObjectRef{Type: ObjectSequence, Schema: s.Schema, Name: s.Name}
}

// Schema returns the named schema or nil
func (d *Database) Schema(name string) *Schema {
	for i := range d.Schemas {
		if normalizeName(d.Schemas[i].Name) == normalizeName(name) {
			return &d.Schemas[i]
		}
	}
	return nil
}

// Role returns the named role or nil
func (d *Database) Role(name string) *Role {
	for i := range d.Roles {
		if normalizeName(d.Roles[i].Name) == normalizeName(name) {
			return &d.Roles[i]
		}
	}
	return nil
}

// Table returns the named table or nil
func (s *Schema) Table(name string) *TableMetadata {
	for i := range s.Tables {
		if normalizeName(s.Tables[i].Table) == normalizeName(name) {
			return &s.Tables[i]
		}
	}
	return nil
}

// Sequence returns the named sequence or nil
func (s *Schema) Sequence(name string) *Sequence {
	for i := range s.Sequences {
		if normalizeName(s.Sequences[i].Name) == normalizeName(name) {
			return &s.Sequences[i]
		}
	}
	return nil
}

// ObjectCount returns the number of roles, schemas, tables and sequences
func (d *Database) ObjectCount() int {
	n := len(d.Roles) + len(d.Schemas)
	for _, s := range d.Schemas {
		n += len(s.Tables) + len(s.Sequences)
	}
	return n
}

// Normalize fills back-references and sorts objects by name so that
// comparisons and generated scripts are deterministic.
func (d *Database) Normalize() {
	sort.SliceStable(d.Roles, func(i, j int) bool { return d.Roles[i].Name < d.Roles[j].Name })
	sort.SliceStable(d.Schemas, func(i, j int) bool { return d.Schemas[i].Name < d.Schemas[j].Name })

	for i := range d.Schemas {
		s := &d.Schemas[i]
		sort.SliceStable(s.Tables, func(a, b int) bool { return s.Tables[a].Table < s.Tables[b].Table })
		sort.SliceStable(s.Sequences, func(a, b int) bool { return s.Sequences[a].Name < s.Sequences[b].Name })
		for j := range s.Tables {
			s.Tables[j].Schema = s.Name
		}
		for j := range s.Sequences {
			s.Sequences[j].Schema = s.Name
		}
	}
}

// Validate checks names are present and unique
func (d *Database) Validate() error {
	seen := make(map[string]bool)
	check := func(kind ObjectType, name string) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s with empty name", kind)
		}
		key := string(kind) + ":" + normalizeName(name)
		if seen[key] {
			return fmt.Errorf("duplicate %s %q", kind, name)
		}
		seen[key] = true
		return nil
	}

	for _, r := range d.Roles {
		if err := check(ObjectRole, r.Name); err != nil {
			return err
		}
	}

	for _, s := range d.Schemas {
		if err := check(ObjectSchema, s.Name); err != nil {
			return err
		}
		for _, t := range s.Tables {
			if err := check(ObjectTable, s.Name+"."+t.Table); err != nil {
				return err
			}
			for _, c := range t.Columns {
				if err := check(ObjectColumn, s.Name+"."+t.Table+"."+c.Name); err != nil {
					return err
				}
				if strings.TrimSpace(c.DataType) == "" {
					return fmt.Errorf("column %s.%s.%s has no type", s.Name, t.Table, c.Name)
				}
			}
			for _, pk := range t.PrimaryKeys {
				if t.GetColumnByName(pk) == nil {
					return fmt.Errorf("primary key of %s.%s references unknown column %q", s.Name, t.Table, pk)
				}
			}
		}
		for _, seq := range s.Sequences {
			if err := check(ObjectSequence, s.Name+"."+seq.Name); err != nil {
				return err
			}
		}
	}

	return nil
}
