package importer

import "strings"

// Selection restricts which objects are imported. Empty lists mean "everything".
type Selection struct {
	// Schema names to import
	Schemas []string
	// Qualified "schema.table" names; when set, only these tables are read
	Tables []string
}

// Clone returns a copy that shares no slices with s
func (s Selection) Clone() Selection {
	return Selection{
		Schemas: append([]string(nil), s.Schemas...),
		Tables:  append([]string(nil), s.Tables...),
	}
}

// IncludesSchema reports whether objects of the schema should be imported
func (s Selection) IncludesSchema(schema string) bool {
	if len(s.Schemas) == 0 && len(s.Tables) == 0 {
		return true
	}
	for _, name := range s.Schemas {
		if strings.EqualFold(name, schema) {
			return true
		}
	}
	for _, qualified := range s.Tables {
		if prefix, _, ok := strings.Cut(qualified, "."); ok && strings.EqualFold(prefix, schema) {
			return true
		}
	}
	return false
}

// IncludesTable reports whether the table should be imported
func (s Selection) IncludesTable(schema, table string) bool {
	if len(s.Tables) == 0 {
		return s.IncludesSchema(schema)
	}
	for _, qualified := range s.Tables {
		if strings.EqualFold(qualified, schema+"."+table) {
			return true
		}
	}
	return false
}

// String returns a short description for logs
func (s Selection) String() string {
	switch {
	case len(s.Tables) > 0:
		return strings.Join(s.Tables, ",")
	case len(s.Schemas) > 0:
		return strings.Join(s.Schemas, ",")
	default:
		return "*"
	}
}
